package expense

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/invoice-ledger/internal/models"
)

// Thresholds configures the anomaly rules. All comparisons are strict, so a
// value exactly at a threshold does not trigger.
type Thresholds struct {
	AmountThreshold     float64 // total amount above this needs approval
	ConfidenceThreshold float64 // recognition confidence below this is suspect
	DateMaxAgeDays      int     // invoices older than this are stale
}

// DefaultThresholds returns the stock rule configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AmountThreshold:     5000,
		ConfidenceThreshold: 0.9,
		DateMaxAgeDays:      180,
	}
}

// AnomalyDetector evaluates recognized invoices against the configured
// business rules. It is stateless and safe for concurrent use.
type AnomalyDetector struct {
	thresholds Thresholds
	now        func() time.Time
}

// NewAnomalyDetector creates a detector with the given thresholds.
func NewAnomalyDetector(thresholds Thresholds) *AnomalyDetector {
	return &AnomalyDetector{
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Detect evaluates the three rules in order and returns an anomaly flag plus
// a human-readable reason string (empty when normal). Severity escalates by
// the number of triggered rules, not their identity: one rule is a warning,
// two or more always require review as error. The date rule is skipped when
// the invoice date is unknown. invoiceNo is currently unused; it is part of
// the contract for a planned duplicate-number rule.
func (d *AnomalyDetector) Detect(totalAmount float64, invoiceDate *time.Time, confidence float64, invoiceNo string) (string, string) {
	var reasons []string

	if totalAmount > d.thresholds.AmountThreshold {
		reasons = append(reasons, fmt.Sprintf("金额>%v元需审批", d.thresholds.AmountThreshold))
	}

	if confidence < d.thresholds.ConfidenceThreshold {
		reasons = append(reasons, fmt.Sprintf("识别置信度低(%.0f%%)", confidence*100))
	}

	if invoiceDate != nil {
		daysAgo := daysBetween(*invoiceDate, d.now())
		if daysAgo > d.thresholds.DateMaxAgeDays {
			reasons = append(reasons, fmt.Sprintf("发票已超过%d天", d.thresholds.DateMaxAgeDays))
		} else if daysAgo < 0 {
			reasons = append(reasons, "发票日期在未来")
		}
	}

	switch len(reasons) {
	case 0:
		return models.AnomalyFlagNormal, ""
	case 1:
		return models.AnomalyFlagWarning, reasons[0]
	default:
		return models.AnomalyFlagError, strings.Join(reasons, "; ")
	}
}

// daysBetween counts whole calendar days from a to b, ignoring time of day.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}
