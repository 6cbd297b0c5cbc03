package voucher

import (
	"fmt"
	"math"
	"strings"

	"github.com/garyjia/invoice-ledger/internal/expense"
	"github.com/garyjia/invoice-ledger/internal/models"
)

// Options control the header fields shared by every generated voucher line.
type Options struct {
	VoucherDate string // 编制日期, YYYY-MM-DD
	VoucherType string // 凭证类型, defaults to 转
	Maker       string // 制单人, defaults to 系统
	Department  string // 部门名称
}

func (o *Options) applyDefaults() {
	if o.VoucherType == "" {
		o.VoucherType = "转"
	}
	if o.Maker == "" {
		o.Maker = "系统"
	}
}

// categoryGroup accumulates one expense category of the input batch.
type categoryGroup struct {
	amount     float64
	tax        float64
	count      int
	first      *models.Invoice
	sellers    []string // distinct non-empty seller names, first-seen order
	sellerSeen map[string]bool
}

// Generate turns a batch of invoice records into a balanced accounting entry:
// one debit line per expense category present (amount and tax combined) and a
// single consolidated credit line against 其他应付款-员工. Every line of one
// batch shares voucher sequence number 1. Amounts are rounded to 2 decimals
// per line, never on the aggregate; with many categories this can drift by a
// cent against the credit line, which is the accepted contract. Empty input
// yields empty output — the "nothing matched" error belongs to the caller.
func Generate(invoices []*models.Invoice, opts Options) []models.VoucherEntry {
	if len(invoices) == 0 {
		return nil
	}
	opts.applyDefaults()

	groups := make(map[string]*categoryGroup)
	var order []string

	var persons []string // distinct reimbursement persons across the batch
	personSeen := make(map[string]bool)

	for _, inv := range invoices {
		category := inv.ExpenseCategory
		if category == "" {
			category = expense.CategoryOther
		}

		group, ok := groups[category]
		if !ok {
			group = &categoryGroup{sellerSeen: make(map[string]bool)}
			groups[category] = group
			order = append(order, category)
		}

		group.amount += inv.Amount
		group.tax += inv.TaxAmount
		group.count++
		if group.first == nil {
			group.first = inv
		}
		if inv.SellerName != "" && !group.sellerSeen[inv.SellerName] {
			group.sellerSeen[inv.SellerName] = true
			group.sellers = append(group.sellers, inv.SellerName)
		}
		if inv.ReimbursementPerson != "" && !personSeen[inv.ReimbursementPerson] {
			personSeen[inv.ReimbursementPerson] = true
			persons = append(persons, inv.ReimbursementPerson)
		}
	}

	const voucherNo = 1 // single running counter shared across the batch
	month := voucherMonth(opts.VoucherDate)
	fiscalPeriod := strings.ReplaceAll(month, "-", "")

	entries := make([]models.VoucherEntry, 0, len(order)+1)
	var totalAmount float64
	var totalCount int

	for _, category := range order {
		group := groups[category]
		account := expense.ResolveAccount(category)
		total := round2(group.amount + group.tax)

		entries = append(entries, models.VoucherEntry{
			PreparedDate:     opts.VoucherDate,
			VoucherType:      opts.VoucherType,
			SequenceNo:       voucherNo,
			VoucherNo:        fmt.Sprintf("%d", voucherNo),
			Maker:            opts.Maker,
			AttachmentCount:  group.count,
			FiscalPeriod:     fiscalPeriod,
			AccountCode:      account.Code,
			AccountName:      account.Name,
			Summary:          fmt.Sprintf("报销%s%s费用", month, category),
			Direction:        models.DirectionDebit,
			Amount:           total,
			Currency:         "人民币",
			ExchangeRate:     1.0,
			OriginalAmount:   total,
			BusinessDate:     opts.VoucherDate,
			EmployeeName:     group.first.ReimbursementPerson,
			CounterpartyName: rollupNames(group.sellers, "家"),
			Department:       opts.Department,
		})

		totalAmount += group.amount + group.tax
		totalCount += group.count
	}

	total := round2(totalAmount)
	entries = append(entries, models.VoucherEntry{
		PreparedDate:    opts.VoucherDate,
		VoucherType:     opts.VoucherType,
		SequenceNo:      voucherNo,
		VoucherNo:       fmt.Sprintf("%d", voucherNo),
		Maker:           opts.Maker,
		AttachmentCount: totalCount,
		FiscalPeriod:    fiscalPeriod,
		AccountCode:     expense.CreditAccount.Code,
		AccountName:     expense.CreditAccount.Name,
		Summary:         fmt.Sprintf("报销%s费用", month),
		Direction:       models.DirectionCredit,
		Amount:          total,
		Currency:        "人民币",
		ExchangeRate:    1.0,
		OriginalAmount:  total,
		BusinessDate:    opts.VoucherDate,
		EmployeeName:    rollupNames(persons, "人"),
		Department:      opts.Department,
	})

	return entries
}

// rollupNames renders a distinct-name set as the sole name, "首个等N家" /
// "首个等N人" for several, or empty for none.
func rollupNames(names []string, unit string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return fmt.Sprintf("%s等%d%s", names[0], len(names), unit)
	}
}

// voucherMonth extracts the YYYY-MM prefix of a voucher date.
func voucherMonth(voucherDate string) string {
	if len(voucherDate) > 7 {
		return voucherDate[:7]
	}
	return voucherDate
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
