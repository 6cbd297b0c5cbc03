package recognition

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Result is the typed view of one recognition response. The provider is
// best-effort: every field here already survived coercion, with anything
// missing or malformed resolved to its zero value. All "untrusted input"
// handling lives in this file so the business logic never touches raw maps.
type Result struct {
	DocType             string
	InvoiceNo           string
	InvoiceDate         *time.Time
	InvoiceType         string
	SellerName          string
	SellerTaxNo         string
	Amount              float64
	TaxAmount           float64
	TotalAmount         float64
	Items               []string
	Payee               string
	Handler             string
	Department          string
	ExpenseCategory     string
	ReimbursementPerson string
	Confidence          float64
	Raw                 string // original JSON payload, retained for audit
}

// ParseFields coerces an untrusted field map into a Result. Numeric fields
// may arrive as strings with currency symbols; coercion failure is treated as
// a missing value, never an error. Confidence defaults to 0.5 when absent,
// total amount to amount+tax.
func ParseFields(fields map[string]interface{}, raw string) *Result {
	result := &Result{
		DocType:             stringField(fields, "doc_type"),
		InvoiceNo:           stringField(fields, "invoice_no"),
		InvoiceDate:         ParseDate(stringField(fields, "invoice_date")),
		InvoiceType:         stringField(fields, "invoice_type"),
		SellerName:          stringField(fields, "seller_name"),
		SellerTaxNo:         stringField(fields, "seller_tax_no"),
		Amount:              floatField(fields, "amount"),
		TaxAmount:           floatField(fields, "tax_amount"),
		TotalAmount:         floatField(fields, "total_amount"),
		Items:               stringsField(fields, "items"),
		Payee:               stringField(fields, "payee"),
		Handler:             stringField(fields, "handler"),
		Department:          stringField(fields, "department"),
		ExpenseCategory:     stringField(fields, "expense_category"),
		ReimbursementPerson: stringField(fields, "reimbursement_person"),
		Confidence:          floatField(fields, "confidence"),
		Raw:                 raw,
	}

	if result.InvoiceType == "" {
		result.InvoiceType = result.DocType
	}
	if result.TotalAmount == 0 {
		result.TotalAmount = result.Amount + result.TaxAmount
	}
	if result.Confidence == 0 {
		result.Confidence = 0.5
	}

	return result
}

// ResolvePerson picks the reimbursement person with the precedence
// 经手人 > 领款人 > value supplied by the recognizer > caller default.
func (r *Result) ResolvePerson(defaultPerson string) string {
	for _, candidate := range []string{r.Handler, r.Payee, r.ReimbursementPerson} {
		if candidate != "" {
			return candidate
		}
	}
	return defaultPerson
}

// dateLayouts are the free-form date renderings the provider is known to
// emit. Non-padded layouts also match zero-padded input.
var dateLayouts = []string{"2006-1-2", "2006/1/2", "2006年1月2日", "2006.1.2"}

// ParseDate parses a free-form invoice date. Unparseable or empty input
// returns nil, never an error.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// decodeFields unmarshals a JSON object keeping numbers as json.Number so
// large invoice numbers survive untouched.
func decodeFields(raw string) (map[string]interface{}, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()

	var fields map[string]interface{}
	if err := decoder.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func stringField(fields map[string]interface{}, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func stringsField(fields map[string]interface{}, key string) []string {
	list, ok := fields[key].([]interface{})
	if !ok {
		return nil
	}

	var items []string
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			items = append(items, s)
		}
	}
	return items
}

// floatField coerces a numeric field that may arrive as a number or a string
// with currency decoration. Anything unparseable counts as 0.
func floatField(fields map[string]interface{}, key string) float64 {
	switch v := fields[key].(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case float64:
		return v
	case string:
		cleaned := strings.NewReplacer("¥", "", "￥", "", ",", "", " ", "").Replace(v)
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
