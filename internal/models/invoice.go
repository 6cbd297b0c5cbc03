package models

import "time"

// Anomaly flag values stored on an invoice record.
const (
	AnomalyFlagNormal  = "normal"
	AnomalyFlagWarning = "warning"
	AnomalyFlagError   = "error"
)

// Voucher line directions (借贷方向).
const (
	DirectionDebit  = "借"
	DirectionCredit = "贷"
)

// Invoice is the persisted record for one uploaded document. A failed
// recognition still produces a record, flagged error with zero confidence.
type Invoice struct {
	ID                  string     `json:"id"`
	InvoiceNo           string     `json:"invoice_no"`
	InvoiceDate         *time.Time `json:"invoice_date"`
	InvoiceType         string     `json:"invoice_type"`
	SellerName          string     `json:"seller_name"`
	SellerTaxNo         string     `json:"seller_tax_no"`
	Amount              float64    `json:"amount"`
	TaxAmount           float64    `json:"tax_amount"`
	TotalAmount         float64    `json:"total_amount"`
	ExpenseCategory     string     `json:"expense_category"`
	ReimbursementPerson string     `json:"reimbursement_person"`
	Confidence          float64    `json:"confidence"`
	AnomalyFlag         string     `json:"anomaly_flag"`
	AnomalyReason       string     `json:"anomaly_reason"`
	ImagePath           string     `json:"image_path"`
	RawResponse         string     `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// InvoiceUpdate carries the fields a human correction is allowed to change.
// Nil pointers mean "leave unchanged".
type InvoiceUpdate struct {
	ExpenseCategory     *string `json:"expense_category"`
	ReimbursementPerson *string `json:"reimbursement_person"`
	AnomalyFlag         *string `json:"anomaly_flag"`
	AnomalyReason       *string `json:"anomaly_reason"`
}

// CategorySummary is one row of the per-category rollup.
type CategorySummary struct {
	Category  string  `json:"category"`
	Count     int     `json:"count"`
	Amount    float64 `json:"amount"`
	TaxAmount float64 `json:"tax_amount"`
}

// Summary is the aggregate view over all stored invoices.
type Summary struct {
	ByCategory   []CategorySummary `json:"by_category"`
	TotalCount   int               `json:"total_count"`
	TotalAmount  float64           `json:"total_amount"`
	TotalTax     float64           `json:"total_tax"`
	AnomalyCount int               `json:"anomaly_count"`
}

// VoucherEntry is one debit or credit row of a balanced accounting entry.
// JSON keys follow the ledger import template column names, which the
// frontend and the exported workbook both rely on.
type VoucherEntry struct {
	PreparedDate     string   `json:"编制日期"`
	VoucherType      string   `json:"凭证类型"`
	SequenceNo       int      `json:"凭证序号"`
	VoucherNo        string   `json:"凭证号"`
	Maker            string   `json:"制单人"`
	AttachmentCount  int      `json:"附件张数"`
	FiscalPeriod     string   `json:"会计年度"`
	AccountCode      string   `json:"科目编码"`
	AccountName      string   `json:"科目名称"`
	Summary          string   `json:"凭证摘要"`
	Direction        string   `json:"借贷方向"`
	Amount           float64  `json:"金额"`
	Currency         string   `json:"币种"`
	ExchangeRate     float64  `json:"汇率"`
	OriginalAmount   float64  `json:"原币金额"`
	Quantity         *float64 `json:"数量"`
	UnitPrice        *float64 `json:"单价"`
	SettlementMethod string   `json:"结算方式名称"`
	SettlementDate   string   `json:"结算日期"`
	SettlementNo     string   `json:"结算票号"`
	BusinessDate     string   `json:"业务日期"`
	EmployeeNo       string   `json:"员工编号"`
	EmployeeName     string   `json:"员工姓名"`
	CounterpartyNo   string   `json:"往来单位编号"`
	CounterpartyName string   `json:"往来单位名称"`
	GoodsNo          string   `json:"货品编号"`
	GoodsName        string   `json:"货品名称"`
	Department       string   `json:"部门名称"`
	Project          string   `json:"项目名称"`
}
