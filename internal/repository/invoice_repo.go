package repository

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/models"
)

const invoiceColumns = `id, invoice_no, invoice_date, invoice_type, seller_name, seller_tax_no,
		amount, tax_amount, total_amount, expense_category, reimbursement_person,
		confidence, anomaly_flag, anomaly_reason, image_path, raw_response,
		created_at, updated_at`

// InvoiceRepository handles invoice database operations.
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository.
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new invoice record. The identifier is assigned here and is
// immutable afterwards; creation and update timestamps are set to now.
func (r *InvoiceRepository) Create(invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now

	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		invoice.ID,
		invoice.InvoiceNo,
		nullableTime(invoice.InvoiceDate),
		invoice.InvoiceType,
		invoice.SellerName,
		invoice.SellerTaxNo,
		invoice.Amount,
		invoice.TaxAmount,
		invoice.TotalAmount,
		invoice.ExpenseCategory,
		invoice.ReimbursementPerson,
		invoice.Confidence,
		invoice.AnomalyFlag,
		invoice.AnomalyReason,
		invoice.ImagePath,
		invoice.RawResponse,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice", zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	return nil
}

// GetByID retrieves an invoice by its identifier. Returns (nil, nil) when no
// record exists.
func (r *InvoiceRepository) GetByID(id string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`

	invoice, err := scanInvoice(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return invoice, nil
}

// List returns a page of invoices, newest first, optionally filtered by
// expense category and by non-normal anomaly flag.
func (r *InvoiceRepository) List(page, size int, category string, anomalyOnly bool) ([]*models.Invoice, int, error) {
	var conditions []string
	var args []interface{}

	if category != "" {
		conditions = append(conditions, "expense_category = ?")
		args = append(args, category)
	}
	if anomalyOnly {
		conditions = append(conditions, "anomaly_flag != ?")
		args = append(args, models.AnomalyFlagNormal)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM invoices"+where, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count invoices", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, size, (page-1)*size)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices, err := collectInvoices(rows)
	if err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

// ListAll returns every invoice, newest first. Used by the export.
func (r *InvoiceRepository) ListAll() ([]*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices ORDER BY created_at DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	return collectInvoices(rows)
}

// ListByIDs returns the invoices matching the given identifiers. Unknown ids
// are silently skipped.
func (r *InvoiceRepository) ListByIDs(ids []string) ([]*models.Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id IN (` + placeholders + `) ORDER BY created_at`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list invoices by ids", zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices by ids: %w", err)
	}
	defer rows.Close()

	return collectInvoices(rows)
}

// Update applies a human correction to the restricted field subset and bumps
// updated_at. Fields left nil are unchanged.
func (r *InvoiceRepository) Update(id string, update *models.InvoiceUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if update.ExpenseCategory != nil {
		sets = append(sets, "expense_category = ?")
		args = append(args, *update.ExpenseCategory)
	}
	if update.ReimbursementPerson != nil {
		sets = append(sets, "reimbursement_person = ?")
		args = append(args, *update.ReimbursementPerson)
	}
	if update.AnomalyFlag != nil {
		sets = append(sets, "anomaly_flag = ?")
		args = append(args, *update.AnomalyFlag)
	}
	if update.AnomalyReason != nil {
		sets = append(sets, "anomaly_reason = ?")
		args = append(args, *update.AnomalyReason)
	}

	args = append(args, id)
	query := "UPDATE invoices SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	result, err := r.db.Exec(query, args...)
	if err != nil {
		r.logger.Error("Failed to update invoice", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// Delete removes an invoice record.
func (r *InvoiceRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM invoices WHERE id = ?", id)
	if err != nil {
		r.logger.Error("Failed to delete invoice", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete invoice: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// Summary aggregates all stored invoices per category plus grand totals and
// the count of non-normal records.
func (r *InvoiceRepository) Summary() (*models.Summary, error) {
	rows, err := r.db.Query(`
		SELECT expense_category, COUNT(*), COALESCE(SUM(amount), 0), COALESCE(SUM(tax_amount), 0)
		FROM invoices
		GROUP BY expense_category
		ORDER BY expense_category
	`)
	if err != nil {
		r.logger.Error("Failed to summarize invoices", zap.Error(err))
		return nil, fmt.Errorf("failed to summarize invoices: %w", err)
	}
	defer rows.Close()

	summary := &models.Summary{ByCategory: []models.CategorySummary{}}
	for rows.Next() {
		var row models.CategorySummary
		if err := rows.Scan(&row.Category, &row.Count, &row.Amount, &row.TaxAmount); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		if row.Category == "" {
			row.Category = "其他"
		}
		row.Amount = round2(row.Amount)
		row.TaxAmount = round2(row.TaxAmount)
		summary.ByCategory = append(summary.ByCategory, row)
		summary.TotalCount += row.Count
		summary.TotalAmount += row.Amount
		summary.TotalTax += row.TaxAmount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary rows: %w", err)
	}

	summary.TotalAmount = round2(summary.TotalAmount)
	summary.TotalTax = round2(summary.TotalTax)

	if err := r.db.QueryRow(
		"SELECT COUNT(*) FROM invoices WHERE anomaly_flag != ?",
		models.AnomalyFlagNormal,
	).Scan(&summary.AnomalyCount); err != nil {
		return nil, fmt.Errorf("failed to count anomalies: %w", err)
	}

	return summary, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var invoice models.Invoice
	var invoiceDate sql.NullTime

	err := row.Scan(
		&invoice.ID,
		&invoice.InvoiceNo,
		&invoiceDate,
		&invoice.InvoiceType,
		&invoice.SellerName,
		&invoice.SellerTaxNo,
		&invoice.Amount,
		&invoice.TaxAmount,
		&invoice.TotalAmount,
		&invoice.ExpenseCategory,
		&invoice.ReimbursementPerson,
		&invoice.Confidence,
		&invoice.AnomalyFlag,
		&invoice.AnomalyReason,
		&invoice.ImagePath,
		&invoice.RawResponse,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if invoiceDate.Valid {
		invoice.InvoiceDate = &invoiceDate.Time
	}

	return &invoice, nil
}

func collectInvoices(rows *sql.Rows) ([]*models.Invoice, error) {
	var invoices []*models.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
