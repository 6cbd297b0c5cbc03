package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/expense"
	"github.com/garyjia/invoice-ledger/internal/models"
	"github.com/garyjia/invoice-ledger/internal/recognition"
	"github.com/garyjia/invoice-ledger/internal/voucher"
)

// Service-level error conditions the HTTP layer translates to status codes.
var (
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrNoInvoicesMatched = errors.New("no invoices matched")
	ErrBatchTooLarge     = errors.New("too many files in batch")
)

// allowedExtensions whitelists upload file types.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
}

// Recognizer extracts structured fields from an uploaded document.
type Recognizer interface {
	Recognize(ctx context.Context, filePath string) (*recognition.Result, error)
}

// InvoiceRepository is the persistence surface the service depends on.
type InvoiceRepository interface {
	Create(invoice *models.Invoice) error
	GetByID(id string) (*models.Invoice, error)
	List(page, size int, category string, anomalyOnly bool) ([]*models.Invoice, int, error)
	ListAll() ([]*models.Invoice, error)
	ListByIDs(ids []string) ([]*models.Invoice, error)
	Update(id string, update *models.InvoiceUpdate) error
	Delete(id string) error
	Summary() (*models.Summary, error)
}

// FileStore persists uploaded images.
type FileStore interface {
	Save(content []byte, ext string) (string, error)
	Delete(path string) error
}

// Exporter renders the multi-sheet workbook.
type Exporter interface {
	BuildWorkbook(invoices []*models.Invoice, summary []models.CategorySummary, anomalies []*models.Invoice, vouchers []models.VoucherEntry) (*bytes.Buffer, error)
}

// Limits bound one upload batch.
type Limits struct {
	MaxFilesPerBatch int
	MaxFileSize      int64
	Workers          int // concurrent recognitions per batch
}

// UploadFile is one file of an upload batch.
type UploadFile struct {
	Filename string
	Content  []byte
}

// UploadResult summarizes one processed batch.
type UploadResult struct {
	TaskID     string `json:"task_id"`
	TotalCount int    `json:"total_count"`
	Processed  int    `json:"processed"`
	Message    string `json:"message"`
}

// VoucherBatch is the voucher generation output.
type VoucherBatch struct {
	Vouchers    []models.VoucherEntry `json:"vouchers"`
	TotalDebit  float64               `json:"total_debit"`
	TotalCredit float64               `json:"total_credit"`
}

// InvoiceService orchestrates the document-to-ledger pipeline: store upload,
// recognize, classify, flag anomalies, persist, and derive vouchers/exports.
type InvoiceService struct {
	repo       InvoiceRepository
	store      FileStore
	recognizer Recognizer
	exporter   Exporter
	classifier *expense.Classifier
	detector   *expense.AnomalyDetector
	limits     Limits
	logger     *zap.Logger
}

// NewInvoiceService wires the pipeline together.
func NewInvoiceService(
	repo InvoiceRepository,
	store FileStore,
	recognizer Recognizer,
	exporter Exporter,
	classifier *expense.Classifier,
	detector *expense.AnomalyDetector,
	limits Limits,
	logger *zap.Logger,
) *InvoiceService {
	if limits.Workers <= 0 {
		limits.Workers = 4
	}
	return &InvoiceService{
		repo:       repo,
		store:      store,
		recognizer: recognizer,
		exporter:   exporter,
		classifier: classifier,
		detector:   detector,
		limits:     limits,
		logger:     logger,
	}
}

// ProcessBatch stores and recognizes an upload batch. Files are processed
// with bounded concurrency and failures are isolated per file: a failed
// recognition still creates an error-flagged record and never aborts the
// rest of the batch.
func (s *InvoiceService) ProcessBatch(ctx context.Context, files []UploadFile, defaultPerson string) (*UploadResult, error) {
	if len(files) > s.limits.MaxFilesPerBatch {
		return nil, fmt.Errorf("%w: limit %d", ErrBatchTooLarge, s.limits.MaxFilesPerBatch)
	}

	taskID := uuid.NewString()
	s.logger.Info("Processing upload batch",
		zap.String("task_id", taskID),
		zap.Int("file_count", len(files)))

	var (
		mu        sync.Mutex
		processed int
		wg        sync.WaitGroup
	)
	sem := make(chan struct{}, s.limits.Workers)

	for _, file := range files {
		if file.Filename == "" {
			continue
		}

		ext := strings.ToLower(filepath.Ext(file.Filename))
		if !allowedExtensions[ext] {
			s.logger.Warn("Skipping unsupported file type",
				zap.String("task_id", taskID),
				zap.String("filename", file.Filename))
			continue
		}
		if int64(len(file.Content)) > s.limits.MaxFileSize {
			s.logger.Warn("Skipping oversized file",
				zap.String("task_id", taskID),
				zap.String("filename", file.Filename),
				zap.Int("size", len(file.Content)))
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(file UploadFile, ext string) {
			defer wg.Done()
			defer func() { <-sem }()

			if s.processFile(ctx, taskID, file, ext, defaultPerson) {
				mu.Lock()
				processed++
				mu.Unlock()
			}
		}(file, ext)
	}

	wg.Wait()

	return &UploadResult{
		TaskID:     taskID,
		TotalCount: len(files),
		Processed:  processed,
		Message:    fmt.Sprintf("成功处理 %d/%d 张发票", processed, len(files)),
	}, nil
}

// processFile handles one upload end to end and reports whether recognition
// succeeded.
func (s *InvoiceService) processFile(ctx context.Context, taskID string, file UploadFile, ext, defaultPerson string) bool {
	path, err := s.store.Save(file.Content, ext)
	if err != nil {
		s.logger.Error("Failed to store upload",
			zap.String("task_id", taskID),
			zap.String("filename", file.Filename),
			zap.Error(err))
		return false
	}

	result, err := s.recognizer.Recognize(ctx, path)
	if err != nil {
		s.logger.Warn("Recognition failed, creating error record",
			zap.String("task_id", taskID),
			zap.String("filename", file.Filename),
			zap.Error(err))

		record := &models.Invoice{
			ReimbursementPerson: defaultPerson,
			AnomalyFlag:         models.AnomalyFlagError,
			AnomalyReason:       "识别失败",
			ImagePath:           path,
		}
		if err := s.repo.Create(record); err != nil {
			s.logger.Error("Failed to persist error record", zap.Error(err))
		}
		return false
	}

	record := s.buildRecord(result, path, defaultPerson)
	if err := s.repo.Create(record); err != nil {
		s.logger.Error("Failed to persist invoice",
			zap.String("task_id", taskID),
			zap.String("filename", file.Filename),
			zap.Error(err))
		return false
	}

	return true
}

// buildRecord turns a recognition result into a persisted invoice: category
// via the classifier when the recognizer left it blank, reimbursement person
// by precedence, anomaly flag from the rule engine.
func (s *InvoiceService) buildRecord(result *recognition.Result, path, defaultPerson string) *models.Invoice {
	category := result.ExpenseCategory
	if category == "" {
		category = s.classifier.Classify(result.SellerName, result.Items)
	}

	flag, reason := s.detector.Detect(result.TotalAmount, result.InvoiceDate, result.Confidence, result.InvoiceNo)

	return &models.Invoice{
		InvoiceNo:           result.InvoiceNo,
		InvoiceDate:         result.InvoiceDate,
		InvoiceType:         result.InvoiceType,
		SellerName:          result.SellerName,
		SellerTaxNo:         result.SellerTaxNo,
		Amount:              result.Amount,
		TaxAmount:           result.TaxAmount,
		TotalAmount:         result.TotalAmount,
		ExpenseCategory:     category,
		ReimbursementPerson: result.ResolvePerson(defaultPerson),
		Confidence:          result.Confidence,
		AnomalyFlag:         flag,
		AnomalyReason:       reason,
		ImagePath:           path,
		RawResponse:         result.Raw,
	}
}

// Get returns one invoice or ErrInvoiceNotFound.
func (s *InvoiceService) Get(id string) (*models.Invoice, error) {
	invoice, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, ErrInvoiceNotFound
	}
	return invoice, nil
}

// List returns a page of invoices with optional filters. Page and size are
// clamped to sane bounds.
func (s *InvoiceService) List(page, size int, category string, anomalyOnly bool) ([]*models.Invoice, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return s.repo.List(page, size, category, anomalyOnly)
}

// Update applies a human correction to the restricted field subset and
// returns the updated record.
func (s *InvoiceService) Update(id string, update *models.InvoiceUpdate) (*models.Invoice, error) {
	if err := s.repo.Update(id, update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return s.Get(id)
}

// Delete removes a record and its stored image.
func (s *InvoiceService) Delete(id string) error {
	invoice, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if invoice == nil {
		return ErrInvoiceNotFound
	}

	if err := s.store.Delete(invoice.ImagePath); err != nil {
		s.logger.Warn("Failed to delete invoice image",
			zap.String("id", id),
			zap.String("path", invoice.ImagePath),
			zap.Error(err))
	}

	if err := s.repo.Delete(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvoiceNotFound
		}
		return err
	}
	return nil
}

// Summary returns the per-category rollup over all stored invoices.
func (s *InvoiceService) Summary() (*models.Summary, error) {
	return s.repo.Summary()
}

// GenerateVouchers derives balanced voucher lines for the selected records.
// No matching records is a caller error: the aggregator itself accepts empty
// input, so the not-found condition is surfaced here.
func (s *InvoiceService) GenerateVouchers(ids []string, opts voucher.Options) (*VoucherBatch, error) {
	invoices, err := s.repo.ListByIDs(ids)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, ErrNoInvoicesMatched
	}

	entries := voucher.Generate(invoices, opts)

	batch := &VoucherBatch{Vouchers: entries}
	for _, entry := range entries {
		switch entry.Direction {
		case models.DirectionDebit:
			batch.TotalDebit += entry.Amount
		case models.DirectionCredit:
			batch.TotalCredit += entry.Amount
		}
	}

	return batch, nil
}

// Export renders the full workbook: all invoices, the category summary, the
// anomaly subset and voucher lines dated today.
func (s *InvoiceService) Export() (*bytes.Buffer, string, error) {
	invoices, err := s.repo.ListAll()
	if err != nil {
		return nil, "", err
	}

	summary, err := s.repo.Summary()
	if err != nil {
		return nil, "", err
	}

	var anomalies []*models.Invoice
	for _, inv := range invoices {
		if inv.AnomalyFlag != models.AnomalyFlagNormal {
			anomalies = append(anomalies, inv)
		}
	}

	today := time.Now().Format("2006-01-02")
	vouchers := voucher.Generate(invoices, voucher.Options{VoucherDate: today})

	buf, err := s.exporter.BuildWorkbook(invoices, summary.ByCategory, anomalies, vouchers)
	if err != nil {
		return nil, "", err
	}

	return buf, fmt.Sprintf("invoices_%s.xlsx", today), nil
}
