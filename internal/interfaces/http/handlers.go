package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/models"
	"github.com/garyjia/invoice-ledger/internal/service"
	"github.com/garyjia/invoice-ledger/internal/voucher"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains the invoice HTTP request handlers. Response shapes
// follow the frontend contract: list/summary/upload payloads in snake_case,
// errors as {"detail": ...}.
type Handlers struct {
	invoices *service.InvoiceService
	maxFiles int
	logger   *zap.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(invoices *service.InvoiceService, maxFiles int, logger *zap.Logger) *Handlers {
	return &Handlers{
		invoices: invoices,
		maxFiles: maxFiles,
		logger:   logger,
	}
}

// listResponse is the paginated invoice listing.
type listResponse struct {
	Items []*models.Invoice `json:"items"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
}

type listQuery struct {
	Page        int    `form:"page,default=1"`
	Size        int    `form:"size,default=20"`
	Category    string `form:"category"`
	AnomalyOnly bool   `form:"anomaly_only"`
}

type voucherGenerateRequest struct {
	InvoiceIDs  []string `json:"invoice_ids" binding:"required"`
	VoucherDate string   `json:"voucher_date" binding:"required"`
	VoucherType string   `json:"voucher_type"`
	Maker       string   `json:"maker"`
	Department  string   `json:"department"`
}

// Upload handles POST /api/invoices/upload: a multipart batch of invoice
// images, optionally with a default reimbursement person.
func (h *Handlers) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid multipart form"})
		return
	}

	person := c.PostForm("reimbursement_person")
	if person == "" {
		person = c.Query("reimbursement_person")
	}

	fileHeaders := form.File["files"]
	files := make([]service.UploadFile, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		f, err := header.Open()
		if err != nil {
			h.logger.Warn("Failed to open uploaded file",
				zap.String("filename", header.Filename),
				zap.Error(err))
			continue
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			h.logger.Warn("Failed to read uploaded file",
				zap.String("filename", header.Filename),
				zap.Error(err))
			continue
		}
		files = append(files, service.UploadFile{Filename: header.Filename, Content: content})
	}

	result, err := h.invoices.ProcessBatch(c.Request.Context(), files, person)
	if err != nil {
		if errors.Is(err, service.ErrBatchTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{
				"detail": fmt.Sprintf("最多支持 %d 张发票同时上传", h.maxFiles),
			})
			return
		}
		h.logger.Error("Upload batch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "upload failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// List handles GET /api/invoices with pagination and optional category /
// anomaly-only filters.
func (h *Handlers) List(c *gin.Context) {
	var query listQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid query parameters"})
		return
	}

	items, total, err := h.invoices.List(query.Page, query.Size, query.Category, query.AnomalyOnly)
	if err != nil {
		h.logger.Error("Failed to list invoices", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to list invoices"})
		return
	}

	if items == nil {
		items = []*models.Invoice{}
	}

	c.JSON(http.StatusOK, listResponse{
		Items: items,
		Total: total,
		Page:  query.Page,
		Size:  query.Size,
	})
}

// Summary handles GET /api/invoices/summary.
func (h *Handlers) Summary(c *gin.Context) {
	summary, err := h.invoices.Summary()
	if err != nil {
		h.logger.Error("Failed to summarize invoices", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to summarize invoices"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Export handles GET /api/invoices/export and streams the 4-sheet workbook.
func (h *Handlers) Export(c *gin.Context) {
	buf, filename, err := h.invoices.Export()
	if err != nil {
		h.logger.Error("Failed to export workbook", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to export workbook"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Update handles PATCH /api/invoices/:id, the human-correction endpoint.
// Only the restricted field subset is accepted.
func (h *Handlers) Update(c *gin.Context) {
	var update models.InvoiceUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	invoice, err := h.invoices.Update(c.Param("id"), &update)
	if err != nil {
		if errors.Is(err, service.ErrInvoiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "发票不存在"})
			return
		}
		h.logger.Error("Failed to update invoice", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to update invoice"})
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// Delete handles DELETE /api/invoices/:id, removing the record and its
// stored image.
func (h *Handlers) Delete(c *gin.Context) {
	if err := h.invoices.Delete(c.Param("id")); err != nil {
		if errors.Is(err, service.ErrInvoiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "发票不存在"})
			return
		}
		h.logger.Error("Failed to delete invoice", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to delete invoice"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}

// GenerateVouchers handles POST /api/invoices/vouchers/generate.
func (h *Handlers) GenerateVouchers(c *gin.Context) {
	var req voucherGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	batch, err := h.invoices.GenerateVouchers(req.InvoiceIDs, voucher.Options{
		VoucherDate: req.VoucherDate,
		VoucherType: req.VoucherType,
		Maker:       req.Maker,
		Department:  req.Department,
	})
	if err != nil {
		if errors.Is(err, service.ErrNoInvoicesMatched) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "未找到指定发票"})
			return
		}
		h.logger.Error("Failed to generate vouchers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to generate vouchers"})
		return
	}

	c.JSON(http.StatusOK, batch)
}
