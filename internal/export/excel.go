package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/models"
)

// Sheet names of the exported workbook. The layout and column order are a
// compatibility surface for the downstream ledger import.
const (
	sheetDetails   = "发票明细表"
	sheetSummary   = "汇总表"
	sheetAnomalies = "异常清单"
	sheetVouchers  = "凭证导入模板"
)

var detailHeaders = []string{
	"发票号", "日期", "类型", "销方名称", "金额", "税额", "价税合计",
	"费用科目", "报销人", "置信度", "状态", "异常原因",
}

var summaryHeaders = []string{"费用科目", "发票数量", "合计金额", "合计税额"}

var anomalyHeaders = []string{"发票号", "销方名称", "金额", "异常原因", "原图路径"}

var voucherHeaders = []string{
	"编制日期", "凭证类型", "凭证序号", "凭证号", "制单人", "附件张数", "会计年度",
	"科目编码", "科目名称", "凭证摘要", "借贷方向", "金额", "币种", "汇率", "原币金额",
	"数量", "单价", "结算方式名称", "结算日期", "结算票号", "业务日期", "员工编号",
	"员工姓名", "往来单位编号", "往来单位名称", "货品编号", "货品名称", "部门名称", "项目名称",
}

// Exporter renders the four-sheet invoice workbook.
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a workbook exporter.
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// BuildWorkbook renders invoice details, category summary, anomaly subset and
// voucher lines into an xlsx workbook held in memory.
func (e *Exporter) BuildWorkbook(
	invoices []*models.Invoice,
	summary []models.CategorySummary,
	anomalies []*models.Invoice,
	vouchers []models.VoucherEntry,
) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DAEEF3"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Style: 1},
			{Type: "right", Style: 1},
			{Type: "top", Style: 1},
			{Type: "bottom", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", sheetDetails); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{sheetSummary, sheetAnomalies, sheetVouchers} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	if err := e.fillDetails(f, headerStyle, sheetDetails, invoices); err != nil {
		return nil, err
	}
	if err := e.fillSummary(f, headerStyle, summary); err != nil {
		return nil, err
	}
	if err := e.fillAnomalies(f, headerStyle, anomalies); err != nil {
		return nil, err
	}
	if err := e.fillVouchers(f, headerStyle, vouchers); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Workbook built",
		zap.Int("invoices", len(invoices)),
		zap.Int("anomalies", len(anomalies)),
		zap.Int("voucher_lines", len(vouchers)))

	return buf, nil
}

func (e *Exporter) fillDetails(f *excelize.File, style int, sheet string, invoices []*models.Invoice) error {
	if err := writeHeader(f, sheet, style, detailHeaders); err != nil {
		return err
	}

	for i, inv := range invoices {
		status := "✓"
		if inv.AnomalyFlag != models.AnomalyFlagNormal {
			status = "⚠️"
		}

		date := ""
		if inv.InvoiceDate != nil {
			date = inv.InvoiceDate.Format("2006-01-02")
		}

		confidence := ""
		if inv.Confidence > 0 {
			confidence = fmt.Sprintf("%.0f%%", inv.Confidence*100)
		}

		row := []interface{}{
			inv.InvoiceNo,
			date,
			inv.InvoiceType,
			inv.SellerName,
			inv.Amount,
			inv.TaxAmount,
			inv.TotalAmount,
			inv.ExpenseCategory,
			inv.ReimbursementPerson,
			confidence,
			status,
			inv.AnomalyReason,
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}

	return autosize(f, sheet)
}

func (e *Exporter) fillSummary(f *excelize.File, style int, summary []models.CategorySummary) error {
	if err := writeHeader(f, sheetSummary, style, summaryHeaders); err != nil {
		return err
	}

	for i, item := range summary {
		row := []interface{}{item.Category, item.Count, item.Amount, item.TaxAmount}
		if err := writeRow(f, sheetSummary, i+2, row); err != nil {
			return err
		}
	}

	return autosize(f, sheetSummary)
}

func (e *Exporter) fillAnomalies(f *excelize.File, style int, anomalies []*models.Invoice) error {
	if err := writeHeader(f, sheetAnomalies, style, anomalyHeaders); err != nil {
		return err
	}

	for i, inv := range anomalies {
		row := []interface{}{
			inv.InvoiceNo,
			inv.SellerName,
			inv.TotalAmount,
			inv.AnomalyReason,
			inv.ImagePath,
		}
		if err := writeRow(f, sheetAnomalies, i+2, row); err != nil {
			return err
		}
	}

	return autosize(f, sheetAnomalies)
}

func (e *Exporter) fillVouchers(f *excelize.File, style int, vouchers []models.VoucherEntry) error {
	if err := writeHeader(f, sheetVouchers, style, voucherHeaders); err != nil {
		return err
	}

	for i, v := range vouchers {
		row := []interface{}{
			v.PreparedDate,
			v.VoucherType,
			v.SequenceNo,
			v.VoucherNo,
			v.Maker,
			v.AttachmentCount,
			v.FiscalPeriod,
			v.AccountCode,
			v.AccountName,
			v.Summary,
			v.Direction,
			v.Amount,
			v.Currency,
			v.ExchangeRate,
			v.OriginalAmount,
			optionalNumber(v.Quantity),
			optionalNumber(v.UnitPrice),
			v.SettlementMethod,
			v.SettlementDate,
			v.SettlementNo,
			v.BusinessDate,
			v.EmployeeNo,
			v.EmployeeName,
			v.CounterpartyNo,
			v.CounterpartyName,
			v.GoodsNo,
			v.GoodsName,
			v.Department,
			v.Project,
		}
		if err := writeRow(f, sheetVouchers, i+2, row); err != nil {
			return err
		}
	}

	return autosize(f, sheetVouchers)
}

func writeHeader(f *excelize.File, sheet string, style int, headers []string) error {
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := writeRow(f, sheet, 1, row); err != nil {
		return err
	}

	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return fmt.Errorf("failed to resolve column name: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("failed to resolve cell: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

// autosize widens each column to its longest cell content, capped at 50.
func autosize(f *excelize.File, sheet string) error {
	cols, err := f.GetCols(sheet)
	if err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}

	for i, col := range cols {
		maxLen := 0
		for _, cell := range col {
			if len([]rune(cell)) > maxLen {
				maxLen = len([]rune(cell))
			}
		}

		width := float64(maxLen + 2)
		if width > 50 {
			width = 50
		}

		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to resolve column name: %w", err)
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	return nil
}

func optionalNumber(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
