package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/models"
)

func buildTestWorkbook(t *testing.T) *excelize.File {
	t.Helper()

	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	invoices := []*models.Invoice{
		{
			InvoiceNo:           "25442000000012345678",
			InvoiceDate:         &date,
			InvoiceType:         "增值税普票",
			SellerName:          "滴滴出行科技有限公司",
			Amount:              100,
			TaxAmount:           6,
			TotalAmount:         106,
			ExpenseCategory:     "交通费",
			ReimbursementPerson: "张三",
			Confidence:          0.95,
			AnomalyFlag:         models.AnomalyFlagNormal,
		},
		{
			InvoiceNo:       "25442000000087654321",
			SellerName:      "北京国际酒店",
			TotalAmount:     6000,
			ExpenseCategory: "差旅费-住宿",
			AnomalyFlag:     models.AnomalyFlagWarning,
			AnomalyReason:   "金额>5000元需审批",
			ImagePath:       "uploads/abc.jpg",
		},
	}

	summary := []models.CategorySummary{
		{Category: "交通费", Count: 1, Amount: 100, TaxAmount: 6},
		{Category: "差旅费-住宿", Count: 1, Amount: 6000, TaxAmount: 0},
	}

	vouchers := []models.VoucherEntry{
		{
			PreparedDate: "2025-06-15",
			VoucherType:  "转",
			SequenceNo:   1,
			VoucherNo:    "1",
			AccountCode:  "660206",
			AccountName:  "管理费用-交通费",
			Summary:      "报销2025-06交通费费用",
			Direction:    models.DirectionDebit,
			Amount:       106,
		},
		{
			PreparedDate: "2025-06-15",
			VoucherType:  "转",
			SequenceNo:   1,
			VoucherNo:    "1",
			AccountCode:  "2241",
			AccountName:  "其他应付款-员工",
			Direction:    models.DirectionCredit,
			Amount:       106,
		},
	}

	exporter := NewExporter(zap.NewNop())
	buf, err := exporter.BuildWorkbook(invoices, summary, invoices[1:], vouchers)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestBuildWorkbook_Sheets(t *testing.T) {
	f := buildTestWorkbook(t)
	assert.Equal(t, []string{"发票明细表", "汇总表", "异常清单", "凭证导入模板"}, f.GetSheetList())
}

func TestBuildWorkbook_DetailSheet(t *testing.T) {
	f := buildTestWorkbook(t)

	rows, err := f.GetRows("发票明细表")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "发票号", rows[0][0])
	assert.Equal(t, "状态", rows[0][10])

	first := rows[1]
	assert.Equal(t, "25442000000012345678", first[0])
	assert.Equal(t, "2025-06-01", first[1])
	assert.Equal(t, "滴滴出行科技有限公司", first[3])
	assert.Equal(t, "106", first[6])
	assert.Equal(t, "95%", first[9])
	assert.Equal(t, "✓", first[10])

	second := rows[2]
	assert.Equal(t, "", second[1]) // missing date renders empty
	assert.Equal(t, "⚠️", second[10])
	assert.Equal(t, "金额>5000元需审批", second[11])
}

func TestBuildWorkbook_SummarySheet(t *testing.T) {
	f := buildTestWorkbook(t)

	rows, err := f.GetRows("汇总表")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"费用科目", "发票数量", "合计金额", "合计税额"}, rows[0])
	assert.Equal(t, "交通费", rows[1][0])
	assert.Equal(t, "1", rows[1][1])
	assert.Equal(t, "6000", rows[2][2])
}

func TestBuildWorkbook_AnomalySheet(t *testing.T) {
	f := buildTestWorkbook(t)

	rows, err := f.GetRows("异常清单")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	anomaly := rows[1]
	assert.Equal(t, "25442000000087654321", anomaly[0])
	assert.Equal(t, "北京国际酒店", anomaly[1])
	assert.Equal(t, "金额>5000元需审批", anomaly[3])
	assert.Equal(t, "uploads/abc.jpg", anomaly[4])
}

func TestBuildWorkbook_VoucherSheet(t *testing.T) {
	f := buildTestWorkbook(t)

	rows, err := f.GetRows("凭证导入模板")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	header := rows[0]
	require.Len(t, header, 29)
	assert.Equal(t, "编制日期", header[0])
	assert.Equal(t, "科目编码", header[7])
	assert.Equal(t, "借贷方向", header[10])
	assert.Equal(t, "项目名称", header[28])

	debit := rows[1]
	assert.Equal(t, "660206", debit[7])
	assert.Equal(t, "借", debit[10])
	assert.Equal(t, "106", debit[11])

	credit := rows[2]
	assert.Equal(t, "2241", credit[7])
	assert.Equal(t, "贷", credit[10])
}

func TestBuildWorkbook_Empty(t *testing.T) {
	exporter := NewExporter(zap.NewNop())
	buf, err := exporter.BuildWorkbook(nil, nil, nil, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("发票明细表")
	require.NoError(t, err)
	require.Len(t, rows, 1) // header only
}
