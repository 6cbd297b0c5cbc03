package repository

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/models"
)

func newTestRepo(t *testing.T) *InvoiceRepository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../migrations/001_create_invoices.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return NewInvoiceRepository(db, zap.NewNop())
}

func testInvoice(category string, amount, tax float64) *models.Invoice {
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &models.Invoice{
		InvoiceNo:           "25442000000012345678",
		InvoiceDate:         &date,
		InvoiceType:         "增值税普票",
		SellerName:          "测试公司",
		SellerTaxNo:         "91110000MA12345678",
		Amount:              amount,
		TaxAmount:           tax,
		TotalAmount:         amount + tax,
		ExpenseCategory:     category,
		ReimbursementPerson: "张三",
		Confidence:          0.95,
		AnomalyFlag:         models.AnomalyFlagNormal,
	}
}

func TestInvoiceRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)

	invoice := testInvoice("交通费", 100, 6)
	require.NoError(t, repo.Create(invoice))
	assert.NotEmpty(t, invoice.ID)
	assert.False(t, invoice.CreatedAt.IsZero())

	got, err := repo.GetByID(invoice.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, invoice.ID, got.ID)
	assert.Equal(t, "25442000000012345678", got.InvoiceNo)
	assert.Equal(t, "交通费", got.ExpenseCategory)
	assert.Equal(t, 106.0, got.TotalAmount)
	require.NotNil(t, got.InvoiceDate)
	assert.Equal(t, "2025-06-01", got.InvoiceDate.Format("2006-01-02"))
}

func TestInvoiceRepository_GetByID_Missing(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetByID("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInvoiceRepository_NilInvoiceDate(t *testing.T) {
	repo := newTestRepo(t)

	invoice := testInvoice("其他", 10, 0)
	invoice.InvoiceDate = nil
	require.NoError(t, repo.Create(invoice))

	got, err := repo.GetByID(invoice.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.InvoiceDate)
}

func TestInvoiceRepository_List(t *testing.T) {
	repo := newTestRepo(t)

	first := testInvoice("交通费", 100, 6)
	require.NoError(t, repo.Create(first))
	time.Sleep(2 * time.Millisecond)

	second := testInvoice("办公费", 200, 26)
	second.AnomalyFlag = models.AnomalyFlagWarning
	require.NoError(t, repo.Create(second))
	time.Sleep(2 * time.Millisecond)

	third := testInvoice("交通费", 50, 3)
	third.AnomalyFlag = models.AnomalyFlagError
	require.NoError(t, repo.Create(third))

	t.Run("newest first", func(t *testing.T) {
		invoices, total, err := repo.List(1, 20, "", false)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, invoices, 3)
		assert.Equal(t, third.ID, invoices[0].ID)
		assert.Equal(t, first.ID, invoices[2].ID)
	})

	t.Run("category filter", func(t *testing.T) {
		invoices, total, err := repo.List(1, 20, "交通费", false)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, invoices, 2)
		for _, inv := range invoices {
			assert.Equal(t, "交通费", inv.ExpenseCategory)
		}
	})

	t.Run("anomaly filter", func(t *testing.T) {
		invoices, total, err := repo.List(1, 20, "", true)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, invoices, 2)
		for _, inv := range invoices {
			assert.NotEqual(t, models.AnomalyFlagNormal, inv.AnomalyFlag)
		}
	})

	t.Run("combined filters", func(t *testing.T) {
		invoices, total, err := repo.List(1, 20, "交通费", true)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, invoices, 1)
		assert.Equal(t, third.ID, invoices[0].ID)
	})

	t.Run("pagination", func(t *testing.T) {
		pageOne, total, err := repo.List(1, 2, "", false)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, pageOne, 2)

		pageTwo, _, err := repo.List(2, 2, "", false)
		require.NoError(t, err)
		require.Len(t, pageTwo, 1)
		assert.Equal(t, first.ID, pageTwo[0].ID)
	})
}

func TestInvoiceRepository_ListByIDs(t *testing.T) {
	repo := newTestRepo(t)

	a := testInvoice("交通费", 100, 6)
	require.NoError(t, repo.Create(a))
	b := testInvoice("办公费", 200, 26)
	require.NoError(t, repo.Create(b))

	invoices, err := repo.ListByIDs([]string{a.ID, "no-such-id", b.ID})
	require.NoError(t, err)
	assert.Len(t, invoices, 2)

	invoices, err = repo.ListByIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestInvoiceRepository_Update(t *testing.T) {
	repo := newTestRepo(t)

	invoice := testInvoice("其他", 100, 6)
	require.NoError(t, repo.Create(invoice))

	category := "交通费"
	flag := models.AnomalyFlagNormal
	reason := ""
	err := repo.Update(invoice.ID, &models.InvoiceUpdate{
		ExpenseCategory: &category,
		AnomalyFlag:     &flag,
		AnomalyReason:   &reason,
	})
	require.NoError(t, err)

	got, err := repo.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "交通费", got.ExpenseCategory)
	assert.Equal(t, models.AnomalyFlagNormal, got.AnomalyFlag)
	// Untouched fields survive.
	assert.Equal(t, "张三", got.ReimbursementPerson)
	assert.Equal(t, 106.0, got.TotalAmount)
}

func TestInvoiceRepository_Update_Missing(t *testing.T) {
	repo := newTestRepo(t)

	category := "交通费"
	err := repo.Update("does-not-exist", &models.InvoiceUpdate{ExpenseCategory: &category})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestInvoiceRepository_Delete(t *testing.T) {
	repo := newTestRepo(t)

	invoice := testInvoice("其他", 100, 6)
	require.NoError(t, repo.Create(invoice))

	require.NoError(t, repo.Delete(invoice.ID))

	got, err := repo.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, repo.Delete(invoice.ID), sql.ErrNoRows)
}

func TestInvoiceRepository_Summary(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Create(testInvoice("交通费", 100, 6)))
	require.NoError(t, repo.Create(testInvoice("交通费", 50.55, 3.04)))

	office := testInvoice("办公费", 200, 26)
	office.AnomalyFlag = models.AnomalyFlagWarning
	require.NoError(t, repo.Create(office))

	uncategorized := testInvoice("", 10, 0)
	uncategorized.AnomalyFlag = models.AnomalyFlagError
	require.NoError(t, repo.Create(uncategorized))

	summary, err := repo.Summary()
	require.NoError(t, err)

	assert.Equal(t, 4, summary.TotalCount)
	assert.Equal(t, 2, summary.AnomalyCount)
	require.Len(t, summary.ByCategory, 3)

	byName := make(map[string]models.CategorySummary)
	for _, row := range summary.ByCategory {
		byName[row.Category] = row
	}

	transport := byName["交通费"]
	assert.Equal(t, 2, transport.Count)
	assert.InDelta(t, 150.55, transport.Amount, 0.001)
	assert.InDelta(t, 9.04, transport.TaxAmount, 0.001)

	assert.Equal(t, 1, byName["办公费"].Count)

	// Records without a category roll up under 其他.
	other := byName["其他"]
	assert.Equal(t, 1, other.Count)
	assert.InDelta(t, 10.0, other.Amount, 0.001)
}

func TestInvoiceRepository_Summary_Empty(t *testing.T) {
	repo := newTestRepo(t)

	summary, err := repo.Summary()
	require.NoError(t, err)
	assert.Zero(t, summary.TotalCount)
	assert.Zero(t, summary.AnomalyCount)
	assert.Empty(t, summary.ByCategory)
}
