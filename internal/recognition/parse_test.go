package recognition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  string // "" means nil
	}{
		{"2025-01-10", "2025-01-10"},
		{"2025-1-5", "2025-01-05"},
		{"2025/06/15", "2025-06-15"},
		{"2025/6/1", "2025-06-01"},
		{"2025年6月15日", "2025-06-15"},
		{"2025.06.15", "2025-06-15"},
		{"  2025-01-10  ", "2025-01-10"},
		{"", ""},
		{"无", ""},
		{"2025-13-40", ""},
		{"15-06-2025", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseDate(tt.input)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}
}

func TestParseFields(t *testing.T) {
	fields, err := decodeFields(`{
		"invoice_no": "25442000000012345678",
		"invoice_date": "2025-01-10",
		"invoice_type": "增值税普票",
		"seller_name": "滴滴出行科技有限公司",
		"seller_tax_no": "91110000MA12345678",
		"amount": 100.0,
		"tax_amount": 6.0,
		"total_amount": 106.0,
		"items": ["客运服务费"],
		"handler": "张三",
		"confidence": 0.95
	}`)
	require.NoError(t, err)

	result := ParseFields(fields, "raw")
	assert.Equal(t, "25442000000012345678", result.InvoiceNo)
	require.NotNil(t, result.InvoiceDate)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), *result.InvoiceDate)
	assert.Equal(t, "增值税普票", result.InvoiceType)
	assert.Equal(t, "滴滴出行科技有限公司", result.SellerName)
	assert.Equal(t, 100.0, result.Amount)
	assert.Equal(t, 6.0, result.TaxAmount)
	assert.Equal(t, 106.0, result.TotalAmount)
	assert.Equal(t, []string{"客运服务费"}, result.Items)
	assert.Equal(t, "张三", result.Handler)
	assert.Equal(t, 0.95, result.Confidence)
	assert.Equal(t, "raw", result.Raw)
}

func TestParseFields_Defaults(t *testing.T) {
	t.Run("total amount falls back to amount plus tax", func(t *testing.T) {
		fields, err := decodeFields(`{"amount": 100, "tax_amount": 6}`)
		require.NoError(t, err)
		result := ParseFields(fields, "")
		assert.Equal(t, 106.0, result.TotalAmount)
	})

	t.Run("missing confidence defaults to 0.5", func(t *testing.T) {
		result := ParseFields(map[string]interface{}{}, "")
		assert.Equal(t, 0.5, result.Confidence)
	})

	t.Run("invoice type falls back to doc type", func(t *testing.T) {
		fields, err := decodeFields(`{"doc_type": "费用报销单"}`)
		require.NoError(t, err)
		result := ParseFields(fields, "")
		assert.Equal(t, "费用报销单", result.InvoiceType)
	})

	t.Run("null fields resolve to zero values", func(t *testing.T) {
		fields, err := decodeFields(`{"invoice_no": null, "amount": null, "invoice_date": null}`)
		require.NoError(t, err)
		result := ParseFields(fields, "")
		assert.Empty(t, result.InvoiceNo)
		assert.Zero(t, result.Amount)
		assert.Nil(t, result.InvoiceDate)
	})
}

func TestParseFields_NumericCoercion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"plain number", `{"amount": 29659.07}`, 29659.07},
		{"currency symbol", `{"amount": "¥29659.07"}`, 29659.07},
		{"fullwidth symbol", `{"amount": "￥120.50"}`, 120.50},
		{"thousands separator", `{"amount": "1,234.56"}`, 1234.56},
		{"embedded spaces", `{"amount": " 88.00 "}`, 88.00},
		{"garbage string", `{"amount": "一百元"}`, 0},
		{"missing", `{}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := decodeFields(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ParseFields(fields, "").Amount)
		})
	}
}

// Large invoice numbers must not pass through float64 on their way in.
func TestParseFields_LongInvoiceNoPreserved(t *testing.T) {
	fields, err := decodeFields(`{"invoice_no": 25442000000012345678}`)
	require.NoError(t, err)
	assert.Equal(t, "25442000000012345678", ParseFields(fields, "").InvoiceNo)
}

func TestResolvePerson(t *testing.T) {
	tests := []struct {
		name          string
		result        Result
		defaultPerson string
		want          string
	}{
		{"handler wins over everything", Result{Handler: "张三", Payee: "李四", ReimbursementPerson: "王五"}, "默认", "张三"},
		{"payee next", Result{Payee: "李四", ReimbursementPerson: "王五"}, "默认", "李四"},
		{"recognizer value next", Result{ReimbursementPerson: "王五"}, "默认", "王五"},
		{"caller default last", Result{}, "默认", "默认"},
		{"all empty", Result{}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.ResolvePerson(tt.defaultPerson))
		})
	}
}

func TestExtractJSON(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		fields, raw, err := extractJSON(`{"invoice_no": "123"}`)
		require.NoError(t, err)
		assert.Equal(t, "123", stringField(fields, "invoice_no"))
		assert.JSONEq(t, `{"invoice_no": "123"}`, raw)
	})

	t.Run("markdown fenced", func(t *testing.T) {
		content := "以下是识别结果：\n```json\n{\"invoice_no\": \"123\"}\n```\n请查收。"
		fields, _, err := extractJSON(content)
		require.NoError(t, err)
		assert.Equal(t, "123", stringField(fields, "invoice_no"))
	})

	t.Run("no object", func(t *testing.T) {
		_, _, err := extractJSON("抱歉，无法识别这张图片。")
		assert.Error(t, err)
	})

	t.Run("malformed object", func(t *testing.T) {
		_, _, err := extractJSON(`{"invoice_no": }`)
		assert.Error(t, err)
	})
}

func TestMockRecognizer(t *testing.T) {
	recognizer := NewRecognizer(Config{}, zap.NewNop())
	result, err := recognizer.Recognize(context.Background(), "whatever.jpg")
	require.NoError(t, err)
	assert.Equal(t, "测试公司", result.SellerName)
	assert.Equal(t, 106.0, result.TotalAmount)
	assert.Equal(t, 0.95, result.Confidence)
	require.NotNil(t, result.InvoiceDate)
	assert.Equal(t, "2025-01-10", result.InvoiceDate.Format("2006-01-02"))
}
