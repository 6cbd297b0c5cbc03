package recognition

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// invoicePrompt instructs the vision model to return one JSON object with the
// document fields. expense_category is constrained to the classification
// table so model output and keyword fallback agree on category names.
const invoicePrompt = `请识别这张单据图片（可能是发票或费用报销单），提取以下信息并以 JSON 格式返回：
{
  "doc_type": "发票/费用报销单/收据/其他",
  "invoice_no": "发票号码或单据编号",
  "invoice_date": "日期 (YYYY-MM-DD格式)",
  "invoice_type": "增值税专票/增值税普票/电子普票/费用报销单/其他",
  "seller_name": "销方名称或供应商",
  "seller_tax_no": "销方税号",
  "amount": 金额(数字，不含税金额，如果没有税额则等于总金额),
  "tax_amount": 税额(数字，如果没有则为0),
  "total_amount": 价税合计或报销金额(数字),
  "items": ["商品/服务名称或摘要内容"],
  "payee": "领款人姓名(领款人签章处)",
  "handler": "经手人姓名(经手处)",
  "department": "部门名称",
  "expense_category": "费用类别(必须从下方分类标准中选择)",
  "confidence": 置信度(0-1之间的小数，表示识别准确度)
}

【费用科目分类标准】expense_category 必须是以下值之一：
交通费、差旅费-住宿、业务招待费、办公费、通讯费、固定资产、低值易耗品、其他

注意事项：
1. 如果某个字段无法识别，请设为 null
2. 金额字段必须是纯数字，不要带单位符号（如 ¥29659.07 应返回 29659.07）
3. 日期格式必须是 YYYY-MM-DD
4. 只返回 JSON 对象，不要包含其他说明文字
5. 注意识别手写内容，仔细辨认`

// Config holds recognition provider settings.
type Config struct {
	APIKey  string
	BaseURL string // OpenAI-compatible endpoint of the GLM service
	Model   string
	Timeout time.Duration
}

// Recognizer calls a GLM vision model to extract structured fields from an
// invoice image. Without an API key it runs in mock mode and returns a fixed
// sample result, which keeps local development working offline.
type Recognizer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	mock    bool
	logger  *zap.Logger
}

// NewRecognizer creates a recognizer for the configured GLM endpoint.
func NewRecognizer(cfg Config, logger *zap.Logger) *Recognizer {
	if cfg.APIKey == "" {
		logger.Warn("GLM API key not configured, recognition runs in mock mode")
		return &Recognizer{mock: true, logger: logger}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Recognizer{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Recognize reads an uploaded file (image or PDF) and returns the extracted
// fields. Every field of the result is best-effort and must be treated as
// untrusted by the caller.
func (r *Recognizer) Recognize(ctx context.Context, filePath string) (*Result, error) {
	start := time.Now()
	r.logger.Info("Recognizing invoice", zap.String("file", filePath))

	if r.mock {
		return ParseFields(mockFields(), mockRaw), nil
	}

	imageBytes, mimeType, err := loadAsImage(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load file for recognition: %w", err)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageBytes))

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
					},
					{
						Type: openai.ChatMessagePartTypeText,
						Text: invoicePrompt,
					},
				},
			},
		},
	})
	if err != nil {
		r.logger.Error("GLM API call failed",
			zap.String("file", filePath),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("GLM API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from GLM")
	}

	content := resp.Choices[0].Message.Content
	fields, raw, err := extractJSON(content)
	if err != nil {
		r.logger.Warn("Failed to parse recognition response",
			zap.String("file", filePath),
			zap.String("content", truncate(content, 200)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to parse recognition response: %w", err)
	}

	result := ParseFields(fields, raw)

	r.logger.Info("Recognition completed",
		zap.String("file", filePath),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("invoice_no", result.InvoiceNo),
		zap.Float64("total_amount", result.TotalAmount),
		zap.Float64("confidence", result.Confidence))

	return result, nil
}

// loadAsImage reads an upload as image bytes, rendering the first page of a
// PDF to JPEG when necessary.
func loadAsImage(filePath string) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		imageBytes, err := renderPDFFirstPage(filePath)
		return imageBytes, "image/jpeg", err
	case ".png":
		imageBytes, err := os.ReadFile(filePath)
		return imageBytes, "image/png", err
	case ".jpg", ".jpeg":
		imageBytes, err := os.ReadFile(filePath)
		return imageBytes, "image/jpeg", err
	default:
		return nil, "", fmt.Errorf("unsupported file type: %s", filepath.Ext(filePath))
	}
}

var jsonPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// extractJSON pulls the first JSON object out of a model response, tolerating
// markdown fences and surrounding prose.
func extractJSON(content string) (map[string]interface{}, string, error) {
	match := jsonPattern.FindString(content)
	if match == "" {
		return nil, "", fmt.Errorf("no JSON object in response")
	}

	fields, err := decodeFields(match)
	if err != nil {
		return nil, "", err
	}
	return fields, match, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

const mockRaw = `{"invoice_no":"12345678901234567890","invoice_date":"2025-01-10","invoice_type":"增值税普票","seller_name":"测试公司","seller_tax_no":"91110000MA12345678","amount":100.00,"tax_amount":6.00,"total_amount":106.00,"items":["测试服务"],"confidence":0.95}`

func mockFields() map[string]interface{} {
	fields, _ := decodeFields(mockRaw)
	return fields
}
