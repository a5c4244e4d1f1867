// mistral.go - Mistral AI client for assist matching and page OCR

package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_po_matcher/internal/common"
	"github.com/bosocmputer/invoice_po_matcher/internal/ratelimit"
	"go.uber.org/zap"
)

// DefaultMistralBaseURL is the public API root.
const DefaultMistralBaseURL = "https://api.mistral.ai"

// MistralProvider implements Completer and Recognizer on the Mistral REST API.
type MistralProvider struct {
	apiKey       string
	modelName    string
	ocrModelName string
	baseURL      string
	client       *http.Client
	limiter      *ratelimit.RateLimiter
	log          *zap.Logger
}

// NewMistralProvider creates a new Mistral AI provider. baseURL may be empty.
func NewMistralProvider(apiKey, modelName, ocrModelName, baseURL string, limiter *ratelimit.RateLimiter, log *zap.Logger) *MistralProvider {
	if baseURL == "" {
		baseURL = DefaultMistralBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MistralProvider{
		apiKey:       apiKey,
		modelName:    modelName,
		ocrModelName: ocrModelName,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: limiter,
		log:     log,
	}
}

// GetProviderName returns "mistral"
func (m *MistralProvider) GetProviderName() string {
	return "mistral"
}

// Close is a no-op; the HTTP client holds no per-provider resources.
func (m *MistralProvider) Close() error { return nil }

type mistralMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mistralChatRequest struct {
	Model       string           `json:"model"`
	Messages    []mistralMessage `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
}

type mistralChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message mistralMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Mistral OCR API request/response structures
type mistralOCRDocument struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url,omitempty"` // base64 data URL
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRResponse struct {
	Model string `json:"model"`
	Pages []struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	} `json:"pages"`
	UsageInfo struct {
		PagesProcessed int `json:"pages_processed"`
	} `json:"usage_info"`
}

type mistralErrorResponse struct {
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends prompt as a single user message.
func (m *MistralProvider) Complete(ctx context.Context, prompt string) (string, common.TokenUsage, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", common.TokenUsage{}, Categorize(m.GetProviderName(), err)
	}

	var resp mistralChatResponse
	err := m.post(ctx, "/v1/chat/completions", mistralChatRequest{
		Model:     m.modelName,
		Messages:  []mistralMessage{{Role: "user", Content: prompt}},
		MaxTokens: AssistMaxOutputTokens,
	}, &resp)
	if err != nil {
		return "", common.TokenUsage{}, err
	}

	usage := common.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", usage, fmt.Errorf("empty response from Mistral chat API")
	}

	m.log.Debug("mistral assist reply",
		zap.String("model", resp.Model),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens))
	return resp.Choices[0].Message.Content, usage, nil
}

// Recognize sends a page image to the OCR endpoint as a data URL.
func (m *MistralProvider) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	if mimeType == "application/pdf" {
		return "", fmt.Errorf("mistral OCR API does not accept PDF as base64; render the page first")
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return "", Categorize(m.GetProviderName(), err)
	}

	var resp mistralOCRResponse
	err := m.post(ctx, "/v1/ocr", mistralOCRRequest{
		Model: m.ocrModelName,
		Document: mistralOCRDocument{
			Type:     "image_url",
			ImageURL: fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image)),
		},
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Pages) == 0 {
		return "", fmt.Errorf("no pages returned from Mistral OCR API")
	}

	var text strings.Builder
	for i, page := range resp.Pages {
		if i > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(page.Markdown)
	}

	m.log.Debug("mistral OCR page read",
		zap.String("model", resp.Model),
		zap.Int("pages_processed", resp.UsageInfo.PagesProcessed),
		zap.Int("chars", text.Len()))
	return text.String(), nil
}

func (m *MistralProvider) post(ctx context.Context, path string, payload, out interface{}) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return Categorize(m.GetProviderName(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		var errorResp mistralErrorResponse
		if json.Unmarshal(body, &errorResp) == nil {
			if errorResp.Error.Message != "" {
				msg = errorResp.Error.Message
			} else if errorResp.Message != "" {
				msg = errorResp.Message
			}
		}
		return statusError(m.GetProviderName(), resp.StatusCode, msg)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}
