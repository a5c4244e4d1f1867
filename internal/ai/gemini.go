// gemini.go - Gemini client for assist matching and page OCR

package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/bosocmputer/invoice_po_matcher/internal/common"
	"github.com/bosocmputer/invoice_po_matcher/internal/ratelimit"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	// AssistMaxOutputTokens bounds the assist reply; the format is five short lines.
	AssistMaxOutputTokens = 300
	// OCRMaxOutputTokens is Gemini's output limit, used for full-page reads.
	OCRMaxOutputTokens = 8192

	ocrPrompt = `Read all visible text from this invoice page.
Read from top to bottom, left to right. Include headers, tables, footers and notes.
Keep one output line per printed line. Do not summarize, translate or format.
Return plain text only.`
)

// GeminiProvider implements Completer and Recognizer on the Gemini API.
type GeminiProvider struct {
	client       *genai.Client
	modelName    string
	ocrModelName string
	limiter      *ratelimit.RateLimiter
	log          *zap.Logger
}

// NewGeminiProvider creates the API client. limiter may be nil.
func NewGeminiProvider(ctx context.Context, apiKey, modelName, ocrModelName string, limiter *ratelimit.RateLimiter, log *zap.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GeminiProvider{
		client:       client,
		modelName:    modelName,
		ocrModelName: ocrModelName,
		limiter:      limiter,
		log:          log,
	}, nil
}

// GetProviderName returns "gemini"
func (g *GeminiProvider) GetProviderName() string {
	return "gemini"
}

// Close releases the underlying client.
func (g *GeminiProvider) Close() error {
	return g.client.Close()
}

// Complete sends prompt as a single text part.
func (g *GeminiProvider) Complete(ctx context.Context, prompt string) (string, common.TokenUsage, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", common.TokenUsage{}, Categorize(g.GetProviderName(), err)
	}

	model := g.client.GenerativeModel(g.modelName)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: ptr(AssistMaxOutputTokens),
	}
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", common.TokenUsage{}, Categorize(g.GetProviderName(), err)
	}

	usage := usageOf(resp)
	text, err := firstText(resp)
	if err != nil {
		return "", usage, err
	}

	g.log.Debug("gemini assist reply",
		zap.String("model", g.modelName),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens))
	return text, usage, nil
}

// Recognize sends a page image and returns the plain text read from it.
func (g *GeminiProvider) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", Categorize(g.GetProviderName(), err)
	}

	model := g.client.GenerativeModel(g.ocrModelName)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: ptr(OCRMaxOutputTokens),
	}

	resp, err := model.GenerateContent(ctx,
		genai.Text(ocrPrompt),
		genai.Blob{MIMEType: mimeType, Data: image},
	)
	if err != nil {
		return "", Categorize(g.GetProviderName(), err)
	}

	text, err := firstText(resp)
	if err != nil {
		return "", err
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		g.log.Warn("gemini OCR output truncated", zap.Int("chars", len(text)))
	}

	usage := usageOf(resp)
	g.log.Debug("gemini OCR page read",
		zap.String("model", g.ocrModelName),
		zap.Int("chars", len(text)),
		zap.Int("total_tokens", usage.TotalTokens))
	return text, nil
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from Gemini API")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}
	return b.String(), nil
}

func usageOf(resp *genai.GenerateContentResponse) common.TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return common.TokenUsage{}
	}
	in := int(resp.UsageMetadata.PromptTokenCount)
	out := int(resp.UsageMetadata.CandidatesTokenCount)
	return common.TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}

// ptr is a helper function to get a pointer to an int32 value
func ptr(i int32) *int32 {
	return &i
}
