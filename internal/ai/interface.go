// interface.go - Provider interfaces for LLM assist and page OCR

package ai

import (
	"context"

	"github.com/bosocmputer/invoice_po_matcher/internal/common"
)

// Provider is the common surface of every AI backend.
type Provider interface {
	// GetProviderName returns the name of the provider (e.g., "gemini", "mistral")
	GetProviderName() string
	Close() error
}

// Completer sends a text prompt and returns the raw reply with token counts.
// Cost is left to the caller.
type Completer interface {
	Provider
	Complete(ctx context.Context, prompt string) (string, common.TokenUsage, error)
}

// Recognizer reads the text of a rendered page image.
type Recognizer interface {
	Provider
	Recognize(ctx context.Context, image []byte, mimeType string) (string, error)
}

// ProviderConfig contains configuration for AI providers
type ProviderConfig struct {
	// Provider name: "gemini", "mistral" or "none"
	Provider string

	// Gemini configuration
	GeminiAPIKey   string
	GeminiModel    string
	GeminiOCRModel string

	// Mistral configuration
	MistralAPIKey   string
	MistralModel    string
	MistralOCRModel string
	MistralBaseURL  string // empty means the public API
}
