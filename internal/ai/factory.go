// factory.go - Provider construction from configuration

package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/bosocmputer/invoice_po_matcher/configs"
	"github.com/bosocmputer/invoice_po_matcher/internal/ratelimit"
	"go.uber.org/zap"
)

// ConfigFromEnv builds a ProviderConfig for provider from the loaded configs.
func ConfigFromEnv(provider string) ProviderConfig {
	return ProviderConfig{
		Provider:        provider,
		GeminiAPIKey:    configs.GEMINI_API_KEY,
		GeminiModel:     configs.ASSIST_MODEL_NAME,
		GeminiOCRModel:  configs.OCR_MODEL_NAME,
		MistralAPIKey:   configs.MISTRAL_API_KEY,
		MistralModel:    configs.MISTRAL_MODEL_NAME,
		MistralOCRModel: configs.MISTRAL_OCR_MODEL_NAME,
	}
}

// NewLimiterFromEnv returns the shared provider limiter.
func NewLimiterFromEnv() *ratelimit.RateLimiter {
	return ratelimit.NewRateLimiter(
		configs.ASSIST_RATE_LIMIT_TOKENS,
		time.Duration(configs.ASSIST_RATE_LIMIT_REFILL_SECONDS)*time.Second,
	)
}

// NewCompleter creates the assist client. It returns (nil, nil) for "none"
// or an empty provider so callers can run without assist.
func NewCompleter(ctx context.Context, cfg ProviderConfig, limiter *ratelimit.RateLimiter, log *zap.Logger) (Completer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Provider {
	case "", "none":
		return nil, nil

	case "gemini":
		log.Info("creating Gemini assist provider", zap.String("model", cfg.GeminiModel))
		p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiOCRModel, limiter, log)
		if err != nil {
			return nil, err
		}
		return p, nil

	case "mistral":
		if cfg.MistralAPIKey == "" {
			return nil, fmt.Errorf("mistral API key is not configured")
		}
		log.Info("creating Mistral assist provider", zap.String("model", cfg.MistralModel))
		return NewMistralProvider(cfg.MistralAPIKey, cfg.MistralModel, cfg.MistralOCRModel, cfg.MistralBaseURL, limiter, log), nil

	default:
		return nil, fmt.Errorf("unsupported assist provider: %s (supported: gemini, mistral, none)", cfg.Provider)
	}
}

// NewRecognizer creates an AI OCR backend for "gemini" or "mistral".
func NewRecognizer(ctx context.Context, cfg ProviderConfig, limiter *ratelimit.RateLimiter, log *zap.Logger) (Recognizer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Provider {
	case "gemini":
		log.Info("creating Gemini OCR provider", zap.String("model", cfg.GeminiOCRModel))
		p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiOCRModel, limiter, log)
		if err != nil {
			return nil, err
		}
		return p, nil

	case "mistral":
		if cfg.MistralAPIKey == "" {
			return nil, fmt.Errorf("mistral API key is not configured")
		}
		log.Info("creating Mistral OCR provider", zap.String("model", cfg.MistralOCRModel))
		return NewMistralProvider(cfg.MistralAPIKey, cfg.MistralModel, cfg.MistralOCRModel, cfg.MistralBaseURL, limiter, log), nil

	default:
		return nil, fmt.Errorf("unsupported AI OCR provider: %s (supported: gemini, mistral)", cfg.Provider)
	}
}
