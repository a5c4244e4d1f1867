// recognizer.go - OCR backends: local Tesseract and AI providers

package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/bosocmputer/invoice_po_matcher/configs"
	"github.com/bosocmputer/invoice_po_matcher/internal/ai"
	"github.com/bosocmputer/invoice_po_matcher/internal/ratelimit"
	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// TesseractRecognizer runs Tesseract through gosseract. A client is created
// per call because gosseract clients are not safe for concurrent use.
type TesseractRecognizer struct {
	Languages []string
}

// NewTesseractRecognizer parses a "+"-separated language list such as "eng+tha".
func NewTesseractRecognizer(languages string) *TesseractRecognizer {
	var langs []string
	for _, l := range strings.Split(languages, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &TesseractRecognizer{Languages: langs}
}

// Recognize returns the text Tesseract reads from img.
func (t *TesseractRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Languages...); err != nil {
		return "", fmt.Errorf("tesseract language: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("tesseract image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return text, nil
}

// AIRecognizer adapts an ai.Recognizer to page images.
type AIRecognizer struct {
	Backend ai.Recognizer
}

// Recognize encodes img as PNG and sends it to the backend.
func (a *AIRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	return a.Backend.Recognize(ctx, data, "image/png")
}

// Close releases the backend.
func (a *AIRecognizer) Close() error {
	return a.Backend.Close()
}

// NewRecognizerFromEnv builds the OCR backend named by OCR_PROVIDER. It
// returns (nil, nil) for "none". The result may implement io.Closer.
func NewRecognizerFromEnv(ctx context.Context, limiter *ratelimit.RateLimiter, log *zap.Logger) (Recognizer, error) {
	switch configs.OCR_PROVIDER {
	case "", "none":
		return nil, nil
	case "tesseract":
		return NewTesseractRecognizer(configs.OCR_LANGUAGE), nil
	default:
		backend, err := ai.NewRecognizer(ctx, ai.ConfigFromEnv(configs.OCR_PROVIDER), limiter, log)
		if err != nil {
			return nil, err
		}
		return &AIRecognizer{Backend: backend}, nil
	}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode page image: %w", err)
	}
	return buf.Bytes(), nil
}
