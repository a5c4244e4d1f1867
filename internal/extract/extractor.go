// extractor.go - Per-page text with OCR fallback

package extract

import (
	"context"
	"image"
	"strings"

	"github.com/bosocmputer/invoice_po_matcher/internal/common"
	"go.uber.org/zap"
)

// DefaultDPI is the render resolution for OCR.
const DefaultDPI = 300

// EmbeddedTextExtractor reads the text layer of a page.
type EmbeddedTextExtractor interface {
	ExtractEmbeddedText(doc *Document, page int) (string, error)
}

// PageRenderer rasterizes a page.
type PageRenderer interface {
	RenderPageImage(doc *Document, page, dpi int) (image.Image, error)
}

// Recognizer reads text from a page image.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// Extractor combines the text layer with an optional OCR path.
type Extractor struct {
	Text       EmbeddedTextExtractor
	Renderer   PageRenderer
	Recognizer Recognizer
	DPI        int
	Enhance    bool

	log *zap.Logger
}

// NewExtractor returns an extractor using the text layer only. Set Renderer
// and Recognizer to enable OCR for pages without text.
func NewExtractor(text EmbeddedTextExtractor, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{Text: text, DPI: DefaultDPI, log: log}
}

// OCREnabled reports whether pages without a text layer can be recognized.
func (e *Extractor) OCREnabled() bool {
	return e.Renderer != nil && e.Recognizer != nil
}

// PageText returns the text of page (1-based). It never fails: every error
// is logged and yields "".
func (e *Extractor) PageText(ctx context.Context, doc *Document, page int) string {
	log := e.log.With(zap.Int("page", page))

	var text string
	if e.Text != nil {
		t, err := e.Text.ExtractEmbeddedText(doc, page)
		if err != nil {
			log.Warn("text layer unreadable, treating as empty", zap.Error(err))
		} else {
			text = t
		}
	}
	if strings.TrimSpace(text) != "" {
		return text
	}

	if !e.OCREnabled() {
		log.Info("page has no text and OCR is not configured", common.ClassExtractionGap.Field())
		return ""
	}

	dpi := e.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	img, err := e.Renderer.RenderPageImage(doc, page, dpi)
	if err != nil {
		log.Warn("page render failed", common.ClassExtractionGap.Field(), zap.Error(err))
		return ""
	}
	if e.Enhance {
		img = Enhance(img)
	}

	recognized, err := e.Recognizer.Recognize(ctx, img)
	if err != nil {
		log.Warn("OCR failed", common.ClassExtractionGap.Field(), zap.Error(err))
		return ""
	}
	log.Debug("page read by OCR", zap.Int("chars", len(recognized)))
	return recognized
}
