// pdftext.go - Embedded text layer reader

package extract

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ledongthuc/pdf"
)

// PDFTextExtractor reads the embedded text layer. The parsed reader of the
// last document is kept so a batch is parsed once.
type PDFTextExtractor struct {
	mu     sync.Mutex
	doc    *Document
	reader *pdf.Reader
}

// NewPDFTextExtractor returns an extractor with an empty cache.
func NewPDFTextExtractor() *PDFTextExtractor {
	return &PDFTextExtractor{}
}

func (e *PDFTextExtractor) readerFor(doc *Document) (*pdf.Reader, error) {
	if e.doc == doc && e.reader != nil {
		return e.reader, nil
	}
	reader, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return nil, err
	}
	e.doc, e.reader = doc, reader
	return reader, nil
}

// ExtractEmbeddedText returns the plain text of page (1-based). Parser panics
// on malformed content streams are returned as errors.
func (e *PDFTextExtractor) ExtractEmbeddedText(doc *Document, page int) (text string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("text layer panic on page %d: %v", page, r)
		}
	}()

	reader, err := e.readerFor(doc)
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}
	if page < 1 || page > reader.NumPage() {
		return "", fmt.Errorf("page %d out of range (1-%d)", page, reader.NumPage())
	}

	p := reader.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}
