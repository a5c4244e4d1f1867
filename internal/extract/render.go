// render.go - Page rasterization with MuPDF

package extract

import (
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
)

// FitzRenderer renders pages through go-fitz. The open MuPDF document of the
// last batch is reused until Close.
type FitzRenderer struct {
	mu  sync.Mutex
	src *Document
	doc *fitz.Document
}

// NewFitzRenderer returns a renderer with nothing open.
func NewFitzRenderer() *FitzRenderer {
	return &FitzRenderer{}
}

// RenderPageImage rasterizes page (1-based) at dpi.
func (r *FitzRenderer) RenderPageImage(doc *Document, page, dpi int) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.src != doc {
		if r.doc != nil {
			_ = r.doc.Close()
			r.doc = nil
		}
		fd, err := fitz.NewFromMemory(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to open PDF for rendering: %w", err)
		}
		r.src, r.doc = doc, fd
	}

	if page < 1 || page > r.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (1-%d)", page, r.doc.NumPage())
	}

	img, err := r.doc.ImageDPI(page-1, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	return img, nil
}

// Close releases the open document.
func (r *FitzRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return nil
	}
	err := r.doc.Close()
	r.src, r.doc = nil, nil
	return err
}
