// splitter.go - Cuts pages out of the batch PDF into artifacts

package grouper

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/bosocmputer/invoice_po_matcher/internal/extract"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ArtifactWriter stores a finished PDF under name and returns its location.
type ArtifactWriter interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Splitter writes page subsets of a document through an ArtifactWriter.
type Splitter struct {
	store ArtifactWriter
}

// NewSplitter returns a Splitter writing to store.
func NewSplitter(store ArtifactWriter) *Splitter {
	return &Splitter{store: store}
}

// Extract returns a new PDF holding pages (1-based) of doc in ascending order.
func Extract(doc *extract.Document, pages []int) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages selected")
	}
	selected := make([]string, len(pages))
	for i, p := range pages {
		if p < 1 || p > doc.PageCount {
			return nil, fmt.Errorf("page %d out of range (1-%d)", p, doc.PageCount)
		}
		selected[i] = strconv.Itoa(p)
	}

	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(doc.Data), &buf, selected, extract.PDFConfig()); err != nil {
		return nil, fmt.Errorf("failed to split pages %v: %w", pages, err)
	}
	return buf.Bytes(), nil
}

// Write extracts pages and saves them as name.
func (s *Splitter) Write(ctx context.Context, doc *extract.Document, pages []int, name string) (string, error) {
	data, err := Extract(doc, pages)
	if err != nil {
		return "", err
	}
	location, err := s.store.Save(ctx, name, data)
	if err != nil {
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}
	return location, nil
}
