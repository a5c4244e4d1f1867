// document.go - Loaded PDF batch and page counting

package extract

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu otherwise creates a config directory under the user's home.
	api.DisableConfigDir()
}

// Document is an input PDF held in memory. Pages are addressed 1-based.
type Document struct {
	Path      string
	Data      []byte
	PageCount int
}

// PDFConfig is the pdfcpu configuration used for reading and splitting.
func PDFConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// OpenDocument reads path and counts its pages.
func OpenDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	doc, err := NewDocument(data)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// NewDocument wraps PDF bytes. pdfcpu counts pages first; files it rejects
// are retried with the lenient text reader.
func NewDocument(data []byte) (*Document, error) {
	n, err := api.PageCount(bytes.NewReader(data), PDFConfig())
	if err != nil {
		n, err = lenientPageCount(data)
		if err != nil {
			return nil, fmt.Errorf("failed to open PDF: %w", err)
		}
	}
	return &Document{Data: data, PageCount: n}, nil
}

func lenientPageCount(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF parser panic: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}
