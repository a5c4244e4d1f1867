package extract

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/bosocmputer/invoice_po_matcher/internal/pdftest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeText struct {
	pages map[int]string
	err   error
}

func (f fakeText) ExtractEmbeddedText(_ *Document, page int) (string, error) {
	return f.pages[page], f.err
}

type fakeRenderer struct {
	calls []int
	dpi   int
	err   error
}

func (f *fakeRenderer) RenderPageImage(_ *Document, page, dpi int) (image.Image, error) {
	f.calls = append(f.calls, page)
	f.dpi = dpi
	if f.err != nil {
		return nil, f.err
	}
	return image.NewGray(image.Rect(0, 0, 20, 20)), nil
}

type fakeRecognizer struct {
	text string
	err  error
}

func (f fakeRecognizer) Recognize(context.Context, image.Image) (string, error) {
	return f.text, f.err
}

func TestPageTextPrefersTextLayer(t *testing.T) {
	r := &fakeRenderer{}
	e := NewExtractor(fakeText{pages: map[int]string{1: "INVOICE # 784512"}}, zaptest.NewLogger(t))
	e.Renderer = r
	e.Recognizer = fakeRecognizer{text: "ocr"}

	assert.Equal(t, "INVOICE # 784512", e.PageText(context.Background(), &Document{}, 1))
	assert.Empty(t, r.calls)
}

func TestPageTextFallsBackToOCR(t *testing.T) {
	tests := []struct {
		name     string
		text     EmbeddedTextExtractor
		renderer *fakeRenderer
		rec      Recognizer
		want     string
	}{
		{"blank layer", fakeText{pages: map[int]string{2: " \n\t"}}, &fakeRenderer{}, fakeRecognizer{text: "INVOICE # 55555"}, "INVOICE # 55555"},
		{"text layer error", fakeText{err: errors.New("bad xref")}, &fakeRenderer{}, fakeRecognizer{text: "scanned"}, "scanned"},
		{"render error degrades", fakeText{}, &fakeRenderer{err: errors.New("mupdf")}, fakeRecognizer{text: "x"}, ""},
		{"recognizer error degrades", fakeText{}, &fakeRenderer{}, fakeRecognizer{err: errors.New("tesseract")}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(tt.text, zaptest.NewLogger(t))
			e.Renderer = tt.renderer
			e.Recognizer = tt.rec
			e.Enhance = true

			assert.Equal(t, tt.want, e.PageText(context.Background(), &Document{}, 2))
			assert.Equal(t, []int{2}, tt.renderer.calls)
			assert.Equal(t, DefaultDPI, tt.renderer.dpi)
		})
	}
}

func TestPageTextWithoutOCR(t *testing.T) {
	e := NewExtractor(fakeText{}, nil)
	assert.False(t, e.OCREnabled())
	assert.Equal(t, "", e.PageText(context.Background(), &Document{}, 1))

	e.Renderer = &fakeRenderer{}
	assert.False(t, e.OCREnabled())
}

func TestPDFTextExtractor(t *testing.T) {
	doc, err := NewDocument(pdftest.Build(
		"ACME SUPPLY\nINVOICE # 784512\nPO Number: 1012 SOMERVILLE",
		"",
		"INVOICE # 900001\nTOTAL 12.50",
	))
	require.NoError(t, err)
	assert.Equal(t, 3, doc.PageCount)

	x := NewPDFTextExtractor()

	text, err := x.ExtractEmbeddedText(doc, 1)
	require.NoError(t, err)
	assert.Contains(t, text, "784512")
	assert.Contains(t, text, "SOMERVILLE")

	text, err = x.ExtractEmbeddedText(doc, 2)
	require.NoError(t, err)
	assert.Empty(t, text)

	text, err = x.ExtractEmbeddedText(doc, 3)
	require.NoError(t, err)
	assert.Contains(t, text, "900001")

	_, err = x.ExtractEmbeddedText(doc, 4)
	assert.Error(t, err)
}

func TestNewDocumentRejectsGarbage(t *testing.T) {
	_, err := NewDocument([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestAnalyzeImageQuality(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	assert.InDelta(t, 40.0, analyzeImageQuality(flat), 0.5)

	checker := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if (x/10+y/10)%2 == 0 {
				checker.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	assert.Greater(t, analyzeImageQuality(checker), 75.0)

	assert.Equal(t, 0.0, analyzeImageQuality(image.NewGray(image.Rect(0, 0, 0, 0))))
}

func TestEnhanceResizesAndKeepsAspect(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3000, 1500))
	out := Enhance(img)
	assert.Equal(t, MaxImageDimension, out.Bounds().Dx())
	assert.Equal(t, 1250, out.Bounds().Dy())

	small := image.NewGray(image.Rect(0, 0, 40, 60))
	assert.Equal(t, small.Bounds().Size(), Enhance(small).Bounds().Size())
}

func TestNewTesseractRecognizerLanguages(t *testing.T) {
	assert.Equal(t, []string{"eng", "tha"}, NewTesseractRecognizer("eng+tha").Languages)
	assert.Equal(t, []string{"eng"}, NewTesseractRecognizer("").Languages)
}
