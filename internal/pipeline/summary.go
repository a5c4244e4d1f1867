// summary.go - Batch result returned to callers

package pipeline

import (
	"fmt"

	"github.com/bosocmputer/invoice_po_matcher/internal/common"
)

const (
	errorPreviewChars     = 300
	unmatchedPreviewChars = 200

	reasonNoMatchingPO = "NO MATCHING PO FOUND"
	reasonNotRecorded  = "MATCH NOT RECORDED"
)

// ErrorEntry is a page that carried an invoice number but could not be filed.
type ErrorEntry struct {
	Page          int               `json:"page"`
	InvoiceNumber string            `json:"invoice_number"`
	Cost          string            `json:"cost"`
	Error         string            `json:"error"`
	Message       string            `json:"message"`
	TextPreview   string            `json:"text_preview,omitempty"`
	Filename      string            `json:"filename"`
	Class         common.ErrorClass `json:"class"`
}

// UnmatchedEntry is a page without a detectable invoice number.
type UnmatchedEntry struct {
	Page        int    `json:"page"`
	TextPreview string `json:"text_preview"`
	Filename    string `json:"filename"`
}

// DetailEntry is one invoice filed against a PO.
type DetailEntry struct {
	Page          string `json:"page"`
	PONumber      int    `json:"po_number"`
	POLabel       string `json:"po_label"`
	JobName       string `json:"job_name"`
	EstimatedCost string `json:"estimated_cost"`
	InvoiceNumber string `json:"invoice_number"`
	Cost          string `json:"cost"`
	Status        string `json:"status"`
	Pages         int    `json:"pages"`
	MatchMethod   string `json:"match_method"`
	Filename      string `json:"filename"`
	Location      string `json:"location,omitempty"`
}

// Summary is the JSON result of one batch.
type Summary struct {
	Success     bool               `json:"success"`
	RequestID   string             `json:"request_id,omitempty"`
	Processed   int                `json:"processed"`
	Matched     int                `json:"matched"`
	Errors      []ErrorEntry       `json:"errors"`
	Unmatched   []UnmatchedEntry   `json:"unmatched"`
	Details     []DetailEntry      `json:"details"`
	Message     string             `json:"message,omitempty"`
	AssistUsage *common.TokenUsage `json:"assist_usage,omitempty"`
	Error       string             `json:"error,omitempty"`
	Trace       string             `json:"trace,omitempty"`
}

func newSummary() *Summary {
	return &Summary{
		Errors:    []ErrorEntry{},
		Unmatched: []UnmatchedEntry{},
		Details:   []DetailEntry{},
	}
}

// ResolutionFailures counts invoices that were found but had no PO.
func (s *Summary) ResolutionFailures() int {
	n := 0
	for _, e := range s.Errors {
		if e.Class == common.ClassResolutionFailure {
			n++
		}
	}
	return n
}

func (s *Summary) finish() {
	s.Success = true
	if n := s.ResolutionFailures(); n > 0 {
		s.Message = fmt.Sprintf("⚠ Processed %d pages. Matched %d invoices. %d invoice(s) found but NO MATCHING PO!",
			s.Processed, s.Matched, n)
		return
	}
	s.Message = fmt.Sprintf("✅ Processed %d pages. Successfully matched %d invoices.", s.Processed, s.Matched)
}

func (s *Summary) fail(err error, trace string) {
	s.Success = false
	s.Message = ""
	s.Error = err.Error()
	s.Trace = trace
}

func preview(text string, n int) string {
	r := []rune(text)
	if len(r) > n {
		return string(r[:n])
	}
	return text
}
