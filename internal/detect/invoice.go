// invoice.go - Vendor invoice number detection

package detect

import (
	"regexp"
	"strings"
)

// Pattern is one labeled entry of an ordered detection table.
type Pattern struct {
	Regex *regexp.Regexp
	Label string
}

func pattern(expr, label string) Pattern {
	return Pattern{Regex: regexp.MustCompile(expr), Label: label}
}

// MinInvoiceNumberLength rejects short captures such as customer numbers.
const MinInvoiceNumberLength = 5

// PrimaryInvoicePatterns target the explicit invoice-number layouts.
// The captures already require five or more leading digits.
var PrimaryInvoicePatterns = []Pattern{
	pattern(`(?i)CUSTOMER\s*#\s*INVOICE\s*#[\s\S]*?(\d{5,}[A-Z0-9\-]*)`, "Customer # / Invoice #"),
	pattern(`(?i)INVOICE\s*#[\s:]*(\d{5,}[A-Z0-9\-]*)`, "Invoice #"),
}

// FallbackInvoicePatterns cover order, reference and transaction style identifiers.
var FallbackInvoicePatterns = []Pattern{
	pattern(`(?i)INVOICE\s*#\s*:?\s*([A-Z0-9\-]+)`, "Invoice #"),
	pattern(`(?i)INVOICE\s*(?:NO|NUM|NUMBER)\s*[:\s]*([A-Z0-9\-]+)`, "Invoice No/Num"),
	pattern(`(?i)Invoice\s+No\s*[:\s]*([A-Z0-9\-]+)`, "Invoice No"),
	pattern(`(?i)Order\s*#\s*:?\s*([A-Z0-9\-]+)`, "Order #"),
	pattern(`(?i)Order\s*(?:NO|NUM|NUMBER)\s*:?\s*([A-Z0-9\-]+)`, "Order No/Num"),
	pattern(`(?i)Sales\s*Order\s*#?\s*:?\s*([A-Z0-9\-]+)`, "Sales Order"),
	pattern(`(?i)Work\s*Order\s*#?\s*:?\s*([A-Z0-9\-]+)`, "Work Order"),
	pattern(`(?i)Reference\s*#?\s*:?\s*([A-Z0-9\-]+)`, "Reference #"),
	pattern(`(?i)Ticket\s*#?\s*:?\s*([A-Z0-9\-]+)`, "Ticket #"),
	pattern(`(?i)Document\s*#?\s*:?\s*([A-Z0-9\-]+)`, "Document #"),
	pattern(`(?i)Receipt\s*#?\s*:?\s*([A-Z0-9\-]+)`, "Receipt #"),
	pattern(`(?i)Confirmation\s*#?\s*:?\s*([A-Z0-9\-]+)`, "Confirmation #"),
	pattern(`(?i)Transaction\s*(?:ID|#)?\s*[:\s]*([A-Z0-9\-]+)`, "Transaction ID"),
}

var falsePositives = map[string]bool{"date": true, "time": true, "page": true}

// InvoiceNumber is a detected invoice identifier with the table label that produced it.
type InvoiceNumber struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// DetectInvoiceNumber returns the first acceptable capture, trying the primary
// table before the fallback table. Only the first match of each pattern is
// considered.
func DetectInvoiceNumber(text string) (InvoiceNumber, bool) {
	if text == "" {
		return InvoiceNumber{}, false
	}

	for _, p := range PrimaryInvoicePatterns {
		if value, ok := firstCapture(p.Regex, text); ok && len(value) >= MinInvoiceNumberLength {
			return InvoiceNumber{Value: value, Label: p.Label}, true
		}
	}

	for _, p := range FallbackInvoicePatterns {
		value, ok := firstCapture(p.Regex, text)
		if !ok {
			continue
		}
		if falsePositives[strings.ToLower(value)] || len(value) < MinInvoiceNumberLength {
			continue
		}
		return InvoiceNumber{Value: value, Label: p.Label}, true
	}

	return InvoiceNumber{}, false
}

func firstCapture(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
