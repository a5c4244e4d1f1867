// grouper.go - Invoice groups, page ranges and output file names

package grouper

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/bosocmputer/invoice_po_matcher/internal/matching"
	"github.com/shopspring/decimal"
)

// TimestampLayout formats the run tag used in every output file name.
const TimestampLayout = "20060102_150405"

// Timestamp formats t as a run tag.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Group is one matched invoice: every page that carried the same invoice
// number and resolved to a PO.
type Group struct {
	InvoiceNumber string
	PO            matching.EligiblePO
	Cost          string
	Method        string
	Pages         []int
}

// Grouper collects matched pages by invoice number in first-seen order.
type Grouper struct {
	order  []string
	groups map[string]*Group
}

// NewGrouper returns an empty Grouper.
func NewGrouper() *Grouper {
	return &Grouper{groups: make(map[string]*Group)}
}

// Lookup returns the group for an invoice number.
func (g *Grouper) Lookup(invoice string) (*Group, bool) {
	grp, ok := g.groups[invoice]
	return grp, ok
}

// Add records page under invoice. The first page of an invoice fixes the
// group's PO, cost and method; later pages only add their index. It reports
// whether a new group was created.
func (g *Grouper) Add(page int, invoice string, po matching.EligiblePO, cost, method string) (*Group, bool) {
	if grp, ok := g.groups[invoice]; ok {
		i := sort.SearchInts(grp.Pages, page)
		if i == len(grp.Pages) || grp.Pages[i] != page {
			grp.Pages = append(grp.Pages, 0)
			copy(grp.Pages[i+1:], grp.Pages[i:])
			grp.Pages[i] = page
		}
		return grp, false
	}

	grp := &Group{
		InvoiceNumber: invoice,
		PO:            po,
		Cost:          cost,
		Method:        method,
		Pages:         []int{page},
	}
	g.groups[invoice] = grp
	g.order = append(g.order, invoice)
	return grp, true
}

// Groups returns the groups in the order their first page was seen.
func (g *Grouper) Groups() []*Group {
	out := make([]*Group, 0, len(g.order))
	for _, inv := range g.order {
		out = append(out, g.groups[inv])
	}
	return out
}

// Len is the number of groups.
func (g *Grouper) Len() int { return len(g.order) }

// PageRange renders "a" for one page and "a-b" for several.
func (grp *Group) PageRange() string {
	return PageRange(grp.Pages)
}

// PageRange renders ascending pages as "first" or "first-last".
func PageRange(pages []int) string {
	switch len(pages) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%d", pages[0])
	}
	return fmt.Sprintf("%d-%d", pages[0], pages[len(pages)-1])
}

// EstimatedCost is the PO's stored estimate before the match overwrites it.
func (grp *Group) EstimatedCost() decimal.Decimal {
	return grp.PO.EstimatedCost
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeFilenamePart replaces anything outside [A-Za-z0-9_-] with "_".
func SanitizeFilenamePart(s string) string {
	return unsafeFilenameChars.ReplaceAllString(s, "_")
}

// MatchedFilename names a matched invoice group.
func MatchedFilename(po matching.EligiblePO, ts, invoice string) string {
	return fmt.Sprintf("PO%s_%s_INV%s.pdf", matching.FormatPONumber(po.ID, po.JobName), ts, SanitizeFilenamePart(invoice))
}

// ErrorFilename names a page whose invoice number resolved to no PO.
func ErrorFilename(ts string, page int, invoice string) string {
	return fmt.Sprintf("ERROR_NO_PO_%s_page%d_%s.pdf", ts, page, SanitizeFilenamePart(invoice))
}

// UnmatchedFilename names a page with no invoice number.
func UnmatchedFilename(ts string, page int) string {
	return fmt.Sprintf("UNMATCHED_%s_page%d.pdf", ts, page)
}
