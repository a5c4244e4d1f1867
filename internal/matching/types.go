// types.go - PO sets, match results and the strategy contract

package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Match method names recorded on the PO for audit.
const (
	MethodAssist      = "AI Assist"
	MethodTableColumn = "Table Column"
	MethodPattern     = "Pattern Match"
	MethodDirect      = "Direct Search"
	MethodFuzzy       = "Fuzzy Match"
)

// EligiblePO is an approved PO that has no invoice attached yet.
type EligiblePO struct {
	ID            int             `json:"id" bson:"po_id"`
	JobName       string          `json:"job_name" bson:"job_name"`
	EstimatedCost decimal.Decimal `json:"estimated_cost" bson:"-"`
}

// POSet is the eligible PO collection for one run. It keeps store order for
// strategies that iterate, and a map for membership checks.
type POSet struct {
	order []int
	byID  map[int]EligiblePO
}

// NewPOSet builds a set preserving the given order. Later duplicates are ignored.
func NewPOSet(pos []EligiblePO) *POSet {
	s := &POSet{byID: make(map[int]EligiblePO, len(pos))}
	for _, po := range pos {
		if _, exists := s.byID[po.ID]; exists {
			continue
		}
		s.order = append(s.order, po.ID)
		s.byID[po.ID] = po
	}
	return s
}

// Get returns the PO with the given id.
func (s *POSet) Get(id int) (EligiblePO, bool) {
	if s == nil {
		return EligiblePO{}, false
	}
	po, ok := s.byID[id]
	return po, ok
}

// Contains reports whether id is eligible.
func (s *POSet) Contains(id int) bool {
	_, ok := s.Get(id)
	return ok
}

// Len returns the number of eligible POs.
func (s *POSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// All returns the POs in store order.
func (s *POSet) All() []EligiblePO {
	if s == nil {
		return nil
	}
	out := make([]EligiblePO, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// IDs returns the PO ids in store order.
func (s *POSet) IDs() []int {
	if s == nil {
		return nil
	}
	return append([]int(nil), s.order...)
}

// Remove drops id from the set. Used when matches reserve their PO.
func (s *POSet) Remove(id int) {
	if s == nil {
		return
	}
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Clone returns an independent copy.
func (s *POSet) Clone() *POSet {
	return NewPOSet(s.All())
}

// Input is what every strategy sees for one page.
type Input struct {
	Text string
	POs  *POSet
	Jobs []string
}

// Match is a resolved PO for one page.
type Match struct {
	POID       int     `json:"po_id"`
	Method     string  `json:"match_method"`
	Confidence float64 `json:"confidence,omitempty"`
	Detail     string  `json:"detail,omitempty"`
}

// Strategy resolves a page to a PO or reports no match.
type Strategy func(ctx context.Context, in Input) (Match, bool)

// FormatPONumber renders a PO id the way it is printed on paperwork:
// four digits, prefixed with S for the service job.
func FormatPONumber(id int, jobName string) string {
	if strings.EqualFold(jobName, "service") {
		return fmt.Sprintf("S%04d", id)
	}
	return fmt.Sprintf("%04d", id)
}
