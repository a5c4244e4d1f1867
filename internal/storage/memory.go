// memory.go - In-process store for offline runs and tests

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bosocmputer/invoice_po_matcher/internal/matching"
)

// MemoryStore implements the MongoStore surface on maps. The CLI uses it
// for offline runs seeded from a JSON fixture.
type MemoryStore struct {
	mu       sync.Mutex
	pos      map[int]*PORequest
	jobs     []Job
	usage    []matching.UsageRecord
	settings map[string]string
}

// MemoryFixture is the JSON seed of a MemoryStore.
type MemoryFixture struct {
	POs  []PORequest `json:"po_requests"`
	Jobs []Job       `json:"jobs"`
}

// NewMemoryStore seeds a store with pos and jobs.
func NewMemoryStore(pos []PORequest, jobs []Job) *MemoryStore {
	s := &MemoryStore{
		pos:      make(map[int]*PORequest, len(pos)),
		jobs:     append([]Job(nil), jobs...),
		settings: map[string]string{},
	}
	for i := range pos {
		po := pos[i]
		s.pos[po.ID] = &po
	}
	return s
}

// LoadMemoryStore reads a MemoryFixture from path.
func LoadMemoryStore(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var fx MemoryFixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return NewMemoryStore(fx.POs, fx.Jobs), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// PO returns a copy of one PO document.
func (s *MemoryStore) PO(id int) (PORequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.pos[id]
	if !ok {
		return PORequest{}, false
	}
	return *po, true
}

// ListEligiblePOs returns approved POs without an invoice, by id.
func (s *MemoryStore) ListEligiblePOs(context.Context) ([]matching.EligiblePO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.pos))
	for id, po := range s.pos {
		if po.Eligible() {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	out := make([]matching.EligiblePO, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.pos[id].EligiblePO())
	}
	return out, nil
}

// ListActiveJobNames returns active job names in seed order.
func (s *MemoryStore) ListActiveJobNames(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for _, j := range s.jobs {
		if j.Active == 1 && j.JobName != "" {
			names = append(names, j.JobName)
		}
	}
	return names, nil
}

// RecordMatch applies rec while the PO is still eligible.
func (s *MemoryStore) RecordMatch(_ context.Context, rec MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.pos[rec.POID]
	if !ok || !po.Eligible() {
		return fmt.Errorf("PO %d: %w", rec.POID, ErrPOUnavailable)
	}

	set := matchUpdate(rec)
	po.InvoiceFilename = rec.Filename
	po.InvoiceNumber = rec.InvoiceNumber
	po.InvoiceCost = rec.Cost
	po.InvoiceUploadDate = set["invoice_upload_date"].(string)
	po.EstimatedCost = set["estimated_cost"].(float64)
	po.MatchMethod = rec.MatchMethod
	return nil
}

// ServiceJobActive reports whether an active job is named "service".
func (s *MemoryStore) ServiceJobActive(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Active == 1 && strings.EqualFold(j.JobName, "service") {
			return true, nil
		}
	}
	return false, nil
}

// SetPOJobName renames the job of a PO.
func (s *MemoryStore) SetPOJobName(_ context.Context, poID int, jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.pos[poID]
	if !ok {
		return fmt.Errorf("PO %d: %w", poID, ErrNotFound)
	}
	po.JobName = jobName
	return nil
}

// LogAPIUsage appends an audit record.
func (s *MemoryStore) LogAPIUsage(_ context.Context, rec matching.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, rec)
	return nil
}

// RecentAPIUsage returns up to limit records, newest first.
func (s *MemoryStore) RecentAPIUsage(_ context.Context, limit int64) ([]matching.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]matching.UsageRecord(nil), s.usage...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit >= 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UsageStats mirrors the Mongo aggregation.
func (s *MemoryStore) UsageStats(context.Context) (UsageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := UsageStats{MatchMethods: map[string]int64{}}
	for _, u := range s.usage {
		stats.TotalCalls++
		if u.Success {
			stats.Successful++
		}
		stats.TotalCost += u.CostEstimate
	}
	stats.SuccessRate = SuccessRatePercent(stats.Successful, stats.TotalCalls)

	for _, po := range s.pos {
		if po.MatchMethod != "" {
			stats.MatchMethods[po.MatchMethod]++
		}
	}
	return stats, nil
}

// GetAssistEnabled reads the assist toggle, def when unset.
func (s *MemoryStore) GetAssistEnabled(_ context.Context, def bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[SettingAssistEnabled]
	if !ok {
		return def, nil
	}
	return v == "true", nil
}

// SetAssistEnabled persists the assist toggle.
func (s *MemoryStore) SetAssistEnabled(_ context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[SettingAssistEnabled] = fmt.Sprintf("%t", enabled)
	return nil
}
