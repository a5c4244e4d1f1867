// chain.go - Ordered first-success-wins strategy chain

package matching

import (
	"context"

	"go.uber.org/zap"
)

// Step is a named strategy in a Chain.
type Step struct {
	Name string
	Run  Strategy
}

// Chain runs strategies in priority order and stops at the first one that
// yields an eligible PO.
type Chain struct {
	steps []Step
	log   *zap.Logger
}

// NewChain builds a chain from steps in the order given. Steps with a nil
// strategy are skipped so optional strategies can be passed unconditionally.
func NewChain(log *zap.Logger, steps ...Step) *Chain {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Chain{log: log}
	for _, s := range steps {
		if s.Run != nil {
			c.steps = append(c.steps, s)
		}
	}
	return c
}

// DefaultSteps returns the deterministic strategies in priority order,
// preceded by assist when it is non-nil.
func DefaultSteps(assist Strategy) []Step {
	return []Step{
		{Name: MethodAssist, Run: assist},
		{Name: MethodTableColumn, Run: TableColumn},
		{Name: MethodPattern, Run: RegexFallback},
		{Name: MethodDirect, Run: DirectSearch},
		{Name: MethodFuzzy, Run: FuzzyJobScan},
	}
}

// Names lists the active step names in order.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.steps))
	for _, s := range c.steps {
		names = append(names, s.Name)
	}
	return names
}

// Resolve returns the first eligible match. A strategy result naming a PO
// outside the eligible set is discarded and the chain moves on.
func (c *Chain) Resolve(ctx context.Context, in Input) (Match, bool) {
	for _, step := range c.steps {
		m, ok := step.Run(ctx, in)
		if !ok {
			continue
		}
		if !in.POs.Contains(m.POID) {
			c.log.Warn("strategy returned ineligible PO",
				zap.String("strategy", step.Name),
				zap.Int("po_id", m.POID))
			continue
		}
		if m.Method == "" {
			m.Method = step.Name
		}
		c.log.Info("page matched",
			zap.String("strategy", step.Name),
			zap.Int("po_id", m.POID),
			zap.String("detail", m.Detail))
		return m, true
	}
	return Match{}, false
}

// FirstSuccess combines strategies so the first successful one wins.
func FirstSuccess(strategies ...Strategy) Strategy {
	return func(ctx context.Context, in Input) (Match, bool) {
		for _, s := range strategies {
			if s == nil {
				continue
			}
			if m, ok := s(ctx, in); ok && in.POs.Contains(m.POID) {
				return m, true
			}
		}
		return Match{}, false
	}
}
