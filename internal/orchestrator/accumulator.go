package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// EventType distinguishes progress events.
type EventType string

const (
	UnitStarted  EventType = "unit_started"
	UnitFinished EventType = "unit_finished"
)

// Event reports unit progress. Callbacks are serialized.
type Event struct {
	Type     EventType           `json:"type"`
	Index    int                 `json:"index"`
	Total    int                 `json:"total"`
	Target   string              `json:"target"`
	Module   string              `json:"module"`
	State    assessment.RunState `json:"state,omitempty"`
	Attempts int                 `json:"attempts,omitempty"`
	Summary  assessment.Summary  `json:"summary"`
	Error    string              `json:"error,omitempty"`
}

// ProgressFunc receives unit events.
type ProgressFunc func(Event)

// accumulator is the single insert path for unit results.
type accumulator struct {
	mu      sync.Mutex
	results map[assessment.UnitKey]assessment.ModuleResult
	metas   map[assessment.UnitKey]assessment.UnitMeta
}

func newAccumulator(capacity int) *accumulator {
	return &accumulator{
		results: make(map[assessment.UnitKey]assessment.ModuleResult, capacity),
		metas:   make(map[assessment.UnitKey]assessment.UnitMeta, capacity),
	}
}

func (a *accumulator) add(res assessment.ModuleResult, meta assessment.UnitMeta) error {
	key := res.Key()
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.results[key]; dup {
		return fmt.Errorf("%w: %s", sharedErrors.ErrDuplicateUnit, key)
	}
	a.results[key] = res
	a.metas[key] = meta
	return nil
}

// snapshot returns the results, unit metadata and unit errors in a stable
// order.
func (a *accumulator) snapshot() ([]assessment.ModuleResult, []assessment.UnitMeta, []assessment.UnitError) {
	a.mu.Lock()
	defer a.mu.Unlock()
	results := make([]assessment.ModuleResult, 0, len(a.results))
	for _, r := range a.results {
		results = append(results, r)
	}
	metas := make([]assessment.UnitMeta, 0, len(a.metas))
	for _, m := range a.metas {
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Target != metas[j].Target {
			return metas[i].Target < metas[j].Target
		}
		return metas[i].Module < metas[j].Module
	})
	errs := []assessment.UnitError{}
	for _, m := range metas {
		if r, ok := a.results[assessment.UnitKey{Target: m.Target, Module: m.Module}]; ok && r.Error != nil {
			errs = append(errs, *r.Error)
		}
	}
	return results, metas, errs
}
