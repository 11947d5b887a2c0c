package assessment

import "time"

// UnitError records why a (target, module) unit did not complete normally.
type UnitError struct {
	Target  string `json:"target"`
	Module  string `json:"module"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ModuleResult is the immutable output of one module run against one target.
type ModuleResult struct {
	Module       string     `json:"module"`
	ModuleNumber int        `json:"module_number"`
	ModuleName   string     `json:"module_name"`
	Target       string     `json:"target"`
	TargetKind   TargetKind `json:"target_kind"`
	Timestamp    time.Time  `json:"timestamp"`
	State        RunState   `json:"state"`
	// Controls maps control id to status.
	Controls map[string]Status `json:"controls"`
	// Details holds the full results in declaration order.
	Details []ControlResult `json:"details"`
	// Evidence maps control id to human-readable supporting lines.
	Evidence     map[string][]string `json:"evidence"`
	Observations []Observation       `json:"observations"`
	External     []Evidence          `json:"external_evidence"`
	Catalogue    *Catalogue          `json:"catalogue,omitempty"`
	Summary      Summary             `json:"summary"`
	Error        *UnitError          `json:"error,omitempty"`
	DurationMS   int64               `json:"duration_ms"`
}

// Key identifies the unit that produced the result.
func (r ModuleResult) Key() UnitKey {
	return UnitKey{Target: r.Target, Module: r.Module}
}

// Result returns the result for controlID.
func (r ModuleResult) Result(controlID string) (ControlResult, bool) {
	for _, d := range r.Details {
		if d.ControlID == controlID {
			return d, true
		}
	}
	return ControlResult{}, false
}

// UnitKey identifies one (target, module) pair.
type UnitKey struct {
	Target string
	Module string
}

func (k UnitKey) String() string { return k.Module + "@" + k.Target }
