package assessment

import (
	"fmt"
	"time"

	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// RunState is a step in the module run lifecycle.
type RunState string

const (
	RunInitialized RunState = "initialized"
	RunDiscovering RunState = "discovering"
	RunProbing     RunState = "probing"
	RunEvaluating  RunState = "evaluating"
	RunCompleted   RunState = "completed"
	RunFailed      RunState = "failed"
)

var runTransitions = map[RunState][]RunState{
	RunInitialized: {RunDiscovering, RunFailed},
	RunDiscovering: {RunProbing, RunFailed},
	RunProbing:     {RunEvaluating, RunFailed},
	RunEvaluating:  {RunCompleted, RunFailed},
}

// Terminal reports whether no further transitions are allowed.
func (s RunState) Terminal() bool { return s == RunCompleted || s == RunFailed }

// ModuleRun is the aggregate tracking one module execution against one
// target. It owns the observations, evidence and control results until
// Result freezes them into a ModuleResult.
type ModuleRun struct {
	module       string
	moduleNumber int
	moduleName   string
	target       Target
	controls     []Control
	state        RunState
	startedAt    time.Time
	finishedAt   time.Time
	catalogue    *Catalogue
	observations []Observation
	evidence     []Evidence
	results      map[string]ControlResult
	failure      *UnitError
}

// NewModuleRun creates a run in the Initialized state.
func NewModuleRun(module string, number int, name string, target Target, controls []Control) *ModuleRun {
	return &ModuleRun{
		module:       module,
		moduleNumber: number,
		moduleName:   name,
		target:       target,
		controls:     append([]Control(nil), controls...),
		state:        RunInitialized,
		startedAt:    time.Now(),
		results:      make(map[string]ControlResult, len(controls)),
	}
}

// State returns the current lifecycle state.
func (r *ModuleRun) State() RunState { return r.state }

// Target returns the target under assessment.
func (r *ModuleRun) Target() Target { return r.target }

// Controls returns the declared controls in order.
func (r *ModuleRun) Controls() []Control { return append([]Control(nil), r.controls...) }

// Observations returns a copy of the recorded observations.
func (r *ModuleRun) Observations() []Observation {
	return append([]Observation(nil), r.observations...)
}

// Evidence returns a copy of the recorded external evidence.
func (r *ModuleRun) Evidence() []Evidence { return append([]Evidence(nil), r.evidence...) }

// Catalogue returns the endpoint catalogue recorded during discovery.
func (r *ModuleRun) Catalogue() *Catalogue { return r.catalogue }

// Advance moves the run to next when the transition is allowed.
func (r *ModuleRun) Advance(next RunState) error {
	for _, allowed := range runTransitions[r.state] {
		if allowed == next {
			r.state = next
			if next.Terminal() {
				r.finishedAt = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", sharedErrors.ErrInvalidTransition, r.state, next)
}

// SetCatalogue records the discovery output. Only valid while discovering.
func (r *ModuleRun) SetCatalogue(c *Catalogue) error {
	if r.state != RunDiscovering {
		return fmt.Errorf("%w: catalogue recorded in state %s", sharedErrors.ErrInvalidTransition, r.state)
	}
	r.catalogue = c
	return nil
}

// AddObservations appends observations, assigning sequence numbers.
func (r *ModuleRun) AddObservations(obs ...Observation) error {
	if r.state != RunProbing {
		return fmt.Errorf("%w: observations recorded in state %s", sharedErrors.ErrInvalidTransition, r.state)
	}
	for _, o := range obs {
		o.Seq = len(r.observations) + 1
		r.observations = append(r.observations, o)
	}
	return nil
}

// AddEvidence appends external evidence.
func (r *ModuleRun) AddEvidence(ev ...Evidence) error {
	if r.state != RunProbing {
		return fmt.Errorf("%w: evidence recorded in state %s", sharedErrors.ErrInvalidTransition, r.state)
	}
	r.evidence = append(r.evidence, ev...)
	return nil
}

// Record stores the verdict for a declared control.
func (r *ModuleRun) Record(result ControlResult) error {
	if r.state != RunEvaluating {
		return fmt.Errorf("%w: result recorded in state %s", sharedErrors.ErrInvalidTransition, r.state)
	}
	if !r.declares(result.ControlID) {
		return fmt.Errorf("control %q not declared by module %s", result.ControlID, r.module)
	}
	if _, exists := r.results[result.ControlID]; exists {
		return fmt.Errorf("control %q already has a result", result.ControlID)
	}
	r.results[result.ControlID] = result
	return nil
}

// Complete finishes the run once every declared control has a result.
func (r *ModuleRun) Complete() error {
	for _, c := range r.controls {
		if _, ok := r.results[c.ID]; !ok {
			return fmt.Errorf("control %s has no result", c.ID)
		}
	}
	return r.Advance(RunCompleted)
}

// Fail moves the run to Failed from any non-terminal state. Controls
// without a verdict are reported as not_tested with the failure as rationale.
func (r *ModuleRun) Fail(kind string, err error) error {
	if r.state.Terminal() {
		return fmt.Errorf("%w: run already %s", sharedErrors.ErrInvalidTransition, r.state)
	}
	msg := "unknown failure"
	if err != nil {
		msg = err.Error()
	}
	r.failure = &UnitError{Target: r.target.ID(), Module: r.module, Kind: kind, Message: msg}
	for _, c := range r.controls {
		if _, ok := r.results[c.ID]; !ok {
			r.results[c.ID] = NotTested(c, "module run failed (%s): %s", kind, msg)
		}
	}
	r.state = RunFailed
	r.finishedAt = time.Now()
	return nil
}

// Result freezes the run into a ModuleResult. The run must be terminal.
func (r *ModuleRun) Result() (ModuleResult, error) {
	if !r.state.Terminal() {
		return ModuleResult{}, fmt.Errorf("%w: state %s", sharedErrors.ErrModuleRunNotFinished, r.state)
	}
	details := make([]ControlResult, 0, len(r.controls))
	statuses := make(map[string]Status, len(r.controls))
	evidence := make(map[string][]string, len(r.controls))
	for _, c := range r.controls {
		res := r.results[c.ID]
		details = append(details, res)
		statuses[c.ID] = res.Status
		evidence[c.ID] = EvidenceLines(res)
	}
	result := ModuleResult{
		Module:       r.module,
		ModuleNumber: r.moduleNumber,
		ModuleName:   r.moduleName,
		Target:       r.target.ID(),
		TargetKind:   r.target.Kind(),
		Timestamp:    r.finishedAt.UTC(),
		State:        r.state,
		Controls:     statuses,
		Details:      details,
		Evidence:     evidence,
		Observations: r.Observations(),
		External:     r.Evidence(),
		Catalogue:    r.catalogue.Snapshot(),
		Summary:      SummarizeControls(details),
		DurationMS:   r.finishedAt.Sub(r.startedAt).Milliseconds(),
	}
	if result.Observations == nil {
		result.Observations = []Observation{}
	}
	if result.External == nil {
		result.External = []Evidence{}
	}
	if r.failure != nil {
		failure := *r.failure
		result.Error = &failure
	}
	return result, nil
}

func (r *ModuleRun) declares(id string) bool {
	for _, c := range r.controls {
		if c.ID == id {
			return true
		}
	}
	return false
}

// EvidenceLines renders the supporting refs of a result, falling back to the
// rationale so every control has at least one line.
func EvidenceLines(res ControlResult) []string {
	lines := make([]string, 0, len(res.Supporting)+1)
	for _, ref := range res.Supporting {
		line := fmt.Sprintf("[%s/%s] %s via %s", ref.Polarity, ref.Strength, ref.Indicator, ref.Source)
		if ref.Detail != "" {
			line += ": " + ref.Detail
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 && res.Rationale != "" {
		lines = append(lines, res.Rationale)
	}
	return lines
}

// UnitResult builds a ModuleResult for a unit that never produced one, such
// as a cancelled or panicked unit. Every control is not_tested.
func UnitResult(module string, number int, name string, target Target, controls []Control, failure UnitError, elapsed time.Duration) ModuleResult {
	run := NewModuleRun(module, number, name, target, controls)
	_ = run.Fail(failure.Kind, fmt.Errorf("%s", failure.Message))
	result, _ := run.Result()
	result.DurationMS = elapsed.Milliseconds()
	return result
}
