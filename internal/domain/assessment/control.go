package assessment

import "fmt"

// Status is the three-state verdict of a control.
type Status string

const (
	StatusPass      Status = "pass"
	StatusFail      Status = "fail"
	StatusNotTested Status = "not_tested"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusNotTested:
		return true
	}
	return false
}

// Control describes one named security check.
type Control struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ControlResult is the verdict for one (target, control) pair.
type ControlResult struct {
	ControlID  string  `json:"control_id"`
	Number     string  `json:"number"`
	Name       string  `json:"name"`
	Status     Status  `json:"status"`
	Confidence float64 `json:"confidence"`
	Supporting []Ref   `json:"supporting,omitempty"`
	Rationale  string  `json:"rationale"`
}

// NotTested builds a not_tested result for control with the given rationale.
func NotTested(control Control, format string, args ...any) ControlResult {
	return ControlResult{
		ControlID: control.ID,
		Number:    control.Number,
		Name:      control.Name,
		Status:    StatusNotTested,
		Rationale: fmt.Sprintf(format, args...),
	}
}

// Tested reports whether a pass or fail verdict was reached.
func (r ControlResult) Tested() bool {
	return r.Status == StatusPass || r.Status == StatusFail
}
