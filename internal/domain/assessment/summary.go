package assessment

import "math"

// Summary holds verdict counts and derived rates. Rates are percentages
// rounded to two decimals.
type Summary struct {
	Total     int     `json:"total"`
	Passed    int     `json:"passed"`
	Failed    int     `json:"failed"`
	NotTested int     `json:"not_tested"`
	PassRate  float64 `json:"pass_rate"`
	Coverage  float64 `json:"coverage"`
}

// Tested returns the number of controls with a pass or fail verdict.
func (s Summary) Tested() int { return s.Total - s.NotTested }

// Count adds one verdict.
func (s *Summary) Count(status Status) {
	s.Total++
	switch status {
	case StatusPass:
		s.Passed++
	case StatusFail:
		s.Failed++
	default:
		s.NotTested++
	}
}

// Add folds other's counts into s. Rates must be recomputed with Finalize.
func (s *Summary) Add(other Summary) {
	s.Total += other.Total
	s.Passed += other.Passed
	s.Failed += other.Failed
	s.NotTested += other.NotTested
}

// Finalize recomputes pass rate (passed/tested) and coverage (tested/total).
func (s *Summary) Finalize() {
	s.PassRate, s.Coverage = 0, 0
	tested := s.Tested()
	if tested > 0 {
		s.PassRate = round2(float64(s.Passed) / float64(tested) * 100)
	}
	if s.Total > 0 {
		s.Coverage = round2(float64(tested) / float64(s.Total) * 100)
	}
}

// SummarizeControls tallies a list of control results.
func SummarizeControls(results []ControlResult) Summary {
	var s Summary
	for _, r := range results {
		s.Count(r.Status)
	}
	s.Finalize()
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
