// Package evaluator turns observations and external evidence into
// pass, fail or not_tested verdicts.
package evaluator

import (
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
)

// Rule is the declarative decision rule of one control.
type Rule struct {
	Control assessment.Control
	// Positive indicators argue for fail, Exculpatory ones for pass.
	// Membership decides the side; the indicator's own polarity is ignored
	// for observations.
	Positive    []string
	Exculpatory []string
	// Kinds restricts which probe kinds count. Empty accepts all.
	Kinds []assessment.ProbeKind
	// Evidence lists external indicator names accepted for this control
	// in addition to evidence addressed to the control id.
	Evidence []string
	// RequiredTags names the endpoint tags the control depends on; used in
	// the rationale when nothing was observed.
	RequiredTags []assessment.Tag
	// FailThreshold overrides the calibrated threshold when > 0.
	FailThreshold float64
	// Filter, when set, drops observations the rule should not consider.
	Filter func(assessment.Observation) bool
}

type side int

const (
	sideNone side = iota
	sidePositive
	sideExculpatory
)

func contains(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}

func (r Rule) sideOf(name string) side {
	switch {
	case contains(r.Positive, name):
		return sidePositive
	case contains(r.Exculpatory, name):
		return sideExculpatory
	}
	return sideNone
}

func (r Rule) acceptsKind(k assessment.ProbeKind) bool {
	if len(r.Kinds) == 0 {
		return true
	}
	for _, kind := range r.Kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func (r Rule) acceptsEvidence(e assessment.Evidence) bool {
	if e.Control != "" {
		return e.Control == r.Control.ID
	}
	return contains(r.Evidence, e.Indicator.Name)
}

// Indicators returns every indicator name the rule reacts to.
func (r Rule) Indicators() []string {
	out := make([]string, 0, len(r.Positive)+len(r.Exculpatory)+len(r.Evidence))
	out = append(out, r.Positive...)
	out = append(out, r.Exculpatory...)
	return append(out, r.Evidence...)
}
