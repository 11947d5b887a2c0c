package evaluator

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
)

// Evaluator applies rules under one calibration. It holds no mutable
// state and is safe for concurrent use.
type Evaluator struct {
	cal    Calibration
	logger *zap.Logger
}

// New creates an evaluator. An invalid calibration is replaced by the
// defaults.
func New(cal Calibration, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cal.Validate(); err != nil {
		logger.Warn("invalid calibration, using defaults", zap.Error(err))
		cal = DefaultCalibration()
	}
	return &Evaluator{cal: cal, logger: logger}
}

// Calibration returns the active calibration.
func (e *Evaluator) Calibration() Calibration { return e.cal }

// Evaluate decides one control. It never fails without a supporting
// reference and never returns an error: anything that goes wrong inside
// the rule resolves to not_tested.
func (e *Evaluator) Evaluate(rule Rule, observations []assessment.Observation, evidence []assessment.Evidence) (result assessment.ControlResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("control evaluation panicked",
				zap.String("control", rule.Control.ID),
				zap.Any("panic", r))
			result = assessment.NotTested(rule.Control, "evaluation error: %v", r)
		}
	}()

	var positive, exculpatory []hit
	for _, o := range observations {
		if !rule.acceptsKind(o.Kind) || rule.Filter != nil && !rule.Filter(o) {
			continue
		}
		for _, ind := range o.Indicators {
			s := rule.sideOf(ind.Name)
			if s == sideNone {
				continue
			}
			h := e.observationHit(o, ind, s)
			if s == sidePositive {
				positive = append(positive, h)
			} else {
				exculpatory = append(exculpatory, h)
			}
		}
	}
	for _, ev := range evidence {
		if !rule.acceptsEvidence(ev) {
			continue
		}
		h := e.evidenceHit(ev)
		if ev.Indicator.Polarity == assessment.Positive {
			positive = append(positive, h)
		} else {
			exculpatory = append(exculpatory, h)
		}
	}

	return e.decide(rule, positive, exculpatory)
}

func (e *Evaluator) weight(s assessment.Strength) float64 {
	if s == assessment.StrengthStrong {
		return e.cal.StrongWeight
	}
	return e.cal.WeakWeight
}

func (e *Evaluator) observationHit(o assessment.Observation, ind assessment.Indicator, s side) hit {
	pol := assessment.Positive
	if s == sideExculpatory {
		pol = assessment.Exculpatory
	}
	return hit{
		group:  "obs|" + o.Method + " " + o.Endpoint + "|" + o.Payload,
		weight: e.weight(ind.Strength),
		ref: assessment.Ref{
			Type:      assessment.RefObservation,
			Seq:       o.Seq,
			Source:    o.Method + " " + o.Endpoint,
			Indicator: ind.Name,
			Strength:  ind.Strength,
			Polarity:  pol,
			Detail:    ind.Detail,
		},
	}
}

// evidenceHit scales the external weight by strength: weak external
// evidence counts half.
func (e *Evaluator) evidenceHit(ev assessment.Evidence) hit {
	w := e.cal.ExternalWeight
	if ev.Indicator.Strength != assessment.StrengthStrong {
		w *= 0.5
	}
	detail := ev.Indicator.Detail
	if detail == "" {
		detail = ev.Excerpt
	}
	return hit{
		group:  "ev|" + ev.Source + "|" + ev.Indicator.Name,
		weight: w,
		ref: assessment.Ref{
			Type:      assessment.RefEvidence,
			Source:    ev.Source,
			Indicator: ev.Indicator.Name,
			Strength:  ev.Indicator.Strength,
			Polarity:  ev.Indicator.Polarity,
			Detail:    detail,
		},
	}
}

func (e *Evaluator) decide(rule Rule, positive, exculpatory []hit) assessment.ControlResult {
	failAt := e.cal.failThreshold(rule.Control.ID, rule.FailThreshold)
	posConf, posRefs := combine(positive)
	excConf, excRefs := combine(exculpatory)

	result := assessment.ControlResult{
		ControlID: rule.Control.ID,
		Number:    rule.Control.Number,
		Name:      rule.Control.Name,
	}
	switch {
	case len(posRefs) > 0 && posConf >= failAt:
		result.Status = assessment.StatusFail
		result.Confidence = posConf
		result.Supporting = posRefs
		result.Rationale = fmt.Sprintf("%s (confidence %.2f ≥ %.2f)", describe(posRefs), posConf, failAt)
	case len(posRefs) > 0:
		// Weak positive signals block a pass without being enough to fail.
		result.Status = assessment.StatusNotTested
		result.Confidence = posConf
		result.Supporting = posRefs
		result.Rationale = fmt.Sprintf("insufficient corroboration: %s (confidence %.2f < %.2f)", describe(posRefs), posConf, failAt)
	case len(excRefs) > 0 && excConf >= e.cal.PassThreshold:
		result.Status = assessment.StatusPass
		result.Confidence = excConf
		result.Supporting = excRefs
		result.Rationale = fmt.Sprintf("%s (confidence %.2f)", describe(excRefs), excConf)
	case len(excRefs) > 0:
		result.Status = assessment.StatusNotTested
		result.Confidence = excConf
		result.Supporting = excRefs
		result.Rationale = fmt.Sprintf("exculpatory evidence below pass threshold (%.2f < %.2f)", excConf, e.cal.PassThreshold)
	default:
		result.Status = assessment.StatusNotTested
		result.Rationale = noEvidenceRationale(rule)
	}
	return result
}

func noEvidenceRationale(rule Rule) string {
	if len(rule.RequiredTags) == 0 {
		return "no applicable observations or evidence"
	}
	tags := make([]string, len(rule.RequiredTags))
	for i, t := range rule.RequiredTags {
		tags[i] = string(t)
	}
	return "no applicable observations or evidence (requires " + strings.Join(tags, "/") + " endpoints)"
}

// describe summarises refs by indicator name.
func describe(refs []assessment.Ref) string {
	counts := map[string]int{}
	var order []string
	for _, r := range refs {
		if counts[r.Indicator] == 0 {
			order = append(order, r.Indicator)
		}
		counts[r.Indicator]++
	}
	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, fmt.Sprintf("%s ×%d", name, counts[name]))
	}
	return strings.Join(parts, ", ")
}
