package modules

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-gap/internal/discovery"
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/probe"
	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// Discoverer builds the endpoint catalogue of a remote target.
type Discoverer interface {
	Discover(ctx context.Context, t assessment.Target, opts discovery.Options) (*assessment.Catalogue, error)
}

// Prober runs one probe kind against one endpoint.
type Prober interface {
	Probe(ctx context.Context, t assessment.Target, ep assessment.Endpoint, kind assessment.ProbeKind, payloads []probe.Payload) ([]assessment.Observation, error)
}

// Env carries the shared pipeline components a module works with.
type Env struct {
	Discovery Discoverer
	Probes    Prober
	Evaluator *evaluator.Evaluator
	Config    RunConfig
	Logger    *zap.Logger
}

// RunConfig bounds one module run.
type RunConfig struct {
	Discovery discovery.Options
	// MaxEndpoints caps how many endpoints each probe step touches.
	MaxEndpoints int
	// SkipBurst disables burst probes (rate limiting, DoS resilience).
	SkipBurst bool
}

// withDefaults fills unset bounds. DepthLimit is never defaulted: 0 is a
// real limit (root page only).
func (c RunConfig) withDefaults() RunConfig {
	if c.Discovery.PageLimit <= 0 {
		c.Discovery.PageLimit = constants.DefaultPageLimit
	}
	if c.MaxEndpoints <= 0 {
		c.MaxEndpoints = constants.DefaultProbeEndpoints
	}
	return c
}

// Validate rejects negative bounds.
func (c RunConfig) Validate() error {
	switch {
	case c.Discovery.DepthLimit < 0:
		return fmt.Errorf("%w: depth_limit must not be negative, got %d", sharedErrors.ErrConfig, c.Discovery.DepthLimit)
	case c.Discovery.PageLimit < 0:
		return fmt.Errorf("%w: page_limit must not be negative, got %d", sharedErrors.ErrConfig, c.Discovery.PageLimit)
	case c.MaxEndpoints < 0:
		return fmt.Errorf("%w: max_endpoints must not be negative, got %d", sharedErrors.ErrConfig, c.MaxEndpoints)
	}
	return nil
}

// Descriptor identifies a module and declares its controls in order.
type Descriptor struct {
	ID          string               `json:"id"`
	Number      int                  `json:"number"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Controls    []assessment.Control `json:"controls"`
}

// Module is one control family. Implementations are stateless; all run
// state lives in the ModuleRun driven by the Runner.
type Module interface {
	Descriptor() Descriptor
	// Discover returns the catalogue the module probes. Document-set
	// targets yield an empty catalogue.
	Discover(ctx context.Context, env *Env, t assessment.Target) (*assessment.Catalogue, error)
	// Probe runs the module's probe plan over the catalogue.
	Probe(ctx context.Context, env *Env, t assessment.Target, cat *assessment.Catalogue) ([]assessment.Observation, error)
	// Evaluate returns exactly one result per declared control, in
	// declaration order.
	Evaluate(env *Env, observations []assessment.Observation, evidence []assessment.Evidence) []assessment.ControlResult
}

// ProbeStep is one entry of a module's probe plan.
type ProbeStep struct {
	Kind     assessment.ProbeKind
	Payloads []probe.Payload
	// Select picks eligible endpoints. Nil accepts every endpoint.
	Select func(assessment.Endpoint) bool
	// Limit caps the endpoints probed; 0 uses RunConfig.MaxEndpoints.
	Limit int
	// Burst steps send a request burst and honour RunConfig.SkipBurst.
	Burst bool
}

// control pairs a declared control with its decision rule.
type control struct {
	assessment.Control
	rule evaluator.Rule
}

// planModule is the table-driven Module implementation shared by every
// registered family: a descriptor, a probe plan and one rule per control.
type planModule struct {
	id          string
	number      int
	name        string
	description string
	plan        []ProbeStep
	controls    []control
}

func (m *planModule) Descriptor() Descriptor {
	out := Descriptor{ID: m.id, Number: m.number, Name: m.name, Description: m.description}
	for _, c := range m.controls {
		out.Controls = append(out.Controls, c.Control)
	}
	return out
}

func (m *planModule) Discover(ctx context.Context, env *Env, t assessment.Target) (*assessment.Catalogue, error) {
	if !t.IsRemote() {
		return &assessment.Catalogue{Target: t.ID(), Endpoints: []assessment.Endpoint{}}, nil
	}
	return env.Discovery.Discover(ctx, t, env.Config.Discovery)
}

func (m *planModule) Probe(ctx context.Context, env *Env, t assessment.Target, cat *assessment.Catalogue) ([]assessment.Observation, error) {
	if !t.IsRemote() || cat.Len() == 0 {
		return nil, nil
	}
	var out []assessment.Observation
	for _, step := range m.plan {
		if step.Burst && env.Config.SkipBurst {
			env.Logger.Debug("burst probe skipped", zap.String("module", m.id), zap.String("kind", string(step.Kind)))
			continue
		}
		for _, ep := range step.endpoints(cat, env.Config.MaxEndpoints) {
			obs, err := env.Probes.Probe(ctx, t, ep, step.Kind, step.Payloads)
			if err != nil {
				return out, fmt.Errorf("probe %s %s: %w", step.Kind, ep.URL, err)
			}
			out = append(out, obs...)
		}
	}
	return out, nil
}

func (m *planModule) Evaluate(env *Env, observations []assessment.Observation, evidence []assessment.Evidence) []assessment.ControlResult {
	results := make([]assessment.ControlResult, 0, len(m.controls))
	for _, c := range m.controls {
		results = append(results, env.Evaluator.Evaluate(c.rule, observations, evidence))
	}
	return results
}

// injects reports whether kind sends caller-controlled values to the
// endpoint's own method and URL.
func injects(kind assessment.ProbeKind) bool {
	return kind == assessment.ProbeReflection || kind == assessment.ProbeBoundary
}

func (s ProbeStep) endpoints(cat *assessment.Catalogue, fallback int) []assessment.Endpoint {
	limit := s.Limit
	if limit <= 0 {
		limit = fallback
	}
	var out []assessment.Endpoint
	for _, ep := range cat.Select() {
		if len(out) >= limit {
			break
		}
		if injects(s.Kind) && probe.IsDestructive(ep) {
			continue
		}
		if s.Select == nil || s.Select(ep) {
			out = append(out, ep)
		}
	}
	return out
}
