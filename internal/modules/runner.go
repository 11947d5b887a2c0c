package modules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/khanhnv2901/seca-gap/internal/discovery"
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/evidence"
	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// EvidenceCollector gathers external evidence for a target.
type EvidenceCollector interface {
	Collect(ctx context.Context, t assessment.Target) ([]assessment.Evidence, []evidence.SourceError, error)
}

// Runner drives one module against one target through the run state
// machine. Discovery output and external evidence are shared between the
// modules of a target so each is produced once per Runner.
type Runner struct {
	discovery *sharedDiscovery
	probes    Prober
	evaluator *evaluator.Evaluator
	collector EvidenceCollector
	logger    *zap.Logger

	evidence       sync.Map // target id -> []assessment.Evidence
	evidenceBudget time.Duration
	flight         singleflight.Group
}

// NewRunner creates a runner. collector may be nil when no external
// evidence sources are configured.
func NewRunner(d Discoverer, p Prober, ev *evaluator.Evaluator, collector EvidenceCollector, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ev == nil {
		ev = evaluator.New(evaluator.DefaultCalibration(), logger)
	}
	return &Runner{
		discovery: &sharedDiscovery{next: d, budget: constants.DefaultDiscoveryBudget},
		probes:    p,
		evaluator: ev,
		collector: collector,
		logger:    logger,

		evidenceBudget: constants.DefaultEvidenceBudget,
	}
}

// Run executes m against t. The returned ModuleResult is always complete:
// every declared control carries a verdict. A non-nil error reports why the
// run ended Failed so callers can decide whether to retry.
func (r *Runner) Run(ctx context.Context, m Module, t assessment.Target, cfg RunConfig) (assessment.ModuleResult, error) {
	d := m.Descriptor()
	logger := r.logger.With(zap.String("module", d.ID), zap.String("target", t.ID()))
	env := &Env{
		Discovery: r.discovery,
		Probes:    r.probes,
		Evaluator: r.evaluator,
		Config:    cfg.withDefaults(),
		Logger:    logger,
	}
	run := assessment.NewModuleRun(d.ID, d.Number, d.Name, t, d.Controls)

	fail := func(stage string, err error) (assessment.ModuleResult, error) {
		kind := sharedErrors.Kind(err)
		logger.Warn("module run failed", zap.String("stage", stage), zap.String("kind", kind), zap.Error(err))
		_ = run.Fail(kind, err)
		res, _ := run.Result()
		return res, err
	}

	if err := run.Advance(assessment.RunDiscovering); err != nil {
		return fail("discovery", err)
	}
	cat, err := m.Discover(ctx, env, t)
	if err != nil {
		return fail("discovery", err)
	}
	if err := run.SetCatalogue(cat); err != nil {
		return fail("discovery", err)
	}
	logger.Debug("catalogue ready", zap.Int("endpoints", cat.Len()), zap.Bool("truncated", cat.Truncated))

	if err := run.Advance(assessment.RunProbing); err != nil {
		return fail("probing", err)
	}
	obs, probeErr := m.Probe(ctx, env, t, cat)
	if err := run.AddObservations(obs...); err != nil {
		return fail("probing", err)
	}
	if probeErr != nil {
		return fail("probing", probeErr)
	}
	ev, err := r.collect(ctx, t)
	if err != nil {
		return fail("evidence", err)
	}
	if err := run.AddEvidence(ev...); err != nil {
		return fail("evidence", err)
	}

	if err := run.Advance(assessment.RunEvaluating); err != nil {
		return fail("evaluation", err)
	}
	byID := make(map[string]assessment.ControlResult, len(d.Controls))
	for _, res := range m.Evaluate(env, run.Observations(), run.Evidence()) {
		byID[res.ControlID] = res
	}
	for _, c := range d.Controls {
		res, ok := byID[c.ID]
		if !ok {
			res = assessment.NotTested(c, "module produced no result for this control")
		}
		if err := run.Record(res); err != nil {
			return fail("evaluation", err)
		}
	}
	if err := run.Complete(); err != nil {
		return fail("evaluation", err)
	}
	res, err := run.Result()
	if err != nil {
		return fail("result", err)
	}
	logger.Info("module run completed",
		zap.Int("passed", res.Summary.Passed),
		zap.Int("failed", res.Summary.Failed),
		zap.Int("not_tested", res.Summary.NotTested),
		zap.Int("observations", len(res.Observations)))
	return res, nil
}

func (r *Runner) collect(ctx context.Context, t assessment.Target) ([]assessment.Evidence, error) {
	if r.collector == nil {
		return nil, nil
	}
	if v, ok := r.evidence.Load(t.ID()); ok {
		return append([]assessment.Evidence(nil), v.([]assessment.Evidence)...), nil
	}
	budget := r.evidenceBudget
	if budget <= 0 {
		budget = constants.DefaultEvidenceBudget
	}
	ev, err := shareOnce(ctx, &r.flight, t.ID(), budget, func(ctx context.Context) ([]assessment.Evidence, error) {
		ev, failed, err := r.collector.Collect(ctx, t)
		if err != nil {
			return nil, err
		}
		for _, f := range failed {
			r.logger.Info("evidence source unavailable",
				zap.String("target", t.ID()),
				zap.String("source", f.Source),
				zap.String("kind", f.Kind))
		}
		// A collection cut short by its deadline is used but not kept.
		if ctx.Err() == nil {
			r.evidence.Store(t.ID(), ev)
		}
		return ev, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]assessment.Evidence(nil), ev...), nil
}

// sharedDiscovery memoizes successful catalogues per target and options.
// Failures are not cached so a retried unit crawls again.
type sharedDiscovery struct {
	next   Discoverer
	budget time.Duration
	cache  sync.Map
	flight singleflight.Group
}

func (s *sharedDiscovery) Discover(ctx context.Context, t assessment.Target, opts discovery.Options) (*assessment.Catalogue, error) {
	if s.next == nil {
		return nil, fmt.Errorf("%w: no discovery engine configured", sharedErrors.ErrConfig)
	}
	key := fmt.Sprintf("%s|%d|%d|%t|%t|%t", t.ID(), opts.DepthLimit, opts.PageLimit, opts.AllowSubdomains, opts.OpenAPI, opts.WellKnown)
	if v, ok := s.cache.Load(key); ok {
		return v.(*assessment.Catalogue).Snapshot(), nil
	}
	budget := s.budget
	if budget <= 0 {
		budget = constants.DefaultDiscoveryBudget
	}
	cat, err := shareOnce(ctx, &s.flight, key, budget, func(ctx context.Context) (*assessment.Catalogue, error) {
		cat, err := s.next.Discover(ctx, t, opts)
		if err != nil {
			return nil, err
		}
		if ctx.Err() == nil {
			s.cache.Store(key, cat)
		}
		return cat, nil
	})
	if err != nil {
		return nil, err
	}
	return cat.Snapshot(), nil
}
