// Package orchestrator runs (target, module) units on a bounded worker pool
// and assembles the batch result.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khanhnv2901/seca-gap/internal/aggregate"
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/modules"
	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// UnitRunner executes one module against one target.
type UnitRunner interface {
	Run(ctx context.Context, m modules.Module, t assessment.Target, cfg modules.RunConfig) (assessment.ModuleResult, error)
}

// Options configures one batch.
type Options struct {
	MaxWorkers     int
	TimeoutPerUnit time.Duration
	Retry          RetryPolicy
	Run            modules.RunConfig
	// RunID is generated when empty.
	RunID    string
	Progress ProgressFunc
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = constants.DefaultMaxWorkers
	}
	if o.TimeoutPerUnit <= 0 {
		o.TimeoutPerUnit = constants.DefaultUnitTimeout
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	o.Retry = o.Retry.withDefaults()
	return o
}

// Validate rejects run parameters that cannot describe a bounded run.
// Zero workers and a zero unit timeout select the defaults; a zero depth
// limit is a valid limit that keeps discovery on the root page.
func (o Options) Validate() error {
	switch {
	case o.MaxWorkers < 0:
		return fmt.Errorf("%w: max_workers must not be negative, got %d", sharedErrors.ErrConfig, o.MaxWorkers)
	case o.TimeoutPerUnit < 0:
		return fmt.Errorf("%w: timeout_per_unit must not be negative, got %s", sharedErrors.ErrConfig, o.TimeoutPerUnit)
	}
	if err := o.Run.Validate(); err != nil {
		return err
	}
	return o.Retry.Validate()
}

// Orchestrator fans units out to a worker pool.
type Orchestrator struct {
	runner UnitRunner
	logger *zap.Logger
	now    func() time.Time
}

// New creates an orchestrator.
func New(runner UnitRunner, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{runner: runner, logger: logger, now: time.Now}
}

type unit struct {
	index  int
	target assessment.Target
	module modules.Module
}

// Execute runs every module against every target. Unit failures never abort
// the batch: each unit contributes a ModuleResult, failed ones with every
// control not_tested. The error return is reserved for invalid input and
// for aggregation failures.
func (o *Orchestrator) Execute(ctx context.Context, targets []assessment.Target, mods []modules.Module, opts Options) (*assessment.BatchResult, error) {
	if len(targets) == 0 {
		return nil, sharedErrors.ErrNoTargets
	}
	if len(mods) == 0 {
		return nil, fmt.Errorf("%w: no modules selected", sharedErrors.ErrInvalidInput)
	}
	opts = opts.withDefaults()
	started := o.now()

	units := make([]unit, 0, len(targets)*len(mods))
	for _, t := range targets {
		for _, m := range mods {
			units = append(units, unit{index: len(units), target: t, module: m})
		}
	}
	o.logger.Info("batch started",
		zap.String("run_id", opts.RunID),
		zap.Int("targets", len(targets)),
		zap.Int("modules", len(mods)),
		zap.Int("units", len(units)),
		zap.Int("workers", opts.MaxWorkers))

	acc := newAccumulator(len(units))
	progress := opts.Progress
	var progressMu sync.Mutex
	emit := func(ev Event) {
		if progress == nil {
			return
		}
		ev.Total = len(units)
		progressMu.Lock()
		defer progressMu.Unlock()
		progress(ev)
	}

	var g errgroup.Group
	g.SetLimit(opts.MaxWorkers)
	for _, u := range units {
		g.Go(func() error {
			d := u.module.Descriptor()
			emit(Event{Type: UnitStarted, Index: u.index, Target: u.target.ID(), Module: d.ID})

			res, meta := o.runUnit(ctx, u, opts)
			if err := acc.add(res, meta); err != nil {
				o.logger.Error("unit result rejected", zap.String("unit", res.Key().String()), zap.Error(err))
			}

			emit(Event{
				Type:     UnitFinished,
				Index:    u.index,
				Target:   u.target.ID(),
				Module:   d.ID,
				State:    res.State,
				Attempts: meta.Attempts,
				Summary:  res.Summary,
				Error:    meta.Error,
			})
			return nil
		})
	}
	_ = g.Wait()

	results, metas, errs := acc.snapshot()
	aggregate.Sort(results)
	overall, perTarget, err := aggregate.Merge(results)
	if err != nil {
		return nil, fmt.Errorf("aggregate results: %w", err)
	}

	completed := o.now()
	targetIDs := make([]string, len(targets))
	for i, t := range targets {
		targetIDs[i] = t.ID()
	}
	batch := &assessment.BatchResult{
		ReportType:     assessment.ReportType,
		RunID:          opts.RunID,
		GeneratedAt:    completed.UTC(),
		Targets:        targetIDs,
		Modules:        results,
		OverallSummary: overall,
		TargetsSummary: perTarget,
		Execution: assessment.ExecutionMeta{
			StartedAt:   started.UTC(),
			CompletedAt: completed.UTC(),
			DurationMS:  completed.Sub(started).Milliseconds(),
			MaxWorkers:  opts.MaxWorkers,
			Units:       metas,
			Errors:      errs,
		},
	}
	o.logger.Info("batch completed",
		zap.String("run_id", opts.RunID),
		zap.Int("units", len(results)),
		zap.Int("unit_errors", len(errs)),
		zap.Float64("coverage", overall.Coverage),
		zap.Duration("elapsed", completed.Sub(started)))
	return batch, nil
}

// runUnit executes one unit with its deadline and retry policy. It always
// returns a complete ModuleResult.
func (o *Orchestrator) runUnit(ctx context.Context, u unit, opts Options) (assessment.ModuleResult, assessment.UnitMeta) {
	d := u.module.Descriptor()
	logger := o.logger.With(zap.String("module", d.ID), zap.String("target", u.target.ID()))
	start := o.now()

	var (
		res      assessment.ModuleResult
		lastErr  error
		attempts int
	)
	err := retry.Do(ctx, opts.Retry.backoff(), func(ctx context.Context) error {
		attempts++
		unitCtx, cancel := context.WithTimeout(ctx, opts.TimeoutPerUnit)
		defer cancel()

		res, lastErr = o.safeRun(unitCtx, u, opts.Run)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() == nil && sharedErrors.IsTransient(lastErr) {
			logger.Info("unit attempt failed, retrying",
				zap.Int("attempt", attempts),
				zap.String("kind", sharedErrors.Kind(lastErr)),
				zap.Error(lastErr))
			return retry.RetryableError(lastErr)
		}
		return lastErr
	})

	elapsed := o.now().Sub(start)
	if attempts == 0 {
		// The parent context was already done; nothing ran.
		lastErr = err
		if lastErr == nil {
			lastErr = ctx.Err()
		}
		res = assessment.UnitResult(d.ID, d.Number, d.Name, u.target, d.Controls, assessment.UnitError{
			Target:  u.target.ID(),
			Module:  d.ID,
			Kind:    sharedErrors.Kind(lastErr),
			Message: fmt.Sprintf("unit not started: %v", lastErr),
		}, elapsed)
	}
	res.DurationMS = elapsed.Milliseconds()

	meta := assessment.UnitMeta{
		Target:     u.target.ID(),
		Module:     d.ID,
		State:      res.State,
		Attempts:   attempts,
		DurationMS: res.DurationMS,
	}
	if res.Error != nil {
		meta.Error = res.Error.Message
		meta.ErrorKind = res.Error.Kind
	}
	return res, meta
}

// safeRun isolates the batch from a panicking module.
func (o *Orchestrator) safeRun(ctx context.Context, u unit, cfg modules.RunConfig) (res assessment.ModuleResult, err error) {
	d := u.module.Descriptor()
	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module panicked: %v", r)
			o.logger.Error("module panicked", zap.String("module", d.ID), zap.String("target", u.target.ID()), zap.Any("panic", r))
			res = assessment.UnitResult(d.ID, d.Number, d.Name, u.target, d.Controls, assessment.UnitError{
				Target:  u.target.ID(),
				Module:  d.ID,
				Kind:    sharedErrors.KindInternal,
				Message: err.Error(),
			}, o.now().Sub(start))
		}
	}()
	return o.runner.Run(ctx, u.module, u.target, cfg)
}
