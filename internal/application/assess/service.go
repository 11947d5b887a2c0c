// Package assess coordinates a full assessment run: target resolution,
// module selection, batch execution and persistence.
package assess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-gap/internal/aggregate"
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/modules"
	"github.com/khanhnv2901/seca-gap/internal/orchestrator"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// TargetResolver turns raw inputs into targets.
type TargetResolver interface {
	Resolve(inputs []string) ([]assessment.Target, error)
}

// Executor runs a batch.
type Executor interface {
	Execute(ctx context.Context, targets []assessment.Target, mods []modules.Module, opts orchestrator.Options) (*assessment.BatchResult, error)
}

// Request describes one run.
type Request struct {
	// Command labels the telemetry record ("assess", "serve").
	Command string
	Targets []string
	// Modules selects modules by id or number; empty runs all.
	Modules []string
	Options orchestrator.Options
}

// Outcome is what a run produced.
type Outcome struct {
	Batch       *assessment.BatchResult
	BatchPath   string
	ModulePaths []string
}

// Service runs assessments and persists their results.
type Service struct {
	resolver  TargetResolver
	registry  *modules.Registry
	executor  Executor
	repo      assessment.Repository
	telemetry assessment.TelemetryRecorder
	logger    *zap.Logger
}

// NewService creates the service. telemetry may be nil.
func NewService(
	resolver TargetResolver,
	registry *modules.Registry,
	executor Executor,
	repo assessment.Repository,
	telemetry assessment.TelemetryRecorder,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		resolver:  resolver,
		registry:  registry,
		executor:  executor,
		repo:      repo,
		telemetry: telemetry,
		logger:    logger,
	}
}

// Registry returns the module registry.
func (s *Service) Registry() *modules.Registry { return s.registry }

// Prepare resolves targets and modules without running anything, so that
// configuration errors surface before any unit starts.
func (s *Service) Prepare(req Request) ([]assessment.Target, []modules.Module, error) {
	targets, err := s.resolver.Resolve(req.Targets)
	if err != nil {
		return nil, nil, err
	}
	mods, err := s.registry.Select(req.Modules)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", sharedErrors.ErrConfig, err)
	}
	if err := req.Options.Validate(); err != nil {
		return nil, nil, err
	}
	return targets, mods, nil
}

// Run executes the request. Every module result and the batch result are
// persisted; a persistence failure is returned together with the batch so
// the caller can still report it.
func (s *Service) Run(ctx context.Context, req Request) (*Outcome, error) {
	targets, mods, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}

	batch, err := s.executor.Execute(ctx, targets, mods, req.Options)
	if err != nil {
		return nil, fmt.Errorf("execute batch: %w", err)
	}
	out := &Outcome{Batch: batch}

	// Persistence outlives a cancelled run: partial results are still written.
	saveCtx := context.WithoutCancel(ctx)
	var saveErrs []error
	for _, res := range batch.Modules {
		path, err := s.repo.SaveModule(saveCtx, batch.RunID, res)
		if err != nil {
			saveErrs = append(saveErrs, fmt.Errorf("save %s: %w", res.Key(), err))
			continue
		}
		out.ModulePaths = append(out.ModulePaths, path)
	}
	path, err := s.repo.SaveBatch(saveCtx, batch)
	if err != nil {
		saveErrs = append(saveErrs, fmt.Errorf("save batch: %w", err))
	}
	out.BatchPath = path

	s.record(saveCtx, req.Command, batch)
	if len(saveErrs) > 0 {
		return out, errors.Join(saveErrs...)
	}
	s.logger.Info("run persisted",
		zap.String("run_id", batch.RunID),
		zap.String("batch", out.BatchPath),
		zap.Int("module_files", len(out.ModulePaths)))
	return out, nil
}

// Merge rebuilds batch_result.json of runID from its module result files.
func (s *Service) Merge(ctx context.Context, runID string) (*Outcome, error) {
	results, err := s.repo.LoadModules(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: run %s has no module results", sharedErrors.ErrRunNotFound, runID)
	}
	batch, err := BuildBatch(runID, results, time.Now())
	if err != nil {
		return nil, err
	}
	path, err := s.repo.SaveBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "merge", batch)
	return &Outcome{Batch: batch, BatchPath: path}, nil
}

// Load returns the stored batch of runID.
func (s *Service) Load(ctx context.Context, runID string) (*assessment.BatchResult, error) {
	return s.repo.LoadBatch(ctx, runID)
}

// Runs lists stored runs newest first.
func (s *Service) Runs(ctx context.Context) ([]string, error) {
	return s.repo.ListRuns(ctx)
}

func (s *Service) record(ctx context.Context, command string, batch *assessment.BatchResult) {
	if s.telemetry == nil {
		return
	}
	if command == "" {
		command = "assess"
	}
	if err := s.telemetry.Record(ctx, assessment.NewTelemetry(command, batch)); err != nil {
		s.logger.Warn("failed to record telemetry", zap.Error(err))
	}
}

// BuildBatch assembles a batch from module results produced earlier,
// deriving execution metadata from the results themselves.
func BuildBatch(runID string, results []assessment.ModuleResult, now time.Time) (*assessment.BatchResult, error) {
	results = append([]assessment.ModuleResult(nil), results...)
	aggregate.Sort(results)
	overall, perTarget, err := aggregate.Merge(results)
	if err != nil {
		return nil, err
	}

	exec := assessment.ExecutionMeta{
		Units:  make([]assessment.UnitMeta, 0, len(results)),
		Errors: []assessment.UnitError{},
	}
	for _, res := range results {
		meta := assessment.UnitMeta{
			Target:     res.Target,
			Module:     res.Module,
			State:      res.State,
			Attempts:   1,
			DurationMS: res.DurationMS,
		}
		if res.Error != nil {
			meta.Error = res.Error.Message
			meta.ErrorKind = res.Error.Kind
			exec.Errors = append(exec.Errors, *res.Error)
		}
		exec.Units = append(exec.Units, meta)
		exec.DurationMS += res.DurationMS

		start := res.Timestamp.Add(-time.Duration(res.DurationMS) * time.Millisecond)
		if exec.StartedAt.IsZero() || start.Before(exec.StartedAt) {
			exec.StartedAt = start.UTC()
		}
		if res.Timestamp.After(exec.CompletedAt) {
			exec.CompletedAt = res.Timestamp.UTC()
		}
	}
	if !exec.StartedAt.IsZero() && exec.CompletedAt.After(exec.StartedAt) {
		exec.DurationMS = exec.CompletedAt.Sub(exec.StartedAt).Milliseconds()
	}

	return &assessment.BatchResult{
		ReportType:     assessment.ReportType,
		RunID:          runID,
		GeneratedAt:    now.UTC(),
		Targets:        aggregate.Targets(results),
		Modules:        results,
		OverallSummary: overall,
		TargetsSummary: perTarget,
		Execution:      exec,
	}, nil
}
