package assess

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/seca-gap/internal/discovery"
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/infrastructure/persistence/json"
	"github.com/khanhnv2901/seca-gap/internal/infrastructure/schema"
	"github.com/khanhnv2901/seca-gap/internal/modules"
	"github.com/khanhnv2901/seca-gap/internal/orchestrator"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
	"github.com/khanhnv2901/seca-gap/internal/target"
)

// executorFunc completes every unit with all controls not_tested.
type executorFunc func(targets []assessment.Target, mods []modules.Module, opts orchestrator.Options) (*assessment.BatchResult, error)

func (f executorFunc) Execute(_ context.Context, targets []assessment.Target, mods []modules.Module, opts orchestrator.Options) (*assessment.BatchResult, error) {
	return f(targets, mods, opts)
}

func notTestedBatch(t *testing.T) executorFunc {
	return func(targets []assessment.Target, mods []modules.Module, opts orchestrator.Options) (*assessment.BatchResult, error) {
		var results []assessment.ModuleResult
		for _, tg := range targets {
			for _, m := range mods {
				d := m.Descriptor()
				run := assessment.NewModuleRun(d.ID, d.Number, d.Name, tg, d.Controls)
				for _, s := range []assessment.RunState{assessment.RunDiscovering, assessment.RunProbing, assessment.RunEvaluating} {
					if err := run.Advance(s); err != nil {
						t.Fatal(err)
					}
				}
				for _, c := range d.Controls {
					if err := run.Record(assessment.NotTested(c, "no applicable observations or evidence")); err != nil {
						t.Fatal(err)
					}
				}
				if err := run.Complete(); err != nil {
					t.Fatal(err)
				}
				res, err := run.Result()
				if err != nil {
					t.Fatal(err)
				}
				results = append(results, res)
			}
		}
		return BuildBatch(opts.RunID, results, time.Now())
	}
}

func newService(t *testing.T, exec Executor) (*Service, *json.ResultRepository, *json.TelemetryLog) {
	t.Helper()
	v, err := schema.Default()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	repo, err := json.NewResultRepository(dir, v)
	if err != nil {
		t.Fatal(err)
	}
	tel, err := json.NewTelemetryLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	logger := zaptest.NewLogger(t)
	return NewService(target.NewResolver(logger), modules.Default(), exec, repo, tel, logger), repo, tel
}

func TestRunPersistsEveryUnit(t *testing.T) {
	svc, repo, tel := newService(t, notTestedBatch(t))
	out, err := svc.Run(context.Background(), Request{
		Targets: []string{"https://a.example", "https://b.example"},
		Modules: []string{"authentication", "3"},
		Options: orchestrator.Options{RunID: "run-42"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.ModulePaths) != 4 {
		t.Fatalf("expected 4 module files, got %d", len(out.ModulePaths))
	}
	if filepath.Base(out.BatchPath) != json.BatchFileName {
		t.Fatalf("unexpected batch path %s", out.BatchPath)
	}

	loaded, err := repo.LoadBatch(context.Background(), "run-42")
	if err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if loaded.OverallSummary.Total != 24 || loaded.OverallSummary.NotTested != 24 {
		t.Fatalf("unexpected summary %+v", loaded.OverallSummary)
	}

	f, err := os.Open(tel.Path())
	if err != nil {
		t.Fatalf("telemetry not written: %v", err)
	}
	defer f.Close()
	lines := 0
	for sc := bufio.NewScanner(f); sc.Scan(); {
		lines++
	}
	if lines != 1 {
		t.Fatalf("expected one telemetry record, got %d", lines)
	}
}

func TestPrepareRejectsConfigErrors(t *testing.T) {
	svc, _, _ := newService(t, notTestedBatch(t))

	_, _, err := svc.Prepare(Request{Targets: []string{"", "# comment"}})
	if !errors.Is(err, sharedErrors.ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}

	_, _, err = svc.Prepare(Request{Targets: []string{"https://a.example"}, Modules: []string{"module42"}})
	if !errors.Is(err, sharedErrors.ErrConfig) || !errors.Is(err, sharedErrors.ErrUnknownModule) {
		t.Fatalf("expected config error for unknown module, got %v", err)
	}

	badOptions := map[string]orchestrator.Options{
		"retry attempts": {Retry: orchestrator.RetryPolicy{MaxAttempts: -1}},
		"workers":        {MaxWorkers: -1},
		"unit timeout":   {TimeoutPerUnit: -time.Second},
		"depth limit":    {Run: modules.RunConfig{Discovery: discovery.Options{DepthLimit: -1}}},
		"page limit":     {Run: modules.RunConfig{Discovery: discovery.Options{PageLimit: -5}}},
		"max endpoints":  {Run: modules.RunConfig{MaxEndpoints: -2}},
	}
	for name, opts := range badOptions {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.Prepare(Request{Targets: []string{"https://a.example"}, Options: opts})
			if !errors.Is(err, sharedErrors.ErrConfig) {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}

	_, _, err = svc.Prepare(Request{
		Targets: []string{"https://a.example"},
		Options: orchestrator.Options{Run: modules.RunConfig{Discovery: discovery.Options{DepthLimit: 0, PageLimit: 1}}},
	})
	if err != nil {
		t.Fatalf("depth 0 is a valid limit: %v", err)
	}
}

func TestMergeRebuildsBatch(t *testing.T) {
	svc, repo, _ := newService(t, notTestedBatch(t))
	out, err := svc.Run(context.Background(), Request{
		Targets: []string{"https://a.example"},
		Options: orchestrator.Options{RunID: "run-7"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(out.BatchPath); err != nil {
		t.Fatal(err)
	}

	merged, err := svc.Merge(context.Background(), "run-7")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged.Batch.Modules) != 8 || merged.Batch.OverallSummary.Total != 65 {
		t.Fatalf("unexpected merged batch: %d modules, %d controls", len(merged.Batch.Modules), merged.Batch.OverallSummary.Total)
	}
	if _, err := repo.LoadBatch(context.Background(), "run-7"); err != nil {
		t.Fatalf("merged batch unreadable: %v", err)
	}

	if _, err := svc.Merge(context.Background(), "no-such-run"); !errors.Is(err, sharedErrors.ErrRunNotFound) {
		t.Fatalf("expected run not found, got %v", err)
	}
}
