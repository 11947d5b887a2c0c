package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/modules"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

type fakeModule struct {
	id     string
	number int
}

func (m fakeModule) Descriptor() modules.Descriptor {
	return modules.Descriptor{
		ID:     m.id,
		Number: m.number,
		Name:   m.id,
		Controls: []assessment.Control{
			{ID: m.id + "_A", Number: fmt.Sprintf("%03d", m.number*10+1), Name: "A"},
			{ID: m.id + "_B", Number: fmt.Sprintf("%03d", m.number*10+2), Name: "B"},
		},
	}
}

func (fakeModule) Discover(context.Context, *modules.Env, assessment.Target) (*assessment.Catalogue, error) {
	return &assessment.Catalogue{}, nil
}

func (fakeModule) Probe(context.Context, *modules.Env, assessment.Target, *assessment.Catalogue) ([]assessment.Observation, error) {
	return nil, nil
}

func (fakeModule) Evaluate(*modules.Env, []assessment.Observation, []assessment.Evidence) []assessment.ControlResult {
	return nil
}

// runnerFunc adapts a function to UnitRunner.
type runnerFunc func(ctx context.Context, m modules.Module, t assessment.Target) (assessment.ModuleResult, error)

func (f runnerFunc) Run(ctx context.Context, m modules.Module, t assessment.Target, _ modules.RunConfig) (assessment.ModuleResult, error) {
	return f(ctx, m, t)
}

func completed(m modules.Module, t assessment.Target) assessment.ModuleResult {
	d := m.Descriptor()
	run := assessment.NewModuleRun(d.ID, d.Number, d.Name, t, d.Controls)
	_ = run.Advance(assessment.RunDiscovering)
	_ = run.Advance(assessment.RunProbing)
	_ = run.Advance(assessment.RunEvaluating)
	for _, c := range d.Controls {
		_ = run.Record(assessment.ControlResult{ControlID: c.ID, Number: c.Number, Name: c.Name, Status: assessment.StatusPass, Confidence: 0.9, Rationale: "ok"})
	}
	_ = run.Complete()
	res, _ := run.Result()
	return res
}

func failed(m modules.Module, t assessment.Target, err error) (assessment.ModuleResult, error) {
	d := m.Descriptor()
	run := assessment.NewModuleRun(d.ID, d.Number, d.Name, t, d.Controls)
	_ = run.Fail(sharedErrors.Kind(err), err)
	res, _ := run.Result()
	return res, err
}

func targets(t *testing.T, ids ...string) []assessment.Target {
	t.Helper()
	out := make([]assessment.Target, 0, len(ids))
	for _, id := range ids {
		target, err := assessment.NewTarget(id, assessment.TargetKindWeb)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, target)
	}
	return out
}

var fastRetry = RetryPolicy{MaxAttempts: 1, Base: time.Millisecond, Max: time.Millisecond}

func TestExecuteOneUnitTimesOut(t *testing.T) {
	mods := []modules.Module{fakeModule{"fast", 1}, fakeModule{"slow", 2}}
	runner := runnerFunc(func(ctx context.Context, m modules.Module, tgt assessment.Target) (assessment.ModuleResult, error) {
		if m.Descriptor().ID == "slow" && tgt.ID() == "https://b.example/" {
			<-ctx.Done()
			return failed(m, tgt, ctx.Err())
		}
		return completed(m, tgt), nil
	})

	batch, err := New(runner, zaptest.NewLogger(t)).Execute(context.Background(),
		targets(t, "https://a.example/", "https://b.example/"), mods,
		Options{MaxWorkers: 4, TimeoutPerUnit: 100 * time.Millisecond, Retry: fastRetry})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Modules) != 4 {
		t.Fatalf("expected 4 module results, got %d", len(batch.Modules))
	}
	if len(batch.Execution.Errors) != 1 || batch.Execution.Errors[0].Kind != sharedErrors.KindTimeout {
		t.Fatalf("expected one timeout error, got %+v", batch.Execution.Errors)
	}
	for _, res := range batch.Modules {
		timedOut := res.Module == "slow" && res.Target == "https://b.example/"
		if timedOut {
			if res.State != assessment.RunFailed || res.Summary.NotTested != 2 {
				t.Fatalf("timed-out unit should be failed with controls not_tested: %+v", res.Summary)
			}
			continue
		}
		if res.State != assessment.RunCompleted {
			t.Fatalf("unit %s unexpectedly %s", res.Key(), res.State)
		}
	}
	if batch.OverallSummary.Total != 8 || batch.OverallSummary.Passed != 6 || batch.OverallSummary.NotTested != 2 {
		t.Fatalf("unexpected overall summary %+v", batch.OverallSummary)
	}
	// Sorted by target then module number.
	if batch.Modules[0].Target != "https://a.example/" || batch.Modules[1].ModuleNumber != 2 || batch.Modules[2].Target != "https://b.example/" {
		t.Fatalf("results not ordered: %s, %s, %s", batch.Modules[0].Key(), batch.Modules[1].Key(), batch.Modules[2].Key())
	}
	if batch.ReportType != assessment.ReportType || batch.RunID == "" {
		t.Fatalf("batch metadata missing: %q %q", batch.ReportType, batch.RunID)
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(ctx context.Context, m modules.Module, tgt assessment.Target) (assessment.ModuleResult, error) {
		if calls.Add(1) == 1 {
			return failed(m, tgt, fmt.Errorf("%w: connection reset", sharedErrors.ErrNetwork))
		}
		return completed(m, tgt), nil
	})

	batch, err := New(runner, zaptest.NewLogger(t)).Execute(context.Background(),
		targets(t, "https://a.example/"), []modules.Module{fakeModule{"m", 1}},
		Options{Retry: RetryPolicy{MaxAttempts: 3, Base: time.Millisecond, Max: 5 * time.Millisecond}})
	if err != nil {
		t.Fatal(err)
	}
	meta := batch.Execution.Units[0]
	if meta.Attempts != 2 || meta.State != assessment.RunCompleted {
		t.Fatalf("expected success on second attempt, got %+v", meta)
	}
	if len(batch.Execution.Errors) != 0 {
		t.Fatalf("recovered unit should not report errors: %+v", batch.Execution.Errors)
	}
}

func TestExecuteDoesNotRetryPermanentFailures(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(ctx context.Context, m modules.Module, tgt assessment.Target) (assessment.ModuleResult, error) {
		calls.Add(1)
		return failed(m, tgt, fmt.Errorf("%w: bad tool output", sharedErrors.ErrParse))
	})

	batch, err := New(runner, zaptest.NewLogger(t)).Execute(context.Background(),
		targets(t, "https://a.example/"), []modules.Module{fakeModule{"m", 1}},
		Options{Retry: RetryPolicy{MaxAttempts: 3, Base: time.Millisecond}})
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("parse errors must not be retried, ran %d times", calls.Load())
	}
	if batch.Execution.Errors[0].Kind != sharedErrors.KindParse {
		t.Fatalf("unexpected error kind %+v", batch.Execution.Errors[0])
	}
}

func TestExecuteRecoversPanickingModule(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, m modules.Module, tgt assessment.Target) (assessment.ModuleResult, error) {
		if m.Descriptor().ID == "broken" {
			panic("nil map")
		}
		return completed(m, tgt), nil
	})

	batch, err := New(runner, zaptest.NewLogger(t)).Execute(context.Background(),
		targets(t, "https://a.example/"), []modules.Module{fakeModule{"ok", 1}, fakeModule{"broken", 2}},
		Options{Retry: fastRetry})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Modules) != 2 {
		t.Fatalf("expected both units reported, got %d", len(batch.Modules))
	}
	broken := batch.Modules[1]
	if broken.Error == nil || broken.Error.Kind != sharedErrors.KindInternal || broken.Summary.NotTested != 2 {
		t.Fatalf("panicking unit not contained: %+v", broken.Error)
	}
}

func TestExecuteBoundsConcurrencyAndReportsProgress(t *testing.T) {
	var inFlight, peak atomic.Int32
	runner := runnerFunc(func(ctx context.Context, m modules.Module, tgt assessment.Target) (assessment.ModuleResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return completed(m, tgt), nil
	})

	var (
		mu     sync.Mutex
		events []Event
	)
	mods := []modules.Module{fakeModule{"m1", 1}, fakeModule{"m2", 2}, fakeModule{"m3", 3}}
	_, err := New(runner, zaptest.NewLogger(t)).Execute(context.Background(),
		targets(t, "https://a.example/", "https://b.example/"), mods,
		Options{MaxWorkers: 2, Retry: fastRetry, Progress: func(ev Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		}})
	if err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 2 {
		t.Fatalf("worker bound exceeded: %d concurrent units", peak.Load())
	}
	started, finished := 0, 0
	for _, ev := range events {
		if ev.Total != 6 {
			t.Fatalf("event total %d, want 6", ev.Total)
		}
		switch ev.Type {
		case UnitStarted:
			started++
		case UnitFinished:
			finished++
		}
	}
	if started != 6 || finished != 6 {
		t.Fatalf("expected 6 start and 6 finish events, got %d/%d", started, finished)
	}
}

func TestExecuteCancelledBatchStillCoversEveryUnit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := runnerFunc(func(ctx context.Context, m modules.Module, tgt assessment.Target) (assessment.ModuleResult, error) {
		return completed(m, tgt), nil
	})

	batch, err := New(runner, zaptest.NewLogger(t)).Execute(ctx,
		targets(t, "https://a.example/"), []modules.Module{fakeModule{"m1", 1}, fakeModule{"m2", 2}},
		Options{Retry: fastRetry})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Modules) != 2 || len(batch.Execution.Errors) != 2 {
		t.Fatalf("expected two not-started units, got %d results and %d errors", len(batch.Modules), len(batch.Execution.Errors))
	}
	for _, res := range batch.Modules {
		if res.Summary.NotTested != res.Summary.Total {
			t.Fatalf("not-started unit has verdicts: %+v", res.Summary)
		}
	}
}

func TestExecuteRejectsEmptyInput(t *testing.T) {
	o := New(runnerFunc(nil), zaptest.NewLogger(t))
	if _, err := o.Execute(context.Background(), nil, []modules.Module{fakeModule{"m", 1}}, Options{}); !errors.Is(err, sharedErrors.ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
	if _, err := o.Execute(context.Background(), targets(t, "https://a.example/"), nil, Options{}); !errors.Is(err, sharedErrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRetryPolicyValidate(t *testing.T) {
	if err := (RetryPolicy{Kind: "fibonacci"}).Validate(); !errors.Is(err, sharedErrors.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	if err := (RetryPolicy{Base: time.Second, Max: time.Millisecond}).Validate(); err == nil {
		t.Fatal("expected inverted bounds to be rejected")
	}
	if err := DefaultRetryPolicy().Validate(); err != nil {
		t.Fatal(err)
	}
}
