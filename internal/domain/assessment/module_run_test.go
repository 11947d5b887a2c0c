package assessment

import (
	"errors"
	"testing"

	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

func testControls() []Control {
	return []Control{
		{ID: "SQL_Injection", Number: "001", Name: "SQL Injection"},
		{ID: "XSS", Number: "002", Name: "Cross-Site Scripting"},
	}
}

func mustTarget(t *testing.T) Target {
	t.Helper()
	target, err := NewTarget("https://example.com/", TargetKindWeb)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	return target
}

func TestModuleRunHappyPath(t *testing.T) {
	run := NewModuleRun("input_validation", 1, "Input Validation", mustTarget(t), testControls())

	for _, next := range []RunState{RunDiscovering, RunProbing, RunEvaluating} {
		if err := run.Advance(next); err != nil {
			t.Fatalf("Advance(%s): %v", next, err)
		}
	}
	if err := run.Record(ControlResult{ControlID: "SQL_Injection", Status: StatusPass, Confidence: 0.6}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := run.Complete(); err == nil {
		t.Fatal("expected Complete to fail while XSS has no result")
	}
	if err := run.Record(ControlResult{ControlID: "XSS", Status: StatusNotTested}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := run.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	result, err := run.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result.State != RunCompleted {
		t.Fatalf("state = %s", result.State)
	}
	if result.Details[0].ControlID != "SQL_Injection" || result.Details[1].ControlID != "XSS" {
		t.Fatalf("details not in declaration order: %+v", result.Details)
	}
	if result.Summary.Total != 2 || result.Summary.Passed != 1 || result.Summary.NotTested != 1 {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}
	if result.Summary.PassRate != 100 || result.Summary.Coverage != 50 {
		t.Fatalf("unexpected rates %+v", result.Summary)
	}
}

func TestModuleRunRejectsInvalidTransitions(t *testing.T) {
	run := NewModuleRun("m", 1, "M", mustTarget(t), testControls())
	if err := run.Advance(RunEvaluating); !errors.Is(err, sharedErrors.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := run.Record(ControlResult{ControlID: "XSS"}); !errors.Is(err, sharedErrors.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition recording early, got %v", err)
	}
	if _, err := run.Result(); !errors.Is(err, sharedErrors.ErrModuleRunNotFinished) {
		t.Fatalf("expected ErrModuleRunNotFinished, got %v", err)
	}
}

func TestModuleRunFailFillsNotTested(t *testing.T) {
	run := NewModuleRun("m", 1, "M", mustTarget(t), testControls())
	_ = run.Advance(RunDiscovering)
	if err := run.Fail(sharedErrors.KindNetwork, errors.New("connection refused")); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	result, err := run.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result.State != RunFailed || result.Error == nil || result.Error.Kind != sharedErrors.KindNetwork {
		t.Fatalf("unexpected failure metadata: %+v", result.Error)
	}
	for _, d := range result.Details {
		if d.Status != StatusNotTested || d.Rationale == "" {
			t.Fatalf("control %s: status %s rationale %q", d.ControlID, d.Status, d.Rationale)
		}
	}
	if err := run.Fail(sharedErrors.KindNetwork, nil); err == nil {
		t.Fatal("expected second Fail to be rejected")
	}
}

func TestModuleRunRejectsUndeclaredAndDuplicate(t *testing.T) {
	run := NewModuleRun("m", 1, "M", mustTarget(t), testControls())
	_ = run.Advance(RunDiscovering)
	_ = run.Advance(RunProbing)
	_ = run.Advance(RunEvaluating)
	if err := run.Record(ControlResult{ControlID: "Unknown"}); err == nil {
		t.Fatal("expected undeclared control to be rejected")
	}
	_ = run.Record(ControlResult{ControlID: "XSS"})
	if err := run.Record(ControlResult{ControlID: "XSS"}); err == nil {
		t.Fatal("expected duplicate result to be rejected")
	}
}

func TestUnitResult(t *testing.T) {
	result := UnitResult("m", 1, "M", mustTarget(t), testControls(),
		UnitError{Kind: sharedErrors.KindTimeout, Message: "deadline exceeded"}, 0)
	if len(result.Details) != 2 || result.Summary.NotTested != 2 {
		t.Fatalf("expected all controls not_tested, got %+v", result.Summary)
	}
	if result.Error == nil || result.Error.Kind != sharedErrors.KindTimeout {
		t.Fatalf("expected timeout error, got %+v", result.Error)
	}
}
