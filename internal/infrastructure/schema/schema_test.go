package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

func sampleModule(t *testing.T) assessment.ModuleResult {
	t.Helper()
	target, err := assessment.NewTarget("https://shop.example/", assessment.TargetKindWeb)
	if err != nil {
		t.Fatal(err)
	}
	controls := []assessment.Control{
		{ID: "XSS", Number: "002", Name: "Cross-Site Scripting"},
		{ID: "SQL_Injection", Number: "001", Name: "SQL Injection"},
	}
	run := assessment.NewModuleRun("input_validation", 1, "Input & Data Validation", target, controls)
	_ = run.Advance(assessment.RunDiscovering)
	_ = run.Advance(assessment.RunProbing)
	_ = run.Advance(assessment.RunEvaluating)
	_ = run.Record(assessment.ControlResult{
		ControlID: "XSS", Number: "002", Status: assessment.StatusFail, Confidence: 0.936,
		Rationale: "payload reflected unescaped",
		Supporting: []assessment.Ref{{
			Type: assessment.RefObservation, Seq: 3, Source: "GET https://shop.example/search",
			Indicator: "payload_reflected_unescaped", Strength: assessment.StrengthStrong, Polarity: assessment.Positive,
		}},
	})
	_ = run.Record(assessment.NotTested(controls[1], "no applicable observations or evidence"))
	if err := run.Complete(); err != nil {
		t.Fatal(err)
	}
	res, err := run.Result()
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestValidateModuleAcceptsRunOutput(t *testing.T) {
	v, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateModule(sampleModule(t)); err != nil {
		t.Fatalf("valid module rejected: %v", err)
	}
}

func TestValidateModuleRejectsViolations(t *testing.T) {
	v, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]func(*assessment.ModuleResult){
		"unknown status":        func(r *assessment.ModuleResult) { r.Details[0].Status = "maybe" },
		"confidence above one":  func(r *assessment.ModuleResult) { r.Details[0].Confidence = 1.5 },
		"missing controls":      func(r *assessment.ModuleResult) { r.Controls = nil },
		"empty module id":       func(r *assessment.ModuleResult) { r.Module = "" },
		"non terminal state":    func(r *assessment.ModuleResult) { r.State = assessment.RunProbing },
		"negative summary":      func(r *assessment.ModuleResult) { r.Summary.Total = -1 },
		"malformed control num": func(r *assessment.ModuleResult) { r.Details[1].Number = "1" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			res := sampleModule(t)
			mutate(&res)
			if err := v.ValidateModule(res); !errors.Is(err, sharedErrors.ErrSchemaViolation) {
				t.Fatalf("expected schema violation, got %v", err)
			}
		})
	}
}

func TestValidateBatch(t *testing.T) {
	v, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	mod := sampleModule(t)
	now := time.Now().UTC()
	batch := assessment.BatchResult{
		ReportType:     assessment.ReportType,
		RunID:          "3f1c9a52-7d7e-4d7b-9a55-0c9b7e1f2a10",
		GeneratedAt:    now,
		Targets:        []string{mod.Target},
		Modules:        []assessment.ModuleResult{mod},
		OverallSummary: mod.Summary,
		TargetsSummary: map[string]assessment.Summary{mod.Target: mod.Summary},
		Execution: assessment.ExecutionMeta{
			StartedAt: now, CompletedAt: now, MaxWorkers: 4,
			Units:  []assessment.UnitMeta{{Target: mod.Target, Module: mod.Module, State: mod.State, Attempts: 1}},
			Errors: []assessment.UnitError{},
		},
	}
	if err := v.ValidateBatch(batch); err != nil {
		t.Fatalf("valid batch rejected: %v", err)
	}

	batch.ReportType = "Something Else"
	if err := v.ValidateBatch(batch); !errors.Is(err, sharedErrors.ErrSchemaViolation) {
		t.Fatalf("expected schema violation, got %v", err)
	}
}

func TestValidateRawJSON(t *testing.T) {
	v, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateModule([]byte(`{"module":"x"`)); !errors.Is(err, sharedErrors.ErrSchemaViolation) {
		t.Fatalf("expected schema violation for truncated JSON, got %v", err)
	}
	if err := v.ValidateModule([]byte(`{"module":"x"}`)); !errors.Is(err, sharedErrors.ErrSchemaViolation) {
		t.Fatalf("expected missing fields to be rejected, got %v", err)
	}
}
