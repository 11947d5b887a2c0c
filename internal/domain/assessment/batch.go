package assessment

import "time"

// ReportType is the fixed report_type of a batch result.
const ReportType = "Security GAP Analysis"

// UnitMeta records execution metadata for one unit.
type UnitMeta struct {
	Target     string   `json:"target"`
	Module     string   `json:"module"`
	State      RunState `json:"state"`
	Attempts   int      `json:"attempts"`
	DurationMS int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
	ErrorKind  string   `json:"error_kind,omitempty"`
}

// ExecutionMeta records batch-level execution metadata.
type ExecutionMeta struct {
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	DurationMS  int64       `json:"duration_ms"`
	MaxWorkers  int         `json:"max_workers"`
	Units       []UnitMeta  `json:"units"`
	Errors      []UnitError `json:"errors"`
}

// BatchResult is the terminal artifact of a run.
type BatchResult struct {
	ReportType     string             `json:"report_type"`
	RunID          string             `json:"run_id"`
	GeneratedAt    time.Time          `json:"generated_at"`
	Targets        []string           `json:"targets"`
	Modules        []ModuleResult     `json:"modules"`
	OverallSummary Summary            `json:"overall_summary"`
	TargetsSummary map[string]Summary `json:"targets_summary"`
	Execution      ExecutionMeta      `json:"execution"`
}

// Telemetry summarizes one run for trend tracking.
type Telemetry struct {
	Timestamp       time.Time `json:"timestamp"`
	Command         string    `json:"command"`
	RunID           string    `json:"run_id"`
	TargetCount     int       `json:"target_count"`
	UnitCount       int       `json:"unit_count"`
	UnitErrors      int       `json:"unit_errors"`
	Controls        int       `json:"controls"`
	Passed          int       `json:"passed"`
	Failed          int       `json:"failed"`
	NotTested       int       `json:"not_tested"`
	Coverage        float64   `json:"coverage"`
	DurationSeconds float64   `json:"duration_seconds"`
	AvgUnitSeconds  float64   `json:"avg_unit_seconds"`
}

// NewTelemetry derives a telemetry record from a batch.
func NewTelemetry(command string, b *BatchResult) Telemetry {
	rec := Telemetry{
		Timestamp:       b.GeneratedAt,
		Command:         command,
		RunID:           b.RunID,
		TargetCount:     len(b.Targets),
		UnitCount:       len(b.Modules),
		UnitErrors:      len(b.Execution.Errors),
		Controls:        b.OverallSummary.Total,
		Passed:          b.OverallSummary.Passed,
		Failed:          b.OverallSummary.Failed,
		NotTested:       b.OverallSummary.NotTested,
		Coverage:        b.OverallSummary.Coverage,
		DurationSeconds: float64(b.Execution.DurationMS) / 1000,
	}
	if rec.UnitCount > 0 {
		rec.AvgUnitSeconds = rec.DurationSeconds / float64(rec.UnitCount)
	}
	return rec
}
