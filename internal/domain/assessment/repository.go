package assessment

import "context"

// Repository persists module and batch results of a run.
type Repository interface {
	// SaveModule writes one module result under runID and returns its path.
	SaveModule(ctx context.Context, runID string, result ModuleResult) (string, error)

	// SaveBatch writes the consolidated batch result and returns its path.
	SaveBatch(ctx context.Context, batch *BatchResult) (string, error)

	// LoadBatch reads the batch result of runID.
	LoadBatch(ctx context.Context, runID string) (*BatchResult, error)

	// LoadModules reads every module result written under runID.
	LoadModules(ctx context.Context, runID string) ([]ModuleResult, error)

	// ListRuns returns the run ids present, newest first.
	ListRuns(ctx context.Context) ([]string, error)
}

// SchemaValidator checks result documents before they are persisted.
type SchemaValidator interface {
	ValidateModule(doc any) error
	ValidateBatch(doc any) error
}

// TelemetryRecorder stores one record per completed run.
type TelemetryRecorder interface {
	Record(ctx context.Context, rec Telemetry) error
}
