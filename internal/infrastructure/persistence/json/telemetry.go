package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
)

// TelemetryFileName is appended to, one JSON record per line.
const TelemetryFileName = "telemetry.jsonl"

// TelemetryLog appends run telemetry to <results>/telemetry.jsonl.
type TelemetryLog struct {
	path string
	mu   sync.Mutex
}

// NewTelemetryLog creates a log under resultsDir.
func NewTelemetryLog(resultsDir string) (*TelemetryLog, error) {
	if err := os.MkdirAll(resultsDir, constants.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &TelemetryLog{path: filepath.Join(resultsDir, TelemetryFileName)}, nil
}

// Path returns the file being appended to.
func (l *TelemetryLog) Path() string { return l.path }

// Record appends one record.
func (l *TelemetryLog) Record(ctx context.Context, rec assessment.Telemetry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, constants.DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	return nil
}
