package cmd

import (
	"errors"
	"fmt"
	"testing"

	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: ExitOK},
		{name: "config", err: fmt.Errorf("%w: bad workers", sharedErrors.ErrConfig), want: ExitConfig},
		{name: "unknown module", err: fmt.Errorf("%w: %w", sharedErrors.ErrConfig, sharedErrors.ErrUnknownModule), want: ExitConfig},
		{name: "no targets", err: fmt.Errorf("%w: %w", sharedErrors.ErrConfig, sharedErrors.ErrNoTargets), want: ExitNoTargets},
		{name: "schema", err: sharedErrors.ErrSchemaViolation, want: ExitFailure},
		{name: "other", err: errors.New("boom"), want: ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Fatalf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
