package cmd

import (
	"errors"

	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitConfig    = 2
	ExitNoTargets = 3
)

// exitCode maps an error to the process exit code. Resolver errors wrap
// both ErrConfig and ErrNoTargets, so the narrower check runs first.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, sharedErrors.ErrNoTargets):
		return ExitNoTargets
	case errors.Is(err, sharedErrors.ErrConfig):
		return ExitConfig
	default:
		return ExitFailure
	}
}
