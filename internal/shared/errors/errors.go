package errors

import (
	"context"
	"errors"
)

// Error taxonomy. Every failure surfaced by the pipeline wraps one of these
// so callers can decide between degrading, retrying and aborting.
var (
	// ErrToolUnavailable marks a missing external binary or document source.
	ErrToolUnavailable = errors.New("tool unavailable")
	// ErrNetwork marks an unreachable target or endpoint.
	ErrNetwork = errors.New("network error")
	// ErrTimeout marks a request, probe or unit deadline being exceeded.
	ErrTimeout = errors.New("timeout")
	// ErrParse marks malformed tool or document output.
	ErrParse = errors.New("parse error")
	// ErrConfig marks invalid run parameters. Fatal before any unit starts.
	ErrConfig = errors.New("config error")
)

// Domain errors
var (
	// Target errors
	ErrNoTargets      = errors.New("no targets resolved")
	ErrInvalidTarget  = errors.New("invalid target")
	ErrEmptyTarget    = errors.New("target cannot be empty")
	ErrTargetNotFound = errors.New("target not found")

	// Module errors
	ErrUnknownModule        = errors.New("unknown module")
	ErrInvalidTransition    = errors.New("invalid module run state transition")
	ErrModuleRunNotFinished = errors.New("module run not finished")

	// Aggregation errors
	ErrDuplicateUnit = errors.New("duplicate (target, module) unit")

	// Repository errors
	ErrRepositoryOperation   = errors.New("repository operation failed")
	ErrSchemaViolation       = errors.New("schema violation")
	ErrSerializationFailed   = errors.New("serialization failed")
	ErrDeserializationFailed = errors.New("deserialization failed")
	ErrRunNotFound           = errors.New("run not found")
	ErrChecksumMismatch      = errors.New("checksum mismatch")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
)

// Error kinds as written to result files.
const (
	KindToolUnavailable = "tool_unavailable"
	KindNetwork         = "network"
	KindTimeout         = "timeout"
	KindParse           = "parse"
	KindConfig          = "config"
	KindInternal        = "internal"
)

// Kind classifies err into one of the taxonomy kinds. Context deadline
// errors count as timeouts.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrToolUnavailable):
		return KindToolUnavailable
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrConfig):
		return KindConfig
	default:
		return KindInternal
	}
}

// IsTransient reports whether err is worth retrying at the unit boundary.
func IsTransient(err error) bool {
	return IsTransientKind(Kind(err))
}

// IsTransientKind reports whether a recorded error kind is transient.
func IsTransientKind(kind string) bool {
	switch kind {
	case KindNetwork, KindToolUnavailable, KindTimeout:
		return true
	}
	return false
}
