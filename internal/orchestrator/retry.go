package orchestrator

import (
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// BackoffKind selects the delay curve between attempts.
type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffConstant    BackoffKind = "constant"
)

// RetryPolicy bounds unit retries. Only transient failures (network,
// tool unavailable, timeout) are retried.
type RetryPolicy struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	Base        time.Duration `mapstructure:"base" yaml:"base" json:"base"`
	Max         time.Duration `mapstructure:"max" yaml:"max" json:"max"`
	Kind        BackoffKind   `mapstructure:"kind" yaml:"kind" json:"kind"`
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: constants.DefaultRetryAttempts,
		Base:        constants.DefaultRetryBackoff,
		Max:         constants.DefaultRetryMaxBackoff,
		Kind:        BackoffExponential,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.Max <= 0 {
		p.Max = def.Max
	}
	if p.Kind == "" {
		p.Kind = def.Kind
	}
	return p
}

// Validate rejects unknown backoff kinds and inverted bounds.
func (p RetryPolicy) Validate() error {
	switch p.Kind {
	case "", BackoffExponential, BackoffConstant:
	default:
		return fmt.Errorf("%w: unknown backoff kind %q", sharedErrors.ErrConfig, p.Kind)
	}
	if p.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must not be negative", sharedErrors.ErrConfig)
	}
	if p.Base > 0 && p.Max > 0 && p.Max < p.Base {
		return fmt.Errorf("%w: max backoff %s below base %s", sharedErrors.ErrConfig, p.Max, p.Base)
	}
	return nil
}

// backoff builds the go-retry schedule. MaxAttempts counts the first try.
func (p RetryPolicy) backoff() retry.Backoff {
	var b retry.Backoff
	if p.Kind == BackoffConstant {
		b = retry.NewConstant(p.Base)
	} else {
		b = retry.NewExponential(p.Base)
	}
	b = retry.WithCappedDuration(p.Max, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}
