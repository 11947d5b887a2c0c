// Package evidence collects externally supplied support for control
// decisions: policy documents, scanner output and port scans.
package evidence

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// Source produces evidence for one target.
type Source interface {
	Name() string
	Collect(ctx context.Context, target assessment.Target) ([]assessment.Evidence, error)
}

// SourceError records a source that was skipped.
type SourceError struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// Collector runs every configured source. A failing source is discarded
// and reported; it never aborts collection.
type Collector struct {
	sources []Source
	logger  *zap.Logger
}

// NewCollector creates a collector over sources.
func NewCollector(logger *zap.Logger, sources ...Source) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{sources: sources, logger: logger}
}

// Sources returns the configured source names.
func (c *Collector) Sources() []string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return names
}

// Collect gathers evidence from all sources. Context cancellation is the
// only returned error.
func (c *Collector) Collect(ctx context.Context, target assessment.Target) ([]assessment.Evidence, []SourceError, error) {
	var (
		out    []assessment.Evidence
		failed []SourceError
	)
	for _, s := range c.sources {
		if err := ctx.Err(); err != nil {
			return out, failed, err
		}
		ev, err := s.Collect(ctx, target)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return out, failed, err
			}
			kind := sharedErrors.Kind(err)
			c.logger.Warn("evidence source skipped",
				zap.String("source", s.Name()),
				zap.String("target", target.ID()),
				zap.String("kind", kind),
				zap.Error(err))
			failed = append(failed, SourceError{Source: s.Name(), Kind: kind, Error: err.Error()})
			continue
		}
		c.logger.Debug("evidence collected",
			zap.String("source", s.Name()),
			zap.String("target", target.ID()),
			zap.Int("items", len(ev)))
		out = append(out, ev...)
	}
	return out, failed, nil
}
