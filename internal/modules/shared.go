package modules

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/khanhnv2901/seca-gap/internal/transport"
)

// shareOnce runs fn at most once per key among concurrent callers. The call
// runs on a context detached from every caller and bounded by budget, so one
// unit's deadline or cancellation never reaches the others. Each caller
// stops waiting when its own ctx ends.
func shareOnce[T any](ctx context.Context, g *singleflight.Group, key string, budget time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, transport.Classify(err)
	}
	ch := g.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
		defer cancel()
		return fn(flightCtx)
	})
	select {
	case <-ctx.Done():
		return zero, transport.Classify(ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}
