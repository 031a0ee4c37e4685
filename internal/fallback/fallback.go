// Package fallback runs a live call and, when it fails, the demo-data call
// instead, reporting which one produced the value.
package fallback

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hseb5/internal/metrics"
)

type Source string

const (
	Live     Source = "live"
	Degraded Source = "degraded"
	Demo     Source = "demo"
)

// Result carries a value and its provenance. Reason is the live failure for
// Degraded results.
type Result[T any] struct {
	Value  T
	Source Source
	Reason error
}

// Synthetic reports whether the value comes from demo data.
func (r Result[T]) Synthetic() bool { return r.Source != Live }

// Policy is the process-wide fallback configuration.
type Policy struct {
	// Demo skips the live call entirely.
	Demo bool
	// Disabled turns live failures into errors instead of degrading.
	Disabled bool
	// Permanent reports live errors that are returned as is, such as a
	// rejected input; the demo data would not answer them any better.
	Permanent func(error) bool
	Delay     time.Duration
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Error is returned when no value could be produced.
type Error struct {
	Entity string
	Op     string
	Live   error
	Mock   error
}

func (e *Error) Error() string {
	switch {
	case e.Live != nil && e.Mock != nil:
		return fmt.Sprintf("%s %s: live: %v; demo: %v", e.Entity, e.Op, e.Live, e.Mock)
	case e.Mock != nil:
		return fmt.Sprintf("%s %s: %v", e.Entity, e.Op, e.Mock)
	default:
		return fmt.Sprintf("%s %s: %v", e.Entity, e.Op, e.Live)
	}
}

// Unwrap exposes both causes to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	var out []error
	if e.Live != nil {
		out = append(out, e.Live)
	}
	if e.Mock != nil {
		out = append(out, e.Mock)
	}
	return out
}

// Do runs live once. On failure it logs, waits Delay and runs mock. There is
// no retry. In demo mode only mock runs.
func Do[T any](ctx context.Context, p Policy, entity, op string, live, mock func(context.Context) (T, error)) (Result[T], error) {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if p.Demo || live == nil {
		v, err := mock(ctx)
		if err != nil {
			return Result[T]{}, &Error{Entity: entity, Op: op, Mock: err}
		}
		p.Metrics.DataSource(entity, op, string(Demo))
		return Result[T]{Value: v, Source: Demo}, nil
	}

	v, liveErr := live(ctx)
	if liveErr == nil {
		p.Metrics.DataSource(entity, op, string(Live))
		return Result[T]{Value: v, Source: Live}, nil
	}
	if p.Disabled || mock == nil || ctx.Err() != nil || (p.Permanent != nil && p.Permanent(liveErr)) {
		p.Metrics.DataSource(entity, op, "error")
		return Result[T]{}, &Error{Entity: entity, Op: op, Live: liveErr}
	}

	log.Warn("live call failed, using demo data",
		zap.String("entity", entity), zap.String("op", op), zap.Error(liveErr))
	if p.Delay > 0 {
		t := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return Result[T]{}, &Error{Entity: entity, Op: op, Live: liveErr, Mock: ctx.Err()}
		case <-t.C:
		}
	}
	v, mockErr := mock(ctx)
	if mockErr != nil {
		return Result[T]{}, &Error{Entity: entity, Op: op, Live: liveErr, Mock: mockErr}
	}
	p.Metrics.DataSource(entity, op, string(Degraded))
	return Result[T]{Value: v, Source: Degraded, Reason: liveErr}, nil
}

// Exec is Do for operations without a value.
func Exec(ctx context.Context, p Policy, entity, op string, live, mock func(context.Context) error) (Result[struct{}], error) {
	wrap := func(fn func(context.Context) error) func(context.Context) (struct{}, error) {
		if fn == nil {
			return nil
		}
		return func(ctx context.Context) (struct{}, error) { return struct{}{}, fn(ctx) }
	}
	return Do(ctx, p, entity, op, wrap(live), wrap(mock))
}
