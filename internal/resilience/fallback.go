package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no provider of a [FallbackGroup] produced a
// result.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for each provider's breaker; Name is
	// set per provider.
	CircuitBreaker CircuitBreakerConfig

	// OnFailure, when set, is called for every provider error except
	// [ErrCircuitOpen] rejections.
	OnFailure func(ctx context.Context, provider string, err error)
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary provider and its fallbacks, each behind its
// own circuit breaker, and tries them in registration order.
//
// AddFallback must not be called concurrently with calls; everything else
// is safe for concurrent use.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup returns a group with primary as its first member.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a provider tried after every earlier one.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: value, breaker: NewCircuitBreaker(bc)})
}

// Primary returns the first member.
func (fg *FallbackGroup[T]) Primary() T { return fg.members[0].value }

// Execute is [ExecuteWithResult] for calls without a result.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult calls fn on each member in order until one succeeds.
// Members with an open breaker are skipped. Once ctx is done no further
// member is tried and ctx's error is returned. When every member fails the
// error wraps both [ErrAllFailed] and the last provider error.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		m := &fg.members[i]

		var res R
		err := m.breaker.Execute(func() error {
			var err error
			res, err = fn(m.value)
			return err
		})
		switch {
		case err == nil:
			if i > 0 {
				slog.Debug("served by fallback provider", "provider", m.name)
			}
			return res, nil
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("skipping provider, circuit open", "provider", m.name)
		case ctx.Err() != nil:
			return zero, err
		default:
			slog.Warn("provider failed", "provider", m.name, "err", err, "remaining", len(fg.members)-i-1)
			if fg.cfg.OnFailure != nil {
				fg.cfg.OnFailure(ctx, m.name, err)
			}
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
