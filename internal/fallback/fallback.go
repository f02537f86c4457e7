// Package fallback implements the ordered tier chain used for every read and
// write: try the remote backend, then the local cache, then built-in defaults.
// Each stage either produces a value or fails, and the first success wins.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Tier identifies which storage tier served a request.
type Tier string

const (
	TierRemote   Tier = "remote"
	TierCache    Tier = "cache"
	TierDefaults Tier = "defaults"
)

// ErrEmpty is returned by a stage that succeeded but has nothing useful to
// offer, which moves the chain on to the next tier.
var ErrEmpty = errors.New("stage produced no data")

// ErrExhausted is returned when every stage failed.
var ErrExhausted = errors.New("all tiers failed")

// Recorder is an optional callback invoked with the tier that served op.
type Recorder func(op string, tier Tier)

// Stage is a single step in a fallback chain.
type Stage[T any] struct {
	Tier Tier
	Run  func(ctx context.Context) (T, error)
}

// Result is a value together with the tier that produced it.
type Result[T any] struct {
	Value T
	Tier  Tier
}

// Remote builds a stage for the remote tier.
func Remote[T any](fn func(ctx context.Context) (T, error)) Stage[T] {
	return Stage[T]{Tier: TierRemote, Run: fn}
}

// Cache builds a stage for the local cache tier.
func Cache[T any](fn func(ctx context.Context) (T, error)) Stage[T] {
	return Stage[T]{Tier: TierCache, Run: fn}
}

// Defaults builds a stage for the built-in defaults tier.
func Defaults[T any](fn func(ctx context.Context) (T, error)) Stage[T] {
	return Stage[T]{Tier: TierDefaults, Run: fn}
}

// Resolve runs the stages in order and returns the first success.
// Stage failures are logged at debug level; the caller only sees an error
// when every stage failed, in which case the last failure is wrapped.
func Resolve[T any](ctx context.Context, logger *zap.Logger, op string, stages ...Stage[T]) (Result[T], error) {
	var last error
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return Result[T]{}, err
		}
		v, err := st.Run(ctx)
		if err == nil {
			return Result[T]{Value: v, Tier: st.Tier}, nil
		}
		last = err
		if logger != nil {
			logger.Debug("tier unavailable, falling back",
				zap.String("op", op),
				zap.String("tier", string(st.Tier)),
				zap.Error(err),
			)
		}
	}
	if last == nil {
		return Result[T]{}, ErrExhausted
	}
	return Result[T]{}, fmt.Errorf("%w: %s: %w", ErrExhausted, op, last)
}
