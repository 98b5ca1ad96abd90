// Package retry runs operations against remote services with capped
// exponential backoff and additive jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/fyrsmithlabs/ragserve/internal/ragerr"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Policy bounds how an operation is retried.
type Policy struct {
	// MaxAttempts counts the first call.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxJitter is the upper bound of the uniform random delay added to
	// every wait. Zero disables jitter.
	MaxJitter time.Duration
	// Retryable classifies errors. Nil means IsTransient.
	Retryable func(error) bool
}

// DefaultPolicy is 5 attempts, 100ms doubling to 1s, plus up to 1s of jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		MaxJitter:      time.Second,
	}
}

// Do calls op until it succeeds, fails with a non-retryable error, the
// attempt budget is spent, or ctx is done.
//
// Errors that exhaust the budget are wrapped with ragerr.ErrTransient.
// Non-retryable errors and context errors are returned unchanged.
func Do[T any](ctx context.Context, logger *logging.Logger, p Policy, name string, op func(context.Context) (T, error)) (T, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	attempt := 0
	var lastErr error
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(newJitteredBackOff(p)),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Debug(ctx, "retrying operation after transient error",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.MaxAttempts),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
		}),
	)

	if err == nil {
		if attempt > 1 {
			logger.Info(ctx, "operation recovered after retries",
				zap.String("operation", name),
				zap.Int("attempts", attempt),
			)
		}
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if lastErr != nil && errors.Is(lastErr, ctxErr) {
			return res, lastErr
		}
		return res, fmt.Errorf("%s: %w", name, ctxErr)
	}

	if lastErr != nil && retryable(lastErr) {
		logger.Warn(ctx, "operation failed after all retries exhausted",
			zap.String("operation", name),
			zap.Int("attempts", attempt),
			zap.Error(lastErr),
		)
		return res, fmt.Errorf("%w: %s failed after %d attempts: %w", ragerr.ErrTransient, name, attempt, lastErr)
	}
	return res, err
}

// IsTransient reports whether err is a gRPC status worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// jitteredBackOff doubles from InitialBackoff up to MaxBackoff and adds a
// uniform random delay in [0, MaxJitter] to every wait.
type jitteredBackOff struct {
	initial, max, jitter time.Duration
	current              time.Duration
	rand                 func(n int64) int64
}

func newJitteredBackOff(p Policy) *jitteredBackOff {
	b := &jitteredBackOff{
		initial: p.InitialBackoff,
		max:     p.MaxBackoff,
		jitter:  p.MaxJitter,
		rand:    rand.Int64N,
	}
	if b.max < b.initial {
		b.max = b.initial
	}
	return b
}

func (b *jitteredBackOff) NextBackOff() time.Duration {
	if b.current == 0 {
		b.current = b.initial
	} else {
		b.current *= 2
		if b.current > b.max {
			b.current = b.max
		}
	}
	wait := b.current
	if b.jitter > 0 {
		wait += time.Duration(b.rand(int64(b.jitter) + 1))
	}
	return wait
}

func (b *jitteredBackOff) Reset() {
	b.current = 0
}
