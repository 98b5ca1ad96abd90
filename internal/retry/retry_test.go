package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/fyrsmithlabs/ragserve/internal/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	logger := logging.NewTestLogger()
	calls := 0

	got, err := Do(context.Background(), logger.Logger, fastPolicy(), "embed", func(context.Context) (int, error) {
		calls++
		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 1, calls)
	assert.Empty(t, logger.All())
}

func TestDo_RecoversFromTransient(t *testing.T) {
	logger := logging.NewTestLogger()
	calls := 0

	got, err := Do(context.Background(), logger.Logger, fastPolicy(), "embed", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", status.Error(codes.Unavailable, "warming up")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	logger.AssertLogged(t, zapcore.DebugLevel, "retrying operation after transient error")
	logger.AssertLogged(t, zapcore.InfoLevel, "operation recovered after retries")
	logger.AssertField(t, "operation recovered after retries", "attempts", int64(3))
}

func TestDo_ExhaustsBudget(t *testing.T) {
	logger := logging.NewTestLogger()
	calls := 0

	_, err := Do(context.Background(), logger.Logger, fastPolicy(), "embed", func(context.Context) (int, error) {
		calls++
		return 0, status.Error(codes.ResourceExhausted, "queue full")
	})

	require.Error(t, err)
	assert.Equal(t, 5, calls)
	assert.ErrorIs(t, err, ragerr.ErrTransient)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err), "original status is kept in the chain")
	logger.AssertLogged(t, zapcore.WarnLevel, "operation failed after all retries exhausted")
}

func TestDo_NonTransientNotRetried(t *testing.T) {
	logger := logging.NewTestLogger()
	calls := 0
	wantErr := status.Error(codes.InvalidArgument, "input too long")

	_, err := Do(context.Background(), logger.Logger, fastPolicy(), "embed", func(context.Context) (int, error) {
		calls++
		return 0, wantErr
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, wantErr, err)
	assert.NotErrorIs(t, err, ragerr.ErrTransient)
	logger.AssertNotLogged(t, zapcore.WarnLevel, "retries exhausted")
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	logger := logging.NewTestLogger()
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy()
	p.InitialBackoff = time.Hour
	p.MaxBackoff = time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, logger.Logger, p, "embed", func(context.Context) (int, error) {
			calls++
			return 0, status.Error(codes.Unavailable, "down")
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ragerr.ErrTransient)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	assert.Equal(t, 1, calls)
}

func TestDo_CustomClassifier(t *testing.T) {
	flaky := errors.New("flaky")
	p := fastPolicy()
	p.MaxAttempts = 2
	p.Retryable = func(err error) bool { return errors.Is(err, flaky) }

	calls := 0
	_, err := Do(context.Background(), logging.NewTestLogger().Logger, p, "op", func(context.Context) (int, error) {
		calls++
		return 0, flaky
	})

	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, ragerr.ErrTransient)
	assert.ErrorIs(t, err, flaky)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"unavailable", status.Error(codes.Unavailable, ""), true},
		{"deadline", status.Error(codes.DeadlineExceeded, ""), true},
		{"exhausted", status.Error(codes.ResourceExhausted, ""), true},
		{"aborted", status.Error(codes.Aborted, ""), false},
		{"invalid", status.Error(codes.InvalidArgument, ""), false},
		{"internal", status.Error(codes.Internal, ""), false},
		{"permission", status.Error(codes.PermissionDenied, ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestJitteredBackOff(t *testing.T) {
	b := newJitteredBackOff(Policy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	})

	var waits []time.Duration
	for i := 0; i < 6; i++ {
		waits = append(waits, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}, waits)

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
}

func TestJitteredBackOff_JitterBounds(t *testing.T) {
	b := newJitteredBackOff(DefaultPolicy())
	for i := 0; i < 200; i++ {
		b.Reset()
		wait := b.NextBackOff()
		assert.GreaterOrEqual(t, wait, 100*time.Millisecond)
		assert.LessOrEqual(t, wait, 1100*time.Millisecond)
	}

	b.rand = func(n int64) int64 { return n - 1 }
	b.Reset()
	assert.Equal(t, 1100*time.Millisecond, b.NextBackOff())
}
