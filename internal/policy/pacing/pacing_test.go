package pacing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterSpacesRequests(t *testing.T) {
	t.Parallel()

	l := NewLimiter(20, 1) // one token every 50ms
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestLimiterUnlimited(t *testing.T) {
	t.Parallel()

	l := NewLimiter(0, 0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestLimiterCanceled(t *testing.T) {
	t.Parallel()

	l := NewLimiter(0.001, 1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx))
}

func TestJitterFirstCallIsFree(t *testing.T) {
	t.Parallel()

	j := NewJitter(time.Hour, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, j.Wait(ctx))
	err := j.Wait(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestJitterDelayWithinBounds(t *testing.T) {
	t.Parallel()

	j := NewJitter(10*time.Millisecond, 30*time.Millisecond)
	for i := 0; i < 200; i++ {
		d := j.next()
		require.GreaterOrEqual(t, d, 10*time.Millisecond)
		require.LessOrEqual(t, d, 30*time.Millisecond)
	}

	require.NoError(t, j.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, j.Wait(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestJitterClampsBounds(t *testing.T) {
	t.Parallel()

	j := NewJitter(20*time.Millisecond, time.Millisecond)
	require.Equal(t, 20*time.Millisecond, j.next())
}

func TestNone(t *testing.T) {
	t.Parallel()

	require.NoError(t, None{}.Wait(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, None{}.Wait(ctx), context.Canceled)
}
