package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestDoVal_SuccessOnFirstAttempt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	got, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (string, error) {
		calls.Add(1)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoVal_SuccessAfterTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	got, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (int, error) {
		if calls.Add(1) < 3 {
			return 0, &TransportError{StatusCode: 503, Err: errors.New("503")}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	got, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) ([]string, error) {
		calls.Add(1)
		return nil, &TransportError{StatusCode: 502, Err: errors.New("bad gateway")}
	})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoVal_QuotaNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	_, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (string, error) {
		calls.Add(1)
		return "", &QuotaExceededError{Model: "m1", Diagnostic: "limit"}
	})
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoVal_ContextCancelledStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry()
	cfg.MaxAttempts = 10
	cfg.InitialBackoff = time.Second

	var calls atomic.Int32
	_, err := DoVal(ctx, cfg, func(_ context.Context) (string, error) {
		calls.Add(1)
		cancel()
		return "", &TransportError{StatusCode: 504, Err: errors.New("timeout")}
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoVal_CustomShouldRetryAndOnRetry(t *testing.T) {
	t.Parallel()

	var retries []int
	cfg := fastRetry()
	cfg.ShouldRetry = func(err error) bool { return err.Error() == "again" }
	cfg.OnRetry = func(attempt int, _ error) { retries = append(retries, attempt) }

	var calls atomic.Int32
	_, err := DoVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("again")
	})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDoVal_ZeroConfigUsesDefaults(t *testing.T) {
	t.Parallel()

	got, err := DoVal(context.Background(), RetryConfig{}, func(_ context.Context) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestComputeBackoff_ExponentialGrowth(t *testing.T) {
	t.Parallel()

	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	})

	assert.Equal(t, 100*time.Millisecond, computeBackoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, computeBackoff(1, cfg))
	assert.Equal(t, 400*time.Millisecond, computeBackoff(2, cfg))
	assert.Equal(t, 800*time.Millisecond, computeBackoff(3, cfg))
}

func TestComputeBackoff_CapsAtMax(t *testing.T) {
	t.Parallel()

	cfg := applyDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     10.0,
	})
	assert.LessOrEqual(t, computeBackoff(5, cfg), 5*time.Second)
}

func TestComputeBackoff_WithJitter(t *testing.T) {
	t.Parallel()

	cfg := applyDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	})

	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		d := computeBackoff(0, cfg)
		seen[d] = true
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
	assert.Greater(t, len(seen), 1)
}

func TestFromRetryConfig(t *testing.T) {
	t.Parallel()

	cfg := FromRetryConfig(5, 250, 2000, 3, -1)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 2*time.Second, cfg.MaxBackoff)
	assert.InDelta(t, 3.0, cfg.Multiplier, 0.001)
	assert.InDelta(t, 0.0, cfg.JitterFraction, 0.001)

	def := FromRetryConfig(0, 0, 0, 0, 0)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, def.MaxAttempts)
	assert.InDelta(t, DefaultRetryConfig().JitterFraction, def.JitterFraction, 0.001)
}

func TestRetryLogger(t *testing.T) {
	t.Parallel()

	logger := RetryLogger("tavily", "search")
	assert.NotPanics(t, func() { logger(1, errors.New("test error")) })
}
