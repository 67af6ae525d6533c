package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

func ok(context.Context) (string, error) { return "ok", nil }

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	got, err := ExecuteVal(context.Background(), cb, ok)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	boom := &TransportError{StatusCode: 503, Err: errors.New("unavailable")}
	for i := 0; i < 3; i++ {
		_, _ = ExecuteVal(context.Background(), cb, failing(boom))
	}
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	_, err := ExecuteVal(context.Background(), cb, func(context.Context) (string, error) {
		called = true
		return "", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_QuotaAndParseDoNotTrip(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	_, _ = ExecuteVal(context.Background(), cb, failing(&QuotaExceededError{Model: "m1"}))
	_, _ = ExecuteVal(context.Background(), cb, failing(&ParseError{Err: errors.New("no json")}))
	assert.Equal(t, CircuitClosed, cb.State())

	_, _ = ExecuteVal(context.Background(), cb, failing(&ModelUnavailableError{Model: "m1"}))
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	cb.nowFunc = func() time.Time { return now }

	_, _ = ExecuteVal(context.Background(), cb, failing(errors.New("down")))
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	_, err := ExecuteVal(context.Background(), cb, ok)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.nowFunc = func() time.Time { return now }

	_, _ = ExecuteVal(context.Background(), cb, failing(errors.New("down")))
	now = now.Add(2 * time.Second)
	_, _ = ExecuteVal(context.Background(), cb, failing(errors.New("still down")))

	failures, state := cb.Counters()
	assert.Equal(t, CircuitOpen, state)
	assert.Equal(t, 2, failures)
}

func TestCandidateBreakers_StateChangeNamesCandidate(t *testing.T) {
	t.Parallel()

	var (
		events []string
		plain  int
	)
	reg := NewCandidateBreakers(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
		OnStateChange:    func(_, _ CircuitState) { plain++ },
		OnCandidateStateChange: func(candidate string, from, to CircuitState) {
			events = append(events, candidate+":"+from.String()+"->"+to.String())
		},
	})

	_, _ = ExecuteVal(context.Background(), reg.Get("model-b"), failing(errors.New("down")))
	_, _ = ExecuteVal(context.Background(), reg.Get("model-a"), ok)

	assert.Equal(t, []string{"model-b:closed->open"}, events)
	assert.Equal(t, 1, plain)
}

func TestCandidateBreakers(t *testing.T) {
	t.Parallel()

	reg := NewCandidateBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	a := reg.Get("model-a")
	assert.Same(t, a, reg.Get("model-a"))

	_, _ = ExecuteVal(context.Background(), reg.Get("model-b"), failing(errors.New("down")))
	_, _ = ExecuteVal(context.Background(), a, ok)

	assert.Equal(t, []string{"model-b"}, reg.Open())
	snap := reg.Snapshot()
	assert.Equal(t, BreakerSnapshot{State: CircuitClosed, Failures: 0}, snap["model-a"])
	assert.Equal(t, BreakerSnapshot{State: CircuitOpen, Failures: 1}, snap["model-b"])

	assert.Empty(t, NewCandidateBreakers(CircuitBreakerConfig{}).Open())
}

func TestFromCircuitConfig(t *testing.T) {
	t.Parallel()

	var seen string
	cfg := FromCircuitConfig(2, 45, 3, func(candidate string, _, _ CircuitState) { seen = candidate })
	require.NotNil(t, cfg.OnCandidateStateChange)
	cfg.OnCandidateStateChange("m1", CircuitClosed, CircuitOpen)
	assert.Equal(t, "m1", seen)
	assert.Equal(t, 2, cfg.FailureThreshold)
	assert.Equal(t, 45*time.Second, cfg.ResetTimeout)
	assert.Equal(t, 3, cfg.HalfOpenMaxTrials)

	def := FromCircuitConfig(0, 0, 0, nil)
	assert.Equal(t, DefaultCircuitBreakerConfig().FailureThreshold, def.FailureThreshold)
}

func TestCircuitStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(7).String())
}
