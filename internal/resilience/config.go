package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig. Zero values keep
// the defaults; a negative jitter disables jitter.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	switch {
	case jitterFraction > 0:
		cfg.JitterFraction = jitterFraction
	case jitterFraction < 0:
		cfg.JitterFraction = 0
	}
	return cfg
}

// FromCircuitConfig converts config values to the per-candidate breaker
// config. stateChange may be nil.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs, halfOpenTrials int, stateChange func(candidate string, from, to CircuitState)) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	if halfOpenTrials > 0 {
		cfg.HalfOpenMaxTrials = halfOpenTrials
	}
	cfg.OnCandidateStateChange = stateChange
	return cfg
}
