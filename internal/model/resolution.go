package model

import "time"

// OutcomeKind tags the result of a single candidate attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTransient
	OutcomeNotAvailable
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomeNotAvailable:
		return "not_available"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ProviderOutcome is the result of trying one candidate model.
type ProviderOutcome struct {
	Kind   OutcomeKind
	Model  string
	Result *StatusResult

	// Reason is the diagnostic text for non-success outcomes.
	Reason string
	// QuotaExceeded is set for Transient outcomes caused by quota exhaustion.
	QuotaExceeded bool
	// RetryAfter is the backoff hint for quota outcomes, zero when unknown.
	RetryAfter time.Duration
	// Err is the classified error behind a non-success outcome.
	Err error
}

// Success builds a success outcome.
func Success(model string, r StatusResult) ProviderOutcome {
	return ProviderOutcome{Kind: OutcomeSuccess, Model: model, Result: &r}
}

// ResolutionReport is the terminal answer when no candidate succeeded.
type ResolutionReport struct {
	Error               string       `json:"error"`
	Suggestion          string       `json:"suggestion,omitempty"`
	ConfigurationError  bool         `json:"configuration_error,omitempty"`
	QuotaExceeded       bool         `json:"quota_exceeded"`
	ModelUnavailable    bool         `json:"model_unavailable,omitempty"`
	RetryAfterSeconds   *int         `json:"retry_after_seconds,omitempty"`
	AttemptedCandidates []string     `json:"attempted_candidates"`
	Pending             bool         `json:"pending,omitempty"`
	Fallback            StatusResult `json:"fallback"`
}

// ResolutionSource records where a resolution came from.
type ResolutionSource string

const (
	SourceCache       ResolutionSource = "cache"
	SourceProvider    ResolutionSource = "provider"
	SourcePlaceholder ResolutionSource = "placeholder"
	SourceReport      ResolutionSource = "report"
)

// Resolution is what crosses the service boundary: exactly one of Result or
// Report is set.
type Resolution struct {
	Address string            `json:"address"`
	Source  ResolutionSource  `json:"source"`
	Model   string            `json:"model,omitempty"`
	Result  *StatusResult     `json:"result,omitempty"`
	Report  *ResolutionReport `json:"report,omitempty"`
}

// OK reports whether the resolution carries a genuine model answer.
func (r Resolution) OK() bool {
	return r.Result != nil
}

// BatchItem is one (id, address) pair submitted to the batch path.
type BatchItem struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// BatchEntry is the per-item batch answer: a formatted summary or an error record.
type BatchEntry struct {
	Summary string            `json:"summary,omitempty"`
	Result  *StatusResult     `json:"result,omitempty"`
	Error   *ResolutionReport `json:"error,omitempty"`
}
