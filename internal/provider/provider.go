// Package provider adapts the remote inference APIs behind one invocation
// contract. Every failure is classified into the resilience taxonomy before
// it leaves the package.
package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/propstatus/internal/resilience"
)

// Client invokes a candidate model with a prompt and returns its raw text.
type Client interface {
	// Name identifies the integration ("groq", "anthropic").
	Name() string
	// Ready returns a *resilience.ConfigurationError when the integration
	// has no credentials. No network call is made.
	Ready() error
	// Invoke sends prompt to model. Errors are one of QuotaExceededError,
	// ModelUnavailableError, ParseError (empty answer) or TransportError.
	Invoke(ctx context.Context, model, prompt string) (string, error)
	// ListModels returns the model IDs the account can call.
	ListModels(ctx context.Context) ([]string, error)
}

// Settings selects and configures one integration.
type Settings struct {
	Name      string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// New builds the client named by s.Name. A missing key is not an error
// here: the returned client reports it through Ready.
func New(s Settings) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(s.Name)) {
	case "", "groq":
		opts := []GroqOption{WithGroqMaxTokens(s.MaxTokens), WithGroqTimeout(s.Timeout)}
		if s.BaseURL != "" {
			opts = append(opts, WithGroqBaseURL(s.BaseURL))
		}
		return NewGroq(s.APIKey, opts...), nil
	case "anthropic":
		opts := []AnthropicOption{WithAnthropicMaxTokens(s.MaxTokens), WithAnthropicTimeout(s.Timeout)}
		if s.BaseURL != "" {
			opts = append(opts, WithAnthropicBaseURL(s.BaseURL))
		}
		return NewAnthropic(s.APIKey, opts...), nil
	default:
		return nil, eris.Errorf("provider: unknown provider %q", s.Name)
	}
}

var (
	unavailableMarkers = []string{
		"model_not_found",
		"model_decommissioned",
		"decommissioned",
		"does not exist",
		"not_found_error",
		"unknown model",
	}
	quotaMarkers = []string{
		"rate limit",
		"rate_limit",
		"quota",
		"resource_exhausted",
		"tokens per day",
		"requests per day",
	}
)

// classify maps a provider failure onto the resilience taxonomy. retryAfter
// comes from a Retry-After header when the integration exposes one;
// otherwise it is mined from the message.
func classify(model string, status int, code, message string, retryAfter time.Duration, err error) error {
	lc := strings.ToLower(code + " " + message)

	switch {
	case status == 404 || containsAny(lc, unavailableMarkers):
		return &resilience.ModelUnavailableError{Model: model, Err: err}
	case status == 429 || containsAny(lc, quotaMarkers):
		if retryAfter <= 0 {
			retryAfter, _ = resilience.ParseRetryAfter(message)
		}
		return &resilience.QuotaExceededError{
			Model:      model,
			Diagnostic: message,
			RetryAfter: retryAfter,
			Err:        err,
		}
	default:
		return &resilience.TransportError{StatusCode: status, Err: err}
	}
}

// shapeRejected reports whether the provider refused the request body
// itself, which is the cue to try the alternate invocation shape.
func shapeRejected(err error) bool {
	var te *resilience.TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.StatusCode == 400 || te.StatusCode == 422
}

// classified reports whether err already carries a taxonomy type.
func classified(err error) bool {
	var (
		qe *resilience.QuotaExceededError
		me *resilience.ModelUnavailableError
		te *resilience.TransportError
		pe *resilience.ParseError
		ce *resilience.ConfigurationError
	)
	return errors.As(err, &qe) || errors.As(err, &me) || errors.As(err, &te) ||
		errors.As(err, &pe) || errors.As(err, &ce)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func emptyAnswer(provider, model string) error {
	return &resilience.ParseError{Err: eris.Errorf("%s: empty completion from %s", provider, model)}
}
