package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/propstatus/internal/extract"
	"github.com/sells-group/propstatus/internal/metrics"
	"github.com/sells-group/propstatus/internal/model"
	"github.com/sells-group/propstatus/internal/resilience"
)

// runCandidates drives the provider across the candidate list until one
// candidate yields a parseable answer. Per-candidate failures are absorbed;
// only the success or the assembled report leaves this function.
func (s *Service) runCandidates(ctx context.Context, address string) model.Resolution {
	live, augmented := s.augmenter.Lookup(ctx, address)
	prompt := BuildPrompt(address, live)

	cands := s.candidates.list()
	if len(cands) == 0 {
		return s.configurationReport(address, &resilience.ConfigurationError{Reason: "no candidate models configured"})
	}

	log := s.log.With(zap.String("address", address))
	log.Debug("resolver: trying candidates",
		zap.Strings("candidates", cands),
		zap.Bool("augmented", augmented),
	)

	attempted := make([]string, 0, len(cands))
	var last model.ProviderOutcome
	for _, candidate := range cands {
		if err := ctx.Err(); err != nil {
			last = model.ProviderOutcome{Kind: model.OutcomeTransient, Model: candidate, Reason: err.Error(), Err: err}
			break
		}

		attempted = append(attempted, candidate)
		out := s.tryCandidate(ctx, candidate, prompt)
		metrics.ProviderAttemptsTotal.WithLabelValues(s.client.Name(), candidate, out.Kind.String()).Inc()

		if out.Kind == model.OutcomeSuccess {
			if prev := s.candidates.current(); prev != candidate {
				log.Info("resolver: promoting candidate", zap.String("model", candidate), zap.String("previous", prev))
			}
			s.candidates.promote(candidate)
			return model.Resolution{Address: address, Source: model.SourceProvider, Model: candidate, Result: out.Result}
		}

		log.Warn("resolver: candidate failed",
			zap.String("model", candidate),
			zap.String("outcome", out.Kind.String()),
			zap.Bool("quota_exceeded", out.QuotaExceeded),
			zap.Duration("retry_after", out.RetryAfter),
			zap.String("reason", out.Reason),
		)
		last = out
	}

	return model.Resolution{
		Address: address,
		Source:  model.SourceReport,
		Report:  s.failureReport(address, attempted, last),
	}
}

func (s *Service) tryCandidate(ctx context.Context, candidate, prompt string) model.ProviderOutcome {
	start := time.Now()
	raw, err := resilience.ExecuteVal(ctx, s.breakers.Get(candidate), func(ctx context.Context) (string, error) {
		return s.client.Invoke(ctx, candidate, prompt)
	})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		metrics.ProviderLatency.WithLabelValues(s.client.Name(), candidate).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return classifyOutcome(candidate, err)
	}

	result, err := extract.Status(raw)
	if err != nil {
		return classifyOutcome(candidate, err)
	}
	return model.Success(candidate, result)
}

// classifyOutcome maps a classified provider error onto an outcome kind.
func classifyOutcome(candidate string, err error) model.ProviderOutcome {
	out := model.ProviderOutcome{Model: candidate, Reason: err.Error(), Err: err}

	var (
		qe *resilience.QuotaExceededError
		te *resilience.TransportError
		pe *resilience.ParseError
	)
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		out.Kind = model.OutcomeNotAvailable
		out.Reason = "circuit open for " + candidate
	case errors.As(err, &qe):
		out.Kind = model.OutcomeTransient
		out.QuotaExceeded = true
		out.RetryAfter = qe.RetryAfter
		out.Reason = qe.Diagnostic
	case resilience.IsModelUnavailable(err):
		out.Kind = model.OutcomeNotAvailable
	case errors.As(err, &pe):
		out.Kind = model.OutcomeFatal
	case errors.As(err, &te) && te.StatusCode >= 400 && te.StatusCode < 500 && !resilience.IsTransientHTTPStatus(te.StatusCode):
		out.Kind = model.OutcomeFatal
	case resilience.IsConfiguration(err):
		out.Kind = model.OutcomeFatal
	default:
		out.Kind = model.OutcomeTransient
	}
	return out
}

// failureReport assembles the terminal report from the last recorded failure.
func (s *Service) failureReport(address string, attempted []string, last model.ProviderOutcome) *model.ResolutionReport {
	r := &model.ResolutionReport{
		AttemptedCandidates: attempted,
		Fallback:            model.LocalFallbackResult(fmt.Sprintf("%s error or no result for %s.", s.client.Name(), address)),
	}

	switch {
	case last.QuotaExceeded:
		delay := last.RetryAfter
		if delay <= 0 {
			delay, _ = resilience.ParseRetryAfter(last.Reason)
		}
		secs := resilience.RetryAfterSeconds(delay, s.defaultRetryAfter)
		r.QuotaExceeded = true
		r.RetryAfterSeconds = &secs
		r.Error = fmt.Sprintf("quota exceeded for every candidate model; retry in %ds: %s", secs, last.Reason)
		r.Suggestion = "Wait for the quota window to reset or add fallback models with independent quota."
	case last.Kind == model.OutcomeNotAvailable:
		r.ModelUnavailable = true
		r.Error = fmt.Sprintf("no candidate model is available (last tried %s): %s", last.Model, last.Reason)
		r.Suggestion = "Point provider.model at a model listed by `propstatus models`."
	default:
		r.Error = last.Reason
	}
	return r
}

func (s *Service) configurationReport(address string, err error) model.Resolution {
	reason := err.Error()
	var ce *resilience.ConfigurationError
	if errors.As(err, &ce) {
		reason = ce.Reason
	}
	name := s.client.Name()
	return model.Resolution{
		Address: address,
		Source:  model.SourceReport,
		Report: &model.ResolutionReport{
			Error:               fmt.Sprintf("%s not configured (%s).", name, reason),
			Suggestion:          fmt.Sprintf("Set the %s credentials (%s) in the environment and restart the server.", name, reason),
			ConfigurationError:  true,
			AttemptedCandidates: []string{},
			Fallback: model.LocalFallbackResult(
				fmt.Sprintf("%s not configured. Local heuristic suggests unknown status for %s.", name, address)),
		},
	}
}
