// Package resolver turns an address into a listing status. It owns the
// candidate fallback loop, the TTL cache, the timeout-bounded foreground
// wait and the admission-gated batch path.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/propstatus/internal/cache"
	"github.com/sells-group/propstatus/internal/metrics"
	"github.com/sells-group/propstatus/internal/model"
	"github.com/sells-group/propstatus/internal/provider"
	"github.com/sells-group/propstatus/internal/resilience"
	"github.com/sells-group/propstatus/internal/search"
)

const (
	DefaultTimeout           = 20 * time.Second
	DefaultBatchConcurrency  = 6
	DefaultRetryAfter        = 60 * time.Second
	defaultDiscoveryAttempts = 2
)

// Options configures a Service. Zero values take the defaults.
type Options struct {
	Model          string
	FallbackModels []string
	ExcludeModels  []string
	MaxCandidates  int

	CacheTTL             time.Duration
	Timeout              time.Duration
	BatchConcurrency     int
	DefaultRetryAfter    time.Duration
	NamespaceByPrincipal bool

	Circuit resilience.CircuitBreakerConfig
	Retry   resilience.RetryConfig
}

// cached is what the TTL cache stores per address.
type cached struct {
	Result model.StatusResult
	Model  string
}

// Service resolves listing statuses. It is safe for concurrent use.
type Service struct {
	client     provider.Client
	augmenter  search.Augmenter
	cache      *cache.TTL[cached]
	candidates *candidates
	breakers   *resilience.CandidateBreakers
	flights    singleflight.Group
	background sync.WaitGroup

	timeout           time.Duration
	batchConcurrency  int
	defaultRetryAfter time.Duration
	namespace         bool
	retry             resilience.RetryConfig
	log               *zap.Logger
}

// New creates a Service. A nil augmenter disables search augmentation.
func New(client provider.Client, augmenter search.Augmenter, opts Options) *Service {
	if augmenter == nil {
		augmenter = search.Noop{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = DefaultBatchConcurrency
	}
	if opts.DefaultRetryAfter <= 0 {
		opts.DefaultRetryAfter = DefaultRetryAfter
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = resilience.DefaultRetryConfig()
		opts.Retry.MaxAttempts = defaultDiscoveryAttempts
	}

	return &Service{
		client:            client,
		augmenter:         augmenter,
		cache:             cache.New[cached](opts.CacheTTL),
		candidates:        newCandidates(opts.Model, opts.FallbackModels, opts.ExcludeModels, opts.MaxCandidates),
		breakers:          resilience.NewCandidateBreakers(opts.Circuit),
		timeout:           opts.Timeout,
		batchConcurrency:  opts.BatchConcurrency,
		defaultRetryAfter: opts.DefaultRetryAfter,
		namespace:         opts.NamespaceByPrincipal,
		retry:             opts.Retry,
		log:               zap.L().With(zap.String("component", "resolver"), zap.String("provider", client.Name())),
	}
}

// Resolve returns the status for address. A fresh cache entry is returned
// directly. Otherwise the candidate loop runs detached from ctx and the
// caller waits at most the configured timeout; on timeout a pending
// placeholder is returned and the loop keeps going, caching its answer
// when it succeeds.
func (s *Service) Resolve(ctx context.Context, principal, address string) model.Resolution {
	res := s.resolve(ctx, principal, address, true)
	metrics.ResolutionsTotal.WithLabelValues(string(res.Source)).Inc()
	return res
}

func (s *Service) resolve(ctx context.Context, principal, address string, bounded bool) model.Resolution {
	address = strings.TrimSpace(address)
	if address == "" {
		return model.Resolution{
			Source: model.SourceReport,
			Report: &model.ResolutionReport{
				Error:               "address is required",
				AttemptedCandidates: []string{},
				Fallback:            model.LocalFallbackResult("No address supplied."),
			},
		}
	}

	key := s.key(principal, address)
	if hit, ok := s.cache.Get(key); ok {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		result := hit.Result
		return model.Resolution{Address: address, Source: model.SourceCache, Model: hit.Model, Result: &result}
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	metrics.CacheEntries.Set(float64(s.cache.Len()))

	if err := s.client.Ready(); err != nil {
		return s.configurationReport(address, err)
	}

	ch := s.join(ctx, key, address)

	var timeout <-chan time.Time
	if bounded {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-ch:
		s.background.Done()
		res := r.Val.(model.Resolution)
		res.Address = address
		return res
	case <-timeout:
		s.detach(ch)
		s.log.Info("resolver: foreground wait timed out, continuing in background",
			zap.String("address", address),
			zap.Duration("timeout", s.timeout),
		)
		return s.placeholder(address, "timed out waiting for the provider")
	case <-ctx.Done():
		s.detach(ch)
		return s.placeholder(address, ctx.Err().Error())
	}
}

// join starts the candidate loop for key, or attaches to the one already
// running. The loop never sees the caller's cancellation. Every join must
// be matched by background.Done, either directly or through detach.
func (s *Service) join(ctx context.Context, key, address string) <-chan singleflight.Result {
	s.background.Add(1)
	detached := context.WithoutCancel(ctx)
	return s.flights.DoChan(key, func() (any, error) {
		res := s.runCandidates(detached, address)
		if res.Result != nil {
			s.cache.Put(key, cached{Result: *res.Result, Model: res.Model})
			metrics.CacheEntries.Set(float64(s.cache.Len()))
		} else if res.Report != nil {
			s.log.Warn("resolver: resolution failed",
				zap.String("address", address),
				zap.String("error", res.Report.Error),
				zap.Bool("quota_exceeded", res.Report.QuotaExceeded),
				zap.Strings("attempted", res.Report.AttemptedCandidates),
			)
		}
		return res, nil
	})
}

// detach stops waiting on ch while keeping the flight tracked until it ends.
func (s *Service) detach(ch <-chan singleflight.Result) {
	metrics.BackgroundTasks.Inc()
	go func() {
		<-ch
		metrics.BackgroundTasks.Dec()
		s.background.Done()
	}()
}

func (s *Service) placeholder(address, reason string) model.Resolution {
	return model.Resolution{
		Address: address,
		Source:  model.SourcePlaceholder,
		Report: &model.ResolutionReport{
			Error:               fmt.Sprintf("status lookup still in progress (%s)", reason),
			Suggestion:          "Retry shortly; the result is cached once the lookup completes.",
			Pending:             true,
			AttemptedCandidates: []string{},
			Fallback: model.LocalFallbackResult(
				fmt.Sprintf("Lookup for %s is still running; showing a placeholder.", address)),
		},
	}
}

func (s *Service) key(principal, address string) string {
	if !s.namespace {
		principal = ""
	}
	return cache.Key(principal, address)
}

// Wait blocks until every detached resolution has finished or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentModel returns the preferred candidate.
func (s *Service) CurrentModel() string {
	return s.candidates.current()
}

// ListAvailableModels returns the candidates in the order they would be
// tried. Models are discovered on first use when none are known yet.
func (s *Service) ListAvailableModels(ctx context.Context) []string {
	if len(s.candidates.discoveredModels()) == 0 && s.client.Ready() == nil {
		if _, err := s.RefreshModels(ctx); err != nil {
			s.log.Warn("resolver: model discovery failed", zap.Error(err))
		}
	}
	return s.candidates.list()
}

// RefreshModels queries the provider for callable models and stores the
// non-excluded ones as discovered candidates.
func (s *Service) RefreshModels(ctx context.Context) ([]string, error) {
	ids, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]string, error) {
		return s.client.ListModels(ctx)
	})
	if err != nil {
		return nil, err
	}
	kept := s.candidates.setDiscovered(ids)
	s.log.Info("resolver: discovered models", zap.Int("listed", len(ids)), zap.Strings("kept", kept))
	return kept, nil
}

// Breakers exposes the per-candidate circuit state and failure counts.
func (s *Service) Breakers() map[string]resilience.BreakerSnapshot {
	return s.breakers.Snapshot()
}

// OpenCandidates lists the candidates currently skipped by an open circuit.
func (s *Service) OpenCandidates() []string {
	return s.breakers.Open()
}
