// Package search provides best-effort live-data augmentation for the
// status prompt. Lookups never fail the caller: any problem yields an
// unaugmented prompt.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/propstatus/internal/cost"
	"github.com/sells-group/propstatus/internal/metrics"
	"github.com/sells-group/propstatus/internal/resilience"
	"github.com/sells-group/propstatus/pkg/jina"
	"github.com/sells-group/propstatus/pkg/perplexity"
	"github.com/sells-group/propstatus/pkg/tavily"
)

const (
	defaultTimeout  = 8 * time.Second
	defaultMaxChars = 4000
	maxResults      = 5
)

// Augmenter looks up live listing data for an address.
type Augmenter interface {
	// Lookup returns search text and true, or ("", false) when nothing
	// usable was found or the search failed.
	Lookup(ctx context.Context, address string) (string, bool)
}

// Settings configures the augmenter.
type Settings struct {
	// Provider is "tavily", "jina", "perplexity" or "none".
	Provider          string
	TavilyAPIKey      string
	TavilyBaseURL     string
	JinaAPIKey        string
	JinaBaseURL       string
	PerplexityAPIKey  string
	PerplexityBaseURL string
	PerplexityModel   string
	Timeout           time.Duration
	// RateLimit is the sustained lookups per second; zero disables limiting.
	RateLimit float64
	Retry     resilience.RetryConfig
}

// Query builds the web search query for an address.
func Query(address string) string {
	return fmt.Sprintf("status of %s zillow redfin", strings.TrimSpace(address))
}

// New builds the augmenter named by s.Provider. A missing key for the
// selected provider yields a no-op augmenter.
func New(s Settings) Augmenter {
	var (
		name string
		fn   searchFunc
	)
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case "tavily":
		if s.TavilyAPIKey == "" {
			return Noop{}
		}
		var opts []tavily.Option
		if s.TavilyBaseURL != "" {
			opts = append(opts, tavily.WithBaseURL(s.TavilyBaseURL))
		}
		name, fn = "tavily", tavilySearch(tavily.NewClient(s.TavilyAPIKey, opts...))
	case "jina":
		var opts []jina.Option
		if s.JinaBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(s.JinaBaseURL))
		}
		name, fn = "jina", jinaSearch(jina.NewClient(s.JinaAPIKey, opts...))
	case "perplexity":
		if s.PerplexityAPIKey == "" {
			return Noop{}
		}
		opts := []perplexity.Option{perplexity.WithModel(s.PerplexityModel)}
		if s.PerplexityBaseURL != "" {
			opts = append(opts, perplexity.WithBaseURL(s.PerplexityBaseURL))
		}
		name, fn = "perplexity", perplexitySearch(perplexity.NewClient(s.PerplexityAPIKey, opts...))
	default:
		return Noop{}
	}
	return newAugmenter(name, fn, s)
}

// Noop never finds anything.
type Noop struct{}

// Lookup implements Augmenter.
func (Noop) Lookup(context.Context, string) (string, bool) { return "", false }

type searchFunc func(ctx context.Context, query string) (string, error)

type augmenter struct {
	name    string
	search  searchFunc
	limiter *rate.Limiter
	timeout time.Duration
	retry   resilience.RetryConfig
	log     *zap.Logger
}

func newAugmenter(name string, fn searchFunc, s Settings) *augmenter {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if s.RateLimit > 0 {
		limit = rate.Limit(s.RateLimit)
	}
	retry := s.Retry
	if retry.ShouldRetry == nil {
		retry.ShouldRetry = shouldRetry
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(name, "search")
	}
	return &augmenter{
		name:    name,
		search:  fn,
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
		retry:   retry,
		log:     zap.L().With(zap.String("component", "search"), zap.String("provider", name)),
	}
}

func (a *augmenter) Lookup(ctx context.Context, address string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.limiter.Wait(ctx); err != nil {
		a.log.Warn("search: rate limiter wait aborted", zap.String("address", address), zap.Error(err))
		metrics.SearchLookupsTotal.WithLabelValues(a.name, "error").Inc()
		return "", false
	}

	text, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (string, error) {
		return a.search(ctx, Query(address))
	})
	if err != nil {
		a.log.Warn("search: lookup failed", zap.String("address", address), zap.Error(err))
		metrics.SearchLookupsTotal.WithLabelValues(a.name, "error").Inc()
		return "", false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		metrics.SearchLookupsTotal.WithLabelValues(a.name, "empty").Inc()
		return "", false
	}
	metrics.SearchLookupsTotal.WithLabelValues(a.name, "ok").Inc()
	cost.Default.RecordSearch(a.name)
	return truncate(text, defaultMaxChars), true
}

// shouldRetry retries retryable HTTP statuses reported by the search
// clients and falls back to the network heuristics.
func shouldRetry(err error) bool {
	var se interface{ HTTPStatus() int }
	if errors.As(err, &se) {
		return resilience.IsTransientHTTPStatus(se.HTTPStatus())
	}
	return resilience.IsTransient(err)
}

func tavilySearch(c tavily.Client) searchFunc {
	return func(ctx context.Context, query string) (string, error) {
		resp, err := c.Search(ctx, tavily.SearchRequest{Query: query, MaxResults: maxResults})
		if err != nil {
			return "", err
		}
		var b strings.Builder
		if resp.Answer != "" {
			b.WriteString(resp.Answer)
			b.WriteString("\n")
		}
		for _, r := range resp.Results {
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.URL, r.Content)
		}
		return b.String(), nil
	}
}

func jinaSearch(c jina.Client) searchFunc {
	return func(ctx context.Context, query string) (string, error) {
		resp, err := c.Search(ctx, query)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for i, r := range resp.Data {
			if i == maxResults {
				break
			}
			body := r.Description
			if body == "" {
				body = r.Content
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.URL, body)
		}
		return b.String(), nil
	}
}

func perplexitySearch(c perplexity.Client) searchFunc {
	return func(ctx context.Context, query string) (string, error) {
		ans, err := c.Search(ctx, query)
		if err != nil {
			return "", err
		}
		if ans.Text == "" {
			return "", nil
		}
		var b strings.Builder
		b.WriteString(ans.Text)
		b.WriteString("\n")
		for i, u := range ans.Citations {
			if i == maxResults {
				break
			}
			fmt.Fprintf(&b, "- %s\n", u)
		}
		return b.String(), nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
