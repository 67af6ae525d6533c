package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/propstatus/internal/config"
	"github.com/sells-group/propstatus/internal/provider"
	"github.com/sells-group/propstatus/internal/resilience"
	"github.com/sells-group/propstatus/internal/resolver"
	"github.com/sells-group/propstatus/internal/search"
	"github.com/sells-group/propstatus/internal/store"
)

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func providerSettings(c *config.Config) provider.Settings {
	s := provider.Settings{
		Name:      c.Provider.Name,
		MaxTokens: c.Provider.MaxTokens,
		Timeout:   secs(c.Provider.TimeoutSecs),
	}
	switch strings.ToLower(c.Provider.Name) {
	case "anthropic":
		s.APIKey = c.Anthropic.APIKey
		s.BaseURL = c.Anthropic.BaseURL
	default:
		s.APIKey = c.Groq.APIKey
		s.BaseURL = c.Groq.BaseURL
	}
	return s
}

func retryConfig(c *config.Config) resilience.RetryConfig {
	return resilience.FromRetryConfig(
		c.Retry.MaxAttempts,
		c.Retry.InitialBackoffMs,
		c.Retry.MaxBackoffMs,
		c.Retry.Multiplier,
		c.Retry.JitterFraction,
	)
}

func searchSettings(c *config.Config) search.Settings {
	return search.Settings{
		Provider:          c.Search.Provider,
		TavilyAPIKey:      c.Tavily.APIKey,
		TavilyBaseURL:     c.Tavily.BaseURL,
		JinaAPIKey:        c.Jina.APIKey,
		JinaBaseURL:       c.Jina.SearchBaseURL,
		PerplexityAPIKey:  c.Perplexity.APIKey,
		PerplexityBaseURL: c.Perplexity.BaseURL,
		PerplexityModel:   c.Perplexity.Model,
		Timeout:           secs(c.Search.TimeoutSecs),
		RateLimit:         c.Search.RateLimit,
		Retry:             retryConfig(c),
	}
}

func resolverOptions(c *config.Config) resolver.Options {
	return resolver.Options{
		Model:                c.ActiveModel(),
		FallbackModels:       c.Provider.FallbackModels,
		ExcludeModels:        c.Provider.ExcludeModels,
		MaxCandidates:        c.Provider.MaxCandidates,
		CacheTTL:             secs(c.Resolver.CacheTTLSecs),
		Timeout:              secs(c.Resolver.TimeoutSecs),
		BatchConcurrency:     c.Resolver.BatchConcurrency,
		DefaultRetryAfter:    secs(c.Resolver.DefaultRetryAfterSecs),
		NamespaceByPrincipal: c.Resolver.NamespaceByPrincipal,
		Circuit: resilience.FromCircuitConfig(
			c.Circuit.FailureThreshold,
			c.Circuit.ResetTimeoutSecs,
			c.Circuit.HalfOpenTrials,
			func(candidate string, from, to resilience.CircuitState) {
				zap.L().Warn("candidate circuit state change",
					zap.String("model", candidate),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		),
		Retry: retryConfig(c),
	}
}

// initResolver composes the provider client, search augmenter and
// resolution service. Model discovery runs once when enabled; a failure
// leaves the configured candidates in place.
func initResolver(ctx context.Context, c *config.Config) (*resolver.Service, error) {
	client, err := provider.New(providerSettings(c))
	if err != nil {
		return nil, eris.Wrap(err, "init provider")
	}

	svc := resolver.New(client, search.New(searchSettings(c)), resolverOptions(c))

	if c.Provider.DiscoverModels && client.Ready() == nil {
		if _, err := svc.RefreshModels(ctx); err != nil {
			zap.L().Warn("model discovery failed, using configured candidates", zap.Error(err))
		}
	}
	return svc, nil
}
