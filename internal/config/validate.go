package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Validate checks the configuration for the given mode: "resolve" (CLI
// lookups), "store" (commands that only touch the property store) or "serve".
// All problems are reported together.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "resolve", "serve", "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "store" {
		problems = append(problems, c.validateResolution()...)
	}
	if mode != "resolve" {
		problems = append(problems, c.validateStore()...)
	}
	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if c.Refresh.Enabled {
			if c.Refresh.IntervalSecs <= 0 {
				problems = append(problems, "refresh.interval_secs must be > 0")
			}
			if c.Refresh.MinConfidence < 0 || c.Refresh.MinConfidence > 1 {
				problems = append(problems, "refresh.min_confidence must be between 0 and 1")
			}
		}
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateResolution() []string {
	var problems []string
	switch strings.ToLower(c.Provider.Name) {
	case "groq", "anthropic":
	default:
		problems = append(problems, fmt.Sprintf("provider.name %q is not supported (groq, anthropic)", c.Provider.Name))
	}
	switch strings.ToLower(c.Search.Provider) {
	case "", "none", "tavily", "jina", "perplexity":
	default:
		problems = append(problems, fmt.Sprintf("search.provider %q is not supported (tavily, jina, perplexity, none)", c.Search.Provider))
	}
	if c.Resolver.CacheTTLSecs < 0 {
		problems = append(problems, "resolver.cache_ttl_secs must be >= 0")
	}
	if c.Resolver.TimeoutSecs <= 0 {
		problems = append(problems, "resolver.timeout_secs must be > 0")
	}
	if c.Resolver.BatchConcurrency < 1 || c.Resolver.BatchConcurrency > 64 {
		problems = append(problems, "resolver.batch_concurrency must be between 1 and 64")
	}
	if c.Resolver.DefaultRetryAfterSecs < 0 {
		problems = append(problems, "resolver.default_retry_after_secs must be >= 0")
	}
	if c.Provider.MaxCandidates < 0 {
		problems = append(problems, "provider.max_candidates must be >= 0")
	}
	if c.Search.RateLimit < 0 {
		problems = append(problems, "search.rate_limit must be >= 0")
	}
	// A missing API key is not an error: resolutions report it per request.
	return problems
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required for the sqlite driver"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for the postgres driver"}
		}
	default:
		return []string{fmt.Sprintf("store.driver %q is not supported (sqlite, postgres)", c.Store.Driver)}
	}
	return nil
}

const redacted = "[redacted]"

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}

// Redacted returns a copy with credentials masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Groq.APIKey = mask(c.Groq.APIKey)
	out.Anthropic.APIKey = mask(c.Anthropic.APIKey)
	out.Tavily.APIKey = mask(c.Tavily.APIKey)
	out.Jina.APIKey = mask(c.Jina.APIKey)
	out.Perplexity.APIKey = mask(c.Perplexity.APIKey)
	out.Store.DatabaseURL = mask(c.Store.DatabaseURL)
	out.Refresh.WebhookURL = mask(c.Refresh.WebhookURL)
	return out
}

// YAML renders the redacted effective configuration.
func (c *Config) YAML() ([]byte, error) {
	raw, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, eris.Wrap(err, "config: marshal yaml")
	}
	return raw, nil
}
