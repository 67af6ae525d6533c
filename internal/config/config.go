// Package config loads propstatus configuration from config.yaml and the
// environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider" mapstructure:"provider"`
	Groq       GroqConfig       `yaml:"groq" mapstructure:"groq"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Tavily     TavilyConfig     `yaml:"tavily" mapstructure:"tavily"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Resolver   ResolverConfig   `yaml:"resolver" mapstructure:"resolver"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Refresh    RefreshConfig    `yaml:"refresh" mapstructure:"refresh"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ProviderConfig selects the inference integration and its candidate models.
type ProviderConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	// Model overrides the integration's own default model when set.
	Model          string   `yaml:"model" mapstructure:"model"`
	FallbackModels []string `yaml:"fallback_models" mapstructure:"fallback_models"`
	DiscoverModels bool     `yaml:"discover_models" mapstructure:"discover_models"`
	MaxCandidates  int      `yaml:"max_candidates" mapstructure:"max_candidates"`
	ExcludeModels  []string `yaml:"exclude_models" mapstructure:"exclude_models"`
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTokens      int      `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GroqConfig holds Groq API settings.
type GroqConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// SearchConfig configures live search augmentation of the prompt.
type SearchConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// TavilyConfig holds Tavily search API settings.
type TavilyConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina search API settings.
type JinaConfig struct {
	APIKey        string `yaml:"api_key" mapstructure:"api_key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// PerplexityConfig holds Perplexity search settings.
type PerplexityConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ResolverConfig tunes caching, timeouts and batch admission.
type ResolverConfig struct {
	CacheTTLSecs          int  `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	TimeoutSecs           int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BatchConcurrency      int  `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	DefaultRetryAfterSecs int  `yaml:"default_retry_after_secs" mapstructure:"default_retry_after_secs"`
	NamespaceByPrincipal  bool `yaml:"namespace_by_principal" mapstructure:"namespace_by_principal"`
}

// CircuitConfig configures the per-candidate circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	HalfOpenTrials   int `yaml:"half_open_trials" mapstructure:"half_open_trials"`
}

// RetryConfig configures retries for search and model listing calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// StoreConfig configures the property store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RefreshConfig configures the periodic status refresh.
type RefreshConfig struct {
	Enabled      bool `yaml:"enabled" mapstructure:"enabled"`
	IntervalSecs int  `yaml:"interval_secs" mapstructure:"interval_secs"`
	// Tenants limits the refresh; empty means every tenant in the store.
	Tenants       []string `yaml:"tenants" mapstructure:"tenants"`
	MinConfidence float64  `yaml:"min_confidence" mapstructure:"min_confidence"`
	Concurrency   int      `yaml:"concurrency" mapstructure:"concurrency"`
	WebhookURL    string   `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv maps config keys to the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	"groq.api_key":       "GROQ_API_KEY",
	"groq.model":         "GROQ_MODEL",
	"tavily.api_key":     "TAVILY_API_KEY",
	"anthropic.api_key":  "ANTHROPIC_API_KEY",
	"jina.api_key":       "JINA_API_KEY",
	"perplexity.api_key": "PERPLEXITY_API_KEY",
	"store.database_url": "DATABASE_URL",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PROPSTATUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		// The prefixed name wins over the legacy one.
		if err := v.BindEnv(key, "PROPSTATUS_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.name", "groq")
	v.SetDefault("provider.fallback_models", []string{"llama-3.1-8b-instant"})
	v.SetDefault("provider.discover_models", true)
	v.SetDefault("provider.max_candidates", 5)
	v.SetDefault("provider.exclude_models", []string{"whisper", "tts", "guard", "embed"})
	v.SetDefault("provider.timeout_secs", 30)
	v.SetDefault("provider.max_tokens", 512)
	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("groq.model", "llama-3.3-70b-versatile")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("search.provider", "tavily")
	v.SetDefault("search.timeout_secs", 8)
	v.SetDefault("search.rate_limit", 2.0)
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("resolver.cache_ttl_secs", 21600)
	v.SetDefault("resolver.timeout_secs", 20)
	v.SetDefault("resolver.batch_concurrency", 6)
	v.SetDefault("resolver.default_retry_after_secs", 60)
	v.SetDefault("resolver.namespace_by_principal", true)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("circuit.half_open_trials", 1)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "propstatus.db")
	v.SetDefault("refresh.enabled", false)
	v.SetDefault("refresh.interval_secs", 3600)
	v.SetDefault("refresh.min_confidence", 0.5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// ActiveModel is the preferred model for the selected provider.
func (c *Config) ActiveModel() string {
	if c.Provider.Model != "" {
		return c.Provider.Model
	}
	if strings.EqualFold(c.Provider.Name, "anthropic") {
		return c.Anthropic.Model
	}
	return c.Groq.Model
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
