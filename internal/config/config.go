package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Qualify    QualifyConfig    `yaml:"qualify" mapstructure:"qualify"`
	Calibrate  CalibrateConfig  `yaml:"calibrate" mapstructure:"calibrate"`
	Weights    WeightsConfig    `yaml:"weights" mapstructure:"weights"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	ScoringModel string `yaml:"scoring_model" mapstructure:"scoring_model"`
	QualityModel string `yaml:"quality_model" mapstructure:"quality_model"`
	MaxTokens    int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// PerplexityConfig holds Perplexity API settings (search fallback).
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// FirecrawlConfig holds Firecrawl API settings (scrape fallback).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds Notion API credentials and the case file database.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	CaseDB string `yaml:"case_db" mapstructure:"case_db"`
}

// RegistryConfig configures the company registry lookup.
type RegistryConfig struct {
	BaseURL          string   `yaml:"base_url" mapstructure:"base_url"`
	RateLimit        float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLHours    int      `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	Concurrency      int      `yaml:"concurrency" mapstructure:"concurrency"`
	WavePauseMs      int      `yaml:"wave_pause_ms" mapstructure:"wave_pause_ms"`
	TargetRegions    []string `yaml:"target_regions" mapstructure:"target_regions"`
	ExcludedForms    []string `yaml:"excluded_forms" mapstructure:"excluded_forms"`
	MinEmployees     int      `yaml:"min_employees" mapstructure:"min_employees"`
	HoldingIndustry  string   `yaml:"holding_industry" mapstructure:"holding_industry"`
	NameSearchResult int      `yaml:"name_search_results" mapstructure:"name_search_results"`
}

// QualifyConfig configures a qualification run.
type QualifyConfig struct {
	Threshold           float64 `yaml:"threshold" mapstructure:"threshold"`
	EscalationFloor     float64 `yaml:"escalation_floor" mapstructure:"escalation_floor"`
	QualityCutoff       int     `yaml:"quality_cutoff" mapstructure:"quality_cutoff"`
	ProductionCap       int     `yaml:"production_cap" mapstructure:"production_cap"`
	TestCap             int     `yaml:"test_cap" mapstructure:"test_cap"`
	SeedLimit           int     `yaml:"seed_limit" mapstructure:"seed_limit"`
	OpsLimit            int     `yaml:"ops_limit" mapstructure:"ops_limit"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ClassifierChunkSize int     `yaml:"classifier_chunk_size" mapstructure:"classifier_chunk_size"`
	SearchConcurrency   int     `yaml:"search_concurrency" mapstructure:"search_concurrency"`
	SearchResults       int     `yaml:"search_results" mapstructure:"search_results"`
	FeedbackExamples    int     `yaml:"feedback_examples" mapstructure:"feedback_examples"`
	Publish             bool    `yaml:"publish" mapstructure:"publish"`
}

// Timeout returns the wall-clock budget of a run.
func (q QualifyConfig) Timeout() time.Duration {
	return time.Duration(q.TimeoutSecs) * time.Second
}

// CalibrateConfig configures the feedback calibrator.
type CalibrateConfig struct {
	MinItems      int     `yaml:"min_items" mapstructure:"min_items"`
	MinGroupSize  int     `yaml:"min_group_size" mapstructure:"min_group_size"`
	RaiseRatio    float64 `yaml:"raise_ratio" mapstructure:"raise_ratio"`
	LowerRatio    float64 `yaml:"lower_ratio" mapstructure:"lower_ratio"`
	Step          float64 `yaml:"step" mapstructure:"step"`
	FeedbackLimit int     `yaml:"feedback_limit" mapstructure:"feedback_limit"`
}

// WeightsConfig locates the scoring weights file.
type WeightsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RetryConfig configures retries around external collaborators.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaPricing             `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	Firecrawl  FirecrawlPricing        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// JinaPricing holds Jina pricing.
type JinaPricing struct {
	PerSearch float64 `yaml:"per_search" mapstructure:"per_search"`
	PerRead   float64 `yaml:"per_read" mapstructure:"per_read"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// FirecrawlPricing holds Firecrawl pricing.
type FirecrawlPricing struct {
	PerScrape float64 `yaml:"per_scrape" mapstructure:"per_scrape"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Mode           string   `yaml:"mode" mapstructure:"mode"`
	Secret         string   `yaml:"secret" mapstructure:"secret"`
	ShutdownSecs   int      `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// defaultTargetRegions are the two-digit postal prefixes of the target
// region (00-25 and 30-39).
func defaultTargetRegions() []string {
	var out []string
	for i := 0; i <= 25; i++ {
		out = append(out, fmt.Sprintf("%02d", i))
	}
	for i := 30; i <= 39; i++ {
		out = append(out, fmt.Sprintf("%02d", i))
	}
	return out
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leads.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.mode", "production")
	v.SetDefault("server.shutdown_secs", 30)
	v.SetDefault("anthropic.scoring_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.quality_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("registry.base_url", "https://data.brreg.no/enhetsregisteret/api")
	v.SetDefault("registry.rate_limit", 10)
	v.SetDefault("registry.cache_ttl_hours", 24)
	v.SetDefault("registry.concurrency", 5)
	v.SetDefault("registry.wave_pause_ms", 100)
	v.SetDefault("registry.target_regions", defaultTargetRegions())
	v.SetDefault("registry.excluded_forms", []string{"ENK", "DA", "ANS"})
	v.SetDefault("registry.min_employees", 30)
	v.SetDefault("registry.holding_industry", "64.200")
	v.SetDefault("registry.name_search_results", 5)
	v.SetDefault("qualify.threshold", 0.60)
	v.SetDefault("qualify.escalation_floor", 0.50)
	v.SetDefault("qualify.quality_cutoff", 60)
	v.SetDefault("qualify.production_cap", 10)
	v.SetDefault("qualify.test_cap", 25)
	v.SetDefault("qualify.seed_limit", 100)
	v.SetDefault("qualify.ops_limit", 50)
	v.SetDefault("qualify.timeout_secs", 300)
	v.SetDefault("qualify.classifier_chunk_size", 25)
	v.SetDefault("qualify.search_concurrency", 5)
	v.SetDefault("qualify.search_results", 3)
	v.SetDefault("qualify.feedback_examples", 5)
	v.SetDefault("qualify.publish", false)
	v.SetDefault("calibrate.min_items", 10)
	v.SetDefault("calibrate.min_group_size", 3)
	v.SetDefault("calibrate.raise_ratio", 0.6)
	v.SetDefault("calibrate.lower_ratio", 0.5)
	v.SetDefault("calibrate.step", 0.05)
	v.SetDefault("calibrate.feedback_limit", 500)
	v.SetDefault("weights.path", "scoring-weights.yaml")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("pricing.jina.per_search", 0.002)
	v.SetDefault("pricing.jina.per_read", 0.001)
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.firecrawl.per_scrape", 0.0063)

	// Read config file (optional)
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

// Validate checks that the keys required by a command mode are present.
// Modes: "qualify", "calibrate", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "qualify":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Qualify.Threshold <= 0 || c.Qualify.Threshold > 1 {
			errs = append(errs, "qualify.threshold must be in (0, 1]")
		}
		if c.Qualify.EscalationFloor < 0 || c.Qualify.EscalationFloor > c.Qualify.Threshold {
			errs = append(errs, "qualify.escalation_floor must be in [0, threshold]")
		}
		if c.Qualify.OpsLimit <= 0 {
			errs = append(errs, "qualify.ops_limit must be positive")
		}
		if c.Qualify.ClassifierChunkSize <= 0 {
			errs = append(errs, "qualify.classifier_chunk_size must be positive")
		}
		if c.Qualify.Publish && (c.Notion.Token == "" || c.Notion.CaseDB == "") {
			errs = append(errs, "notion.token and notion.case_db are required when qualify.publish is set")
		}
	case "calibrate":
		if c.Calibrate.MinGroupSize <= 0 {
			errs = append(errs, "calibrate.min_group_size must be positive")
		}
		if c.Calibrate.Step <= 0 || c.Calibrate.Step >= 1 {
			errs = append(errs, "calibrate.step must be in (0, 1)")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
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
