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

// Cache drivers accepted by cache.driver.
const (
	CacheDriverMemory   = "memory"
	CacheDriverLRU      = "lru"
	CacheDriverSQLite   = "sqlite"
	CacheDriverPostgres = "postgres"
)

// Config holds the full application configuration.
type Config struct {
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ExtractionConfig configures batching, retries and the entity allow-set.
type ExtractionConfig struct {
	MaxRetries       int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	// RetryMultiplier scales the delay after each retry; 1 keeps it fixed.
	RetryMultiplier  float64       `yaml:"retry_multiplier" mapstructure:"retry_multiplier"`
	RetryJitter      float64       `yaml:"retry_jitter" mapstructure:"retry_jitter"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay" mapstructure:"retry_max_delay"`
	BatchSize        int           `yaml:"batch_size" mapstructure:"batch_size"`
	ConcurrencyLimit int           `yaml:"concurrency_limit" mapstructure:"concurrency_limit"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout" mapstructure:"attempt_timeout"`
	EntityTypes      []string      `yaml:"entity_types" mapstructure:"entity_types"`
	SingleFlight     bool          `yaml:"single_flight" mapstructure:"single_flight"`
	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit breaker. Zero disables the breaker.
	BreakerThreshold int           `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset" mapstructure:"breaker_reset"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	PromptCaching     bool    `yaml:"prompt_caching" mapstructure:"prompt_caching"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
}

// CacheConfig selects and configures the extraction cache backend.
type CacheConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	MaxEntries  int    `yaml:"max_entries" mapstructure:"max_entries"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures extraction health alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	SalvageRateThreshold float64 `yaml:"salvage_rate_threshold" mapstructure:"salvage_rate_threshold"`
	MinChunks            int     `yaml:"min_chunks" mapstructure:"min_chunks"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EXTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("extraction.max_retries", 3)
	v.SetDefault("extraction.retry_delay", 2*time.Second)
	v.SetDefault("extraction.retry_multiplier", 1.0)
	v.SetDefault("extraction.retry_jitter", 0.0)
	v.SetDefault("extraction.retry_max_delay", 30*time.Second)
	v.SetDefault("extraction.batch_size", 3)
	v.SetDefault("extraction.concurrency_limit", 2)
	v.SetDefault("extraction.attempt_timeout", 60*time.Second)
	v.SetDefault("extraction.entity_types", []string{"PERSON", "ORG", "LOCATION", "EVENT", "PRODUCT", "DATE", "CONCEPT"})
	v.SetDefault("extraction.single_flight", true)
	v.SetDefault("extraction.breaker_threshold", 0)
	v.SetDefault("extraction.breaker_reset", 30*time.Second)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.requests_per_second", 0)
	v.SetDefault("anthropic.prompt_caching", true)
	v.SetDefault("anthropic.temperature", 0.0)
	v.SetDefault("cache.driver", CacheDriverMemory)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.sqlite_path", "extract-cache.db")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.salvage_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_chunks", 5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

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

// Validate checks the settings a command needs. Mode is one of "extract",
// "serve" or "cache".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "extract", "serve":
		errs = append(errs, c.validateExtraction()...)
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "cache":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	errs = append(errs, c.validateCache()...)

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateExtraction() []string {
	var errs []string
	e := c.Extraction
	if e.MaxRetries < 0 {
		errs = append(errs, "extraction.max_retries must be >= 0")
	}
	if e.RetryDelay < 0 {
		errs = append(errs, "extraction.retry_delay must be >= 0")
	}
	if e.RetryMultiplier < 0 {
		errs = append(errs, "extraction.retry_multiplier must be >= 0")
	}
	if e.RetryJitter < 0 || e.RetryJitter > 1 {
		errs = append(errs, "extraction.retry_jitter must be between 0 and 1")
	}
	if e.RetryMaxDelay < 0 {
		errs = append(errs, "extraction.retry_max_delay must be >= 0")
	}
	if e.BatchSize < 1 {
		errs = append(errs, "extraction.batch_size must be >= 1")
	}
	if e.ConcurrencyLimit < 1 {
		errs = append(errs, "extraction.concurrency_limit must be >= 1")
	}
	if e.AttemptTimeout < 0 {
		errs = append(errs, "extraction.attempt_timeout must be >= 0")
	}
	if e.BreakerThreshold < 0 {
		errs = append(errs, "extraction.breaker_threshold must be >= 0")
	}
	if len(e.EntityTypes) == 0 {
		errs = append(errs, "extraction.entity_types must not be empty")
	}
	if c.Anthropic.MaxTokens <= 0 {
		errs = append(errs, "anthropic.max_tokens must be > 0")
	}
	if c.Anthropic.RequestsPerSecond < 0 {
		errs = append(errs, "anthropic.requests_per_second must be >= 0")
	}
	if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
		errs = append(errs, "anthropic.temperature must be between 0 and 1")
	}
	return errs
}

func (c *Config) validateCache() []string {
	switch c.Cache.Driver {
	case CacheDriverMemory:
	case CacheDriverLRU:
		if c.Cache.MaxEntries < 1 {
			return []string{"cache.max_entries must be >= 1 for the lru driver"}
		}
	case CacheDriverSQLite:
		if c.Cache.SQLitePath == "" {
			return []string{"cache.sqlite_path is required for the sqlite driver"}
		}
	case CacheDriverPostgres:
		if c.Cache.DatabaseURL == "" {
			return []string{"cache.database_url is required for the postgres driver"}
		}
	default:
		return []string{fmt.Sprintf("cache.driver %q is not one of memory, lru, sqlite, postgres", c.Cache.Driver)}
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
