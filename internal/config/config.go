// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Robots    RobotsConfig    `mapstructure:"robots"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Silver    SilverConfig    `mapstructure:"silver"`
	Manifest  ManifestConfig  `mapstructure:"manifest"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CrawlerConfig governs the compliant crawl loop.
type CrawlerConfig struct {
	UserAgent    string   `mapstructure:"user_agent"`
	BotToken     string   `mapstructure:"bot_token"`
	Seeds        []string `mapstructure:"seeds"`
	MaxPages     int      `mapstructure:"max_pages"`
	PerDomainMax int      `mapstructure:"per_domain_max"`
}

// HTTPConfig configures the HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// RobotsConfig governs robots.txt fetching and the fallback policy.
type RobotsConfig struct {
	Dir            string `mapstructure:"dir"`
	CacheTTLSec    int    `mapstructure:"cache_ttl_seconds"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	FailOpen       bool   `mapstructure:"fail_open"`
}

// RateLimitConfig holds both limiter designs: the static per-domain
// limiter used by the plain HTTP path and the adaptive single-stream
// limiter used by the dedicated crawl loop.
type RateLimitConfig struct {
	DomainRPS float64 `mapstructure:"domain_rps"`
	RPS       float64 `mapstructure:"rps"`
	MinRPS    float64 `mapstructure:"min_rps"`
	MaxRPS    float64 `mapstructure:"max_rps"`
}

// SilverConfig locates the silver-layer analytical store.
type SilverConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Dir    string `mapstructure:"dir"`
}

// ManifestConfig controls the Postgres run-manifest store.
type ManifestConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// StorageConfig sets the bronze blob backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the monitoring HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LUXCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.user_agent", "luxcrawl-bot/0.1 (+https://github.com/beautelab/luxcrawl)")
	v.SetDefault("crawler.bot_token", "luxcrawl")
	v.SetDefault("crawler.max_pages", 10)
	v.SetDefault("crawler.per_domain_max", 2)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 60000)
	v.SetDefault("robots.dir", "data/robots")
	v.SetDefault("robots.cache_ttl_seconds", 3600)
	v.SetDefault("robots.timeout_seconds", 10)
	v.SetDefault("robots.fail_open", true)
	v.SetDefault("rate_limit.domain_rps", 1.0)
	v.SetDefault("rate_limit.rps", 0.5)
	v.SetDefault("rate_limit.min_rps", 0.1)
	v.SetDefault("rate_limit.max_rps", 1.0)
	v.SetDefault("silver.driver", "sqlite")
	v.SetDefault("silver.dsn", "data/silver/silver.db")
	v.SetDefault("silver.dir", "data/silver")
	v.SetDefault("manifest.table", "manifest_runs")
	v.SetDefault("manifest.max_conns", 4)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data/bronze")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Robots.CacheTTLSec <= 0 {
		return fmt.Errorf("robots.cache_ttl_seconds must be > 0")
	}
	if c.RateLimit.MinRPS <= 0 {
		return fmt.Errorf("rate_limit.min_rps must be > 0")
	}
	if c.RateLimit.MaxRPS < c.RateLimit.MinRPS {
		return fmt.Errorf("rate_limit.max_rps must be >= rate_limit.min_rps")
	}
	if c.RateLimit.RPS < c.RateLimit.MinRPS || c.RateLimit.RPS > c.RateLimit.MaxRPS {
		return fmt.Errorf("rate_limit.rps must be within [min_rps, max_rps]")
	}
	switch c.Storage.Backend {
	case "local", "gcs", "memory":
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs, memory")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when backend is gcs")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// HTTPTimeout converts the HTTP timeout config into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RobotsTimeout converts the robots fetch timeout config into a duration.
func (c Config) RobotsTimeout() time.Duration {
	return time.Duration(c.Robots.TimeoutSeconds) * time.Second
}

// RobotsCacheTTL converts the robots cache TTL config into a duration.
func (c Config) RobotsCacheTTL() time.Duration {
	return time.Duration(c.Robots.CacheTTLSec) * time.Second
}

// BackoffInitial converts the initial retry backoff into a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the maximum retry backoff into a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
