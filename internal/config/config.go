// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper. It is
// built once at process start and handed into each component's constructor;
// there are no process-wide mutable settings objects.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the dashboard HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RedisConfig controls access to the queue transport.
type RedisConfig struct {
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	QueuePrefix string `mapstructure:"queue_prefix"`
}

// PostgresConfig controls access to the article store.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RequestConfig configures the static fetcher's HTTP behavior.
type RequestConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	RetryBaseDelayMs int    `mapstructure:"retry_base_delay_ms"`
	UserAgent        string `mapstructure:"user_agent"`
}

// HeadlessConfig configures the rendering fetcher.
type HeadlessConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	NavTimeoutSeconds  int  `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSeconds int  `mapstructure:"wait_timeout_seconds"`
}

// ScraperConfig groups the fetch strategy knobs. RequiredElements drives the
// content validation predicate shared by both fetchers.
type ScraperConfig struct {
	Request          RequestConfig  `mapstructure:"request"`
	Headless         HeadlessConfig `mapstructure:"headless"`
	RequiredElements []string       `mapstructure:"required_elements"`
}

// ConsumerConfig governs the ingestion loop. MaxArticles of zero means
// unlimited.
type ConsumerConfig struct {
	BatchSize           int `mapstructure:"batch_size"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	MaxArticles         int `mapstructure:"max_articles"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue_prefix", "articles:queue")
	v.SetDefault("postgres.table", "articles")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("postgres.min_conns", 0)
	v.SetDefault("scraper.request.timeout_seconds", 10)
	v.SetDefault("scraper.request.max_retries", 3)
	v.SetDefault("scraper.request.retry_base_delay_ms", 500)
	v.SetDefault("scraper.request.user_agent", "newsgrid-harvester/0.1")
	v.SetDefault("scraper.headless.enabled", false)
	v.SetDefault("scraper.headless.nav_timeout_seconds", 30)
	v.SetDefault("scraper.headless.wait_timeout_seconds", 2)
	v.SetDefault("scraper.required_elements", []string{"title"})
	v.SetDefault("consumer.batch_size", 10)
	v.SetDefault("consumer.poll_interval_seconds", 5)
	v.SetDefault("consumer.max_articles", 0)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Scraper.Request.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.request.timeout_seconds must be > 0")
	}
	if c.Scraper.Request.MaxRetries <= 0 {
		return fmt.Errorf("scraper.request.max_retries must be > 0")
	}
	if c.Consumer.BatchSize <= 0 {
		return fmt.Errorf("consumer.batch_size must be > 0")
	}
	if c.Consumer.PollIntervalSeconds <= 0 {
		return fmt.Errorf("consumer.poll_interval_seconds must be > 0")
	}
	if c.Scraper.Headless.Enabled && c.Scraper.Headless.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.headless.nav_timeout_seconds must be > 0 when headless is enabled")
	}
	return nil
}

// RequestTimeout returns the static fetcher timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Scraper.Request.TimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the first backoff step as a duration.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Scraper.Request.RetryBaseDelayMs) * time.Millisecond
}

// NavTimeout returns the headless page-load budget as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Scraper.Headless.NavTimeoutSeconds) * time.Second
}

// WaitTimeout returns the time given to dynamic content after the DOM is
// ready.
func (c Config) WaitTimeout() time.Duration {
	return time.Duration(c.Scraper.Headless.WaitTimeoutSeconds) * time.Second
}

// PollInterval returns the idle sleep between empty batches.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Consumer.PollIntervalSeconds) * time.Second
}
