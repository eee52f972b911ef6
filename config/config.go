// Package config loads the application configuration from a yaml file,
// applies environment overrides and validates the result before anything
// starts.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from yaml strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	App     AppConfig               `yaml:"app"`
	Server  ServerConfig            `yaml:"server"`
	Client  ClientConfig            `yaml:"client"`
	Cache   CacheConfig             `yaml:"cache"`
	Redis   RedisConfig             `yaml:"redis"`
	Metrics MetricsConfig           `yaml:"metrics"`
	Logging LoggingConfig           `yaml:"logging"`
	Sources map[string]SourceConfig `yaml:"sources"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	CORSOrigins  []string `yaml:"cors_origins"`
}

// ClientConfig shapes the shared upstream HTTP client.
type ClientConfig struct {
	Timeout  Duration `yaml:"timeout"`
	ProxyURL string   `yaml:"proxy_url"`
}

type CacheConfig struct {
	// Backend selects the store: memory (default) or redis.
	Backend string `yaml:"backend"`
	// UpstreamTimeout bounds one coalesced fetch.
	UpstreamTimeout Duration `yaml:"upstream_timeout"`
	// LimiterWait bounds how long a request may queue for a rate-limit
	// token before failing as rate_limited.
	LimiterWait Duration  `yaml:"limiter_wait"`
	TTL         TTLConfig `yaml:"ttl"`
}

type TTLConfig struct {
	Candles        Duration `yaml:"candles"`
	Ticker         Duration `yaml:"ticker"`
	FundingRate    Duration `yaml:"funding_rate"`
	FundingHistory Duration `yaml:"funding_history"`
	Basis          Duration `yaml:"basis"`
	BasisHistory   Duration `yaml:"basis_history"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type MetricsConfig struct {
	CloudWatch     bool     `yaml:"cloudwatch"`
	Region         string   `yaml:"region"`
	Namespace      string   `yaml:"namespace"`
	ReportInterval Duration `yaml:"report_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// SourceConfig overrides one adapter's wiring. Keys in the sources map are
// source names (okx, binance, ...).
type SourceConfig struct {
	Enabled            *bool  `yaml:"enabled"`
	BaseURL            string `yaml:"base_url"`
	FuturesURL         string `yaml:"futures_url"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "marketgrid", Environment: "development"},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
		},
		Client: ClientConfig{Timeout: Duration(10 * time.Second)},
		Cache: CacheConfig{
			Backend:         "memory",
			UpstreamTimeout: Duration(15 * time.Second),
			LimiterWait:     Duration(2 * time.Second),
			TTL: TTLConfig{
				Candles:        Duration(24 * time.Hour),
				Ticker:         Duration(30 * time.Second),
				FundingRate:    Duration(time.Hour),
				FundingHistory: Duration(24 * time.Hour),
				Basis:          Duration(30 * time.Minute),
				BasisHistory:   Duration(time.Hour),
			},
		},
		Redis:   RedisConfig{Addr: "localhost:6379", KeyPrefix: "marketgrid"},
		Metrics: MetricsConfig{Namespace: "MarketGrid", ReportInterval: Duration(time.Minute)},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout", MaxAge: 7},
	}
}

// Load reads, overlays and validates the configuration at path. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Redis credentials come from the environment when present.
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = strings.TrimSpace(v)
	}
	if v := os.Getenv("HTTP_PROXY_URL"); v != "" {
		cfg.Client.ProxyURL = strings.TrimSpace(v)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}
	switch cfg.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "redis" && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when cache.backend is redis")
	}
	if cfg.Cache.UpstreamTimeout <= 0 {
		return fmt.Errorf("cache.upstream_timeout must be greater than 0")
	}
	if cfg.Cache.TTL.Ticker <= 0 || cfg.Cache.TTL.Candles <= 0 {
		return fmt.Errorf("cache.ttl values must be greater than 0")
	}
	for name, src := range cfg.Sources {
		if src.RateLimitPerMinute < 0 {
			return fmt.Errorf("sources.%s.rate_limit_per_minute must not be negative", name)
		}
	}
	return nil
}

// SourceOverride returns the override block for a source, if any.
func (c *Config) SourceOverride(name string) (SourceConfig, bool) {
	src, ok := c.Sources[name]
	return src, ok
}

// SourceEnabled reports whether a source should be registered. Sources are
// enabled unless explicitly disabled.
func (c *Config) SourceEnabled(name string) bool {
	if src, ok := c.Sources[name]; ok && src.Enabled != nil {
		return *src.Enabled
	}
	return true
}
