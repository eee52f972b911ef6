package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("backend = %s", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL.Ticker.Std() != 30*time.Second {
		t.Fatalf("ticker ttl = %v", cfg.Cache.TTL.Ticker.Std())
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: marketgrid
server:
  port: 9090
cache:
  backend: redis
  upstream_timeout: 20s
  ttl:
    ticker: 10s
redis:
  addr: redis:6379
sources:
  kraken:
    enabled: false
  okx:
    rate_limit_per_minute: 120
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Cache.UpstreamTimeout.Std() != 20*time.Second {
		t.Fatalf("upstream timeout = %v", cfg.Cache.UpstreamTimeout.Std())
	}
	if cfg.Cache.TTL.Ticker.Std() != 10*time.Second {
		t.Fatalf("ticker ttl = %v", cfg.Cache.TTL.Ticker.Std())
	}
	// Unset TTLs keep their defaults.
	if cfg.Cache.TTL.Candles.Std() != 24*time.Hour {
		t.Fatalf("candles ttl = %v", cfg.Cache.TTL.Candles.Std())
	}
	if cfg.SourceEnabled("kraken") {
		t.Fatal("kraken should be disabled")
	}
	if !cfg.SourceEnabled("binance") {
		t.Fatal("binance should default to enabled")
	}
	if src, ok := cfg.SourceOverride("okx"); !ok || src.RateLimitPerMinute != 120 {
		t.Fatalf("okx override = %+v, %v", src, ok)
	}
}

func TestLoadRejectsBadBackend(t *testing.T) {
	path := writeConfig(t, `
app:
  name: marketgrid
cache:
  backend: memcached
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
cache:
  upstream_timeout: soon
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
