package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Market.DataSource != "mock" {
		t.Fatalf("data source = %q, want mock", cfg.Market.DataSource)
	}
	if !cfg.Market.FallbackToMock {
		t.Fatal("fallback to mock not defaulted on")
	}
	if cfg.Market.UpdateInterval != time.Second {
		t.Fatalf("update interval = %v", cfg.Market.UpdateInterval)
	}
	if len(cfg.Market.WatchSymbols) != 3 {
		t.Fatalf("watch symbols = %v", cfg.Market.WatchSymbols)
	}
	if cfg.Market.PriceDeviationPct != 0.5 {
		t.Fatalf("price deviation pct = %f", cfg.Market.PriceDeviationPct)
	}
	if cfg.Market.MaxTimeDeviation != 30*time.Second {
		t.Fatalf("max time deviation = %v", cfg.Market.MaxTimeDeviation)
	}
	if cfg.Market.FreshnessFloor != time.Minute {
		t.Fatalf("freshness floor = %v", cfg.Market.FreshnessFloor)
	}
	if cfg.Market.QualityThreshold != 70 {
		t.Fatalf("quality threshold = %f", cfg.Market.QualityThreshold)
	}
	if cfg.Market.RedundancyLevel != 2 {
		t.Fatalf("redundancy level = %d", cfg.Market.RedundancyLevel)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("server port = %q", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "prod" {
		t.Fatalf("log level = %q", cfg.Server.LogLevel)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MARKET_DATA_SOURCE", "binance")
	t.Setenv("MARKET_WATCH_SYMBOLS", "BTCUSDT, SOLUSDT")
	t.Setenv("MARKET_UPDATE_INTERVAL", "250ms")
	t.Setenv("MARKET_MIRROR_WORKERS", "8")
	t.Setenv("MARKET_QUALITY_THRESHOLD", "95")
	t.Setenv("MARKET_PRICE_DEVIATION_PCT", "0.1")
	t.Setenv("MARKET_MAX_TIME_DEVIATION", "90s")
	t.Setenv("MARKET_REDUNDANCY_LEVEL", "3")
	t.Setenv("LOG_LVL", "dev")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Market.DataSource != "binance" {
		t.Fatalf("data source = %q", cfg.Market.DataSource)
	}
	if len(cfg.Market.WatchSymbols) != 2 || cfg.Market.WatchSymbols[1] != "SOLUSDT" {
		t.Fatalf("watch symbols = %v", cfg.Market.WatchSymbols)
	}
	if cfg.Market.UpdateInterval != 250*time.Millisecond {
		t.Fatalf("update interval = %v", cfg.Market.UpdateInterval)
	}
	if cfg.Market.MirrorWorkers != 8 {
		t.Fatalf("mirror workers = %d", cfg.Market.MirrorWorkers)
	}
	if cfg.Market.QualityThreshold != 95 {
		t.Fatalf("quality threshold = %f", cfg.Market.QualityThreshold)
	}
	if cfg.Market.PriceDeviationPct != 0.1 {
		t.Fatalf("price deviation pct = %f", cfg.Market.PriceDeviationPct)
	}
	if cfg.Market.MaxTimeDeviation != 90*time.Second {
		t.Fatalf("max time deviation = %v", cfg.Market.MaxTimeDeviation)
	}
	if cfg.Market.RedundancyLevel != 3 {
		t.Fatalf("redundancy level = %d", cfg.Market.RedundancyLevel)
	}
	if cfg.Server.LogLevel != "dev" {
		t.Fatalf("log level = %q", cfg.Server.LogLevel)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("market:\n  data_source: okx\nserver:\n  port: \"9090\"\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MARKET_DATA_SOURCE", "binance")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// the file wins over the environment
	if cfg.Market.DataSource != "okx" {
		t.Fatalf("data source = %q, want okx from the file", cfg.Market.DataSource)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("server port = %q, want 9090", cfg.Server.Port)
	}
	// untouched sections keep their env/default values
	if cfg.Redis.Port != "6379" {
		t.Fatalf("redis port = %q", cfg.Redis.Port)
	}
}

func TestLoadBadConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}
