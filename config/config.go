// Package config loads settings from the environment, optionally overlaid
// by a YAML file named in CONFIG_FILE.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", p.User, p.Password, p.Host, p.Port, p.Database)
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type ServerConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_lvl"` // dev or prod
}

type MarketConfig struct {
	// DataSource is the id active at boot: mock, coingecko, binance,
	// okx or enhanced.
	DataSource     string        `yaml:"data_source"`
	FallbackToMock bool          `yaml:"fallback_to_mock"`
	UpdateInterval time.Duration `yaml:"update_interval"`

	// Aggregation tuning.
	PriceDeviationPct float64       `yaml:"price_deviation_pct"`
	MaxTimeDeviation  time.Duration `yaml:"max_time_deviation"`
	FreshnessFloor    time.Duration `yaml:"freshness_floor"`
	QualityThreshold  float64       `yaml:"quality_threshold"`
	RedundancyLevel   int           `yaml:"redundancy_level"`

	QualityInterval  time.Duration `yaml:"quality_interval"`
	WatchSymbols     []string      `yaml:"watch_symbols"`
	RecorderSchedule string        `yaml:"recorder_schedule"`
	MirrorWorkers    int           `yaml:"mirror_workers"`
}

type Config struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Server   ServerConfig   `yaml:"server"`
	Market   MarketConfig   `yaml:"market"`
}

// Load reads the environment, then overlays the YAML file named in
// CONFIG_FILE when set. The file wins over the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     getEnv("POSTGRES_USER", "marketpulse"),
			Password: getEnv("POSTGRES_PASSWORD", "marketpulse"),
			Database: getEnv("POSTGRES_DB", "marketpulse"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Server: ServerConfig{
			Port:     getEnv("SERVER_PORT", "8080"),
			LogLevel: getEnv("LOG_LVL", "prod"),
		},
		Market: MarketConfig{
			DataSource:        getEnv("MARKET_DATA_SOURCE", "mock"),
			FallbackToMock:    getEnvBool("MARKET_FALLBACK_TO_MOCK", true),
			UpdateInterval:    getEnvDuration("MARKET_UPDATE_INTERVAL", time.Second),
			PriceDeviationPct: getEnvFloat("MARKET_PRICE_DEVIATION_PCT", 0.5),
			MaxTimeDeviation:  getEnvDuration("MARKET_MAX_TIME_DEVIATION", 30*time.Second),
			FreshnessFloor:    getEnvDuration("MARKET_FRESHNESS_FLOOR", 60*time.Second),
			QualityThreshold:  getEnvFloat("MARKET_QUALITY_THRESHOLD", 70),
			RedundancyLevel:   getEnvInt("MARKET_REDUNDANCY_LEVEL", 2),
			QualityInterval:   getEnvDuration("MARKET_QUALITY_INTERVAL", 10*time.Second),
			WatchSymbols:      getEnvList("MARKET_WATCH_SYMBOLS", []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"}),
			RecorderSchedule:  getEnv("MARKET_RECORDER_SCHEDULE", "@every 1m"),
			MirrorWorkers:     getEnvInt("MARKET_MIRROR_WORKERS", 4),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
