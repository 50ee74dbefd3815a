// Package config assembles the shared process dependencies with functional
// options.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appcfg "marketpulse/config"
)

// Dependencies carries the process-wide backing services.
type Dependencies struct {
	Logger   *slog.Logger
	Postgres *pgxpool.Pool
	Redis    *redis.Client
}

type Option func(ctx context.Context, d *Dependencies) error

// NewLogger builds the process logger: text to stdout, debug level in dev,
// info otherwise. It also becomes the slog default.
func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	if level == "dev" {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func NewDependencies(ctx context.Context, opts ...Option) (*Dependencies, error) {
	d := &Dependencies{
		Logger: NewLogger(""),
	}
	for _, opt := range opts {
		if err := opt(ctx, d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dependencies) Close() {
	if d.Postgres != nil {
		d.Postgres.Close()
	}
	if d.Redis != nil {
		d.Redis.Close()
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(_ context.Context, d *Dependencies) error {
		d.Logger = logger
		return nil
	}
}

func WithPostgres(cfg appcfg.PostgresConfig) Option {
	return func(ctx context.Context, d *Dependencies) error {
		pool, err := pgxpool.New(ctx, cfg.DSN())
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("postgres ping: %w", err)
		}
		d.Postgres = pool
		return nil
	}
}

func WithRedis(cfg appcfg.RedisConfig) Option {
	return func(ctx context.Context, d *Dependencies) error {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("redis ping: %w", err)
		}
		d.Redis = client
		return nil
	}
}
