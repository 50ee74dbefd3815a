// Package redis mirrors recent price observations into Redis sorted sets,
// one set per source and symbol, scored by observation time.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"marketpulse/internal/core/domain"
)

const retention = 5 * time.Minute

// ObservationCache implements the cache port on top of a Redis client.
type ObservationCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewObservationCache(client *redis.Client, logger *slog.Logger) *ObservationCache {
	return &ObservationCache{client: client, logger: logger}
}

func key(source, symbol string) string {
	return fmt.Sprintf("obs:%s:%s", source, symbol)
}

// AddObservation appends one observation and trims everything past the
// retention window in the same round trip.
func (c *ObservationCache) AddObservation(ctx context.Context, source string, obs domain.PriceObservation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}

	k := key(source, obs.Symbol)
	score := float64(obs.ObservedAt.UnixMilli())
	cutoff := strconv.FormatInt(time.Now().Add(-retention).UnixMilli(), 10)

	pipe := c.client.Pipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: score, Member: data})
	pipe.ZRemRangeByScore(ctx, k, "-inf", cutoff)
	pipe.Expire(ctx, k, retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add observation %s: %w", k, err)
	}
	return nil
}

// LatestObservation returns the newest cached observation, nil when the set
// is empty or expired.
func (c *ObservationCache) LatestObservation(ctx context.Context, source, symbol string) (*domain.PriceObservation, error) {
	k := key(source, symbol)
	members, err := c.client.ZRevRangeWithScores(ctx, k, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("latest observation %s: %w", k, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	raw, ok := members[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("latest observation %s: unexpected member type", k)
	}

	var obs domain.PriceObservation
	if err := json.Unmarshal([]byte(raw), &obs); err != nil {
		return nil, fmt.Errorf("unmarshal observation %s: %w", k, err)
	}
	return &obs, nil
}

// PricesByPeriod returns the prices observed within the trailing period, in
// chronological order.
func (c *ObservationCache) PricesByPeriod(ctx context.Context, source, symbol string, period time.Duration) ([]float64, error) {
	k := key(source, symbol)
	min := strconv.FormatInt(time.Now().Add(-period).UnixMilli(), 10)

	members, err := c.client.ZRangeByScore(ctx, k, &redis.ZRangeBy{Min: min, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("prices by period %s: %w", k, err)
	}

	prices := make([]float64, 0, len(members))
	for _, raw := range members {
		var obs domain.PriceObservation
		if err := json.Unmarshal([]byte(raw), &obs); err != nil {
			c.logger.Warn("skipping corrupt cache entry", slog.String("key", k))
			continue
		}
		prices = append(prices, obs.Price)
	}
	return prices, nil
}

// Ping reports cache liveness for the health endpoint.
func (c *ObservationCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
