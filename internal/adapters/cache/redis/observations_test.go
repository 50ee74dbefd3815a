package redis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"marketpulse/internal/core/domain"
)

// testCache connects to a local Redis, skipping when none is reachable.
func testCache(t *testing.T) *ObservationCache {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return NewObservationCache(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestObservationRoundTrip(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	source := fmt.Sprintf("test-%d", time.Now().UnixNano())

	now := time.Now()
	for i := 0; i < 3; i++ {
		obs := domain.PriceObservation{
			Symbol:     "BTCUSDT",
			Price:      104500 + float64(i),
			ObservedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := c.AddObservation(ctx, source, obs); err != nil {
			t.Fatalf("AddObservation: %v", err)
		}
	}

	latest, err := c.LatestObservation(ctx, source, "BTCUSDT")
	if err != nil {
		t.Fatalf("LatestObservation: %v", err)
	}
	if latest == nil {
		t.Fatal("latest is nil after writes")
	}
	if latest.Price != 104502 {
		t.Fatalf("latest price = %f, want 104502", latest.Price)
	}

	prices, err := c.PricesByPeriod(ctx, source, "BTCUSDT", time.Minute)
	if err != nil {
		t.Fatalf("PricesByPeriod: %v", err)
	}
	if len(prices) != 3 {
		t.Fatalf("got %d prices, want 3", len(prices))
	}
	if prices[0] != 104500 || prices[2] != 104502 {
		t.Fatalf("prices not chronological: %v", prices)
	}
}

func TestLatestObservationEmpty(t *testing.T) {
	c := testCache(t)

	latest, err := c.LatestObservation(context.Background(), "test-missing", "BTCUSDT")
	if err != nil {
		t.Fatalf("LatestObservation: %v", err)
	}
	if latest != nil {
		t.Fatalf("latest = %+v, want nil for an empty set", latest)
	}
}
