package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketpulse/internal/adapters/source"
	"marketpulse/internal/core/domain"
	"marketpulse/internal/core/port"
)

type memoryCache struct {
	mu     sync.Mutex
	writes int
}

func (c *memoryCache) AddObservation(context.Context, string, domain.PriceObservation) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) LatestObservation(context.Context, string, string) (*domain.PriceObservation, error) {
	return nil, nil
}

func (c *memoryCache) PricesByPeriod(context.Context, string, string, time.Duration) ([]float64, error) {
	return nil, nil
}

func (c *memoryCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func TestMirrorWritesObservations(t *testing.T) {
	cache := &memoryCache{}
	mock := source.NewMockSource(5*time.Millisecond, testLogger())

	m := NewMirror(cache, 2, testLogger())
	m.Start([]port.MarketDataSource{mock})
	defer m.Stop()

	mock.Connect(context.Background())
	defer mock.Disconnect()

	deadline := time.After(2 * time.Second)
	for cache.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no observations mirrored within 2s")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMirrorStopUnsubscribes(t *testing.T) {
	cache := &memoryCache{}
	mock := source.NewMockSource(5*time.Millisecond, testLogger())

	m := NewMirror(cache, 2, testLogger())
	m.Start([]port.MarketDataSource{mock})
	m.Stop()
	m.Stop() // idempotent

	mock.Connect(context.Background())
	defer mock.Disconnect()

	time.Sleep(50 * time.Millisecond)
	if n := cache.count(); n != 0 {
		t.Fatalf("%d writes after Stop, want 0", n)
	}
}
