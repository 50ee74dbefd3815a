package port

import (
	"context"
	"time"

	"marketpulse/internal/core/domain"
)

// Subscription identifies one registered stream callback. Go functions are
// not comparable, so Unsubscribe takes the token Subscribe returned instead
// of the callback itself.
type Subscription int

// StreamHandler receives push updates for a subscribed channel.
type StreamHandler func(domain.StreamEvent)

// MarketDataSource is the contract every upstream adapter implements.
//
// Connect is idempotent: connecting while connected is a no-op returning
// true. Ordinary upstream failures resolve to false / empty results, never
// panics. Disconnect is safe on a never-connected adapter.
type MarketDataSource interface {
	Name() string
	Connect(ctx context.Context) bool
	Disconnect()
	Subscribe(ch domain.Channel, fn StreamHandler) Subscription
	Unsubscribe(ch domain.Channel, sub Subscription)
	// PriceData is a synchronous read of the cache snapshot; it never
	// touches the network.
	PriceData() []domain.PriceObservation
	TradingPairs() []domain.TradingPair
	IsConnected() bool
	HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
	OrderBook(ctx context.Context, symbol string, limit int) (*domain.OrderBookSnapshot, error)
}

// CachePort mirrors per-source observations into a shared cache so other
// processes (and the HTTP layer) can read recent history.
type CachePort interface {
	AddObservation(ctx context.Context, source string, obs domain.PriceObservation) error
	LatestObservation(ctx context.Context, source, symbol string) (*domain.PriceObservation, error)
	PricesByPeriod(ctx context.Context, source, symbol string, period time.Duration) ([]float64, error)
}

// RepositoryPort persists aggregated readings for later charting.
type RepositoryPort interface {
	SaveReading(ctx context.Context, r domain.AggregatedReading) error
	ReadingsByPeriod(ctx context.Context, symbol string, period time.Duration) ([]domain.AggregatedReading, error)
	LatestReading(ctx context.Context, symbol string) (domain.AggregatedReading, error)
}
