// Package service holds the application core: the single-active-source
// facade, the multi-source aggregator, quality monitoring and the cache and
// storage pipelines that tie the adapters together.
package service

import (
	"context"
	"log/slog"
	"sync"

	"marketpulse/internal/core/domain"
	"marketpulse/internal/core/port"
)

// UnifiedMarketData exposes one market-data surface over a registry of
// interchangeable sources. Exactly one source is active at a time; switching
// is a hard cutover with an optional fallback source when the requested one
// fails to connect.
type UnifiedMarketData struct {
	logger *slog.Logger

	mu         sync.RWMutex
	sources    map[string]port.MarketDataSource
	activeID   string
	fallbackID string
}

func NewUnifiedMarketData(sources []port.MarketDataSource, activeID, fallbackID string, logger *slog.Logger) *UnifiedMarketData {
	byID := make(map[string]port.MarketDataSource, len(sources))
	for _, s := range sources {
		byID[s.Name()] = s
	}
	// Both ids must resolve to registered sources; misconfigured names
	// settle on the first source rather than leaving a dangling active.
	if _, ok := byID[fallbackID]; !ok && len(sources) > 0 {
		fallbackID = sources[0].Name()
	}
	if _, ok := byID[activeID]; !ok {
		activeID = fallbackID
	}

	return &UnifiedMarketData{
		logger:     logger,
		sources:    byID,
		activeID:   activeID,
		fallbackID: fallbackID,
	}
}

// Connect brings up the active source, falling back when it refuses. The
// fallback source is expected to always connect (it is offline).
func (u *UnifiedMarketData) Connect(ctx context.Context) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.connectLocked(ctx, u.activeID)
}

func (u *UnifiedMarketData) connectLocked(ctx context.Context, id string) bool {
	src := u.sources[id]
	if src.Connect(ctx) {
		u.activeID = id
		return true
	}

	if id == u.fallbackID {
		return false
	}
	u.logger.Warn("source failed to connect, falling back",
		slog.String("requested", id),
		slog.String("fallback", u.fallbackID))
	return u.connectLocked(ctx, u.fallbackID)
}

func (u *UnifiedMarketData) Disconnect() {
	u.mu.RLock()
	src := u.sources[u.activeID]
	u.mu.RUnlock()
	src.Disconnect()
}

// SwitchDataSource cuts over to another source: disconnect the old, connect
// the new. Switching to the already-active source is a no-op success;
// subscribers on the old source are not carried over.
func (u *UnifiedMarketData) SwitchDataSource(ctx context.Context, id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	next, ok := u.sources[id]
	if !ok {
		u.logger.Warn("unknown data source requested", slog.String("source", id))
		return false
	}
	if id == u.activeID {
		return true
	}

	old := u.sources[u.activeID]
	old.Disconnect()

	u.logger.Info("switching data source",
		slog.String("from", u.activeID),
		slog.String("to", id))

	if next.Connect(ctx) {
		u.activeID = id
		return true
	}
	return u.connectLocked(ctx, u.fallbackID)
}

// ActiveSourceID names the currently active source.
func (u *UnifiedMarketData) ActiveSourceID() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.activeID
}

// HasSource reports whether the given id is registered.
func (u *UnifiedMarketData) HasSource(id string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.sources[id]
	return ok
}

func (u *UnifiedMarketData) active() port.MarketDataSource {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.sources[u.activeID]
}

func (u *UnifiedMarketData) IsConnected() bool { return u.active().IsConnected() }

func (u *UnifiedMarketData) PriceData() []domain.PriceObservation { return u.active().PriceData() }

func (u *UnifiedMarketData) TradingPairs() []domain.TradingPair { return u.active().TradingPairs() }

func (u *UnifiedMarketData) Subscribe(ch domain.Channel, fn port.StreamHandler) port.Subscription {
	return u.active().Subscribe(ch, fn)
}

func (u *UnifiedMarketData) Unsubscribe(ch domain.Channel, sub port.Subscription) {
	u.active().Unsubscribe(ch, sub)
}

func (u *UnifiedMarketData) HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	return u.active().HistoricalCandles(ctx, symbol, interval, limit)
}

func (u *UnifiedMarketData) OrderBook(ctx context.Context, symbol string, limit int) (*domain.OrderBookSnapshot, error) {
	return u.active().OrderBook(ctx, symbol, limit)
}

// ServiceStatus describes the active source for the HTTP surface.
func (u *UnifiedMarketData) ServiceStatus() domain.ServiceStatus {
	u.mu.RLock()
	id := u.activeID
	src := u.sources[id]
	u.mu.RUnlock()

	pairs := src.TradingPairs()
	symbols := make([]string, 0, len(pairs))
	for _, p := range pairs {
		symbols = append(symbols, p.Symbol)
	}

	return domain.ServiceStatus{
		DataSource:       id,
		Connected:        src.IsConnected(),
		SupportedSymbols: symbols,
		Features: domain.ServiceFeatures{
			RealTimeData:    true,
			OrderBookData:   true,
			CandlestickData: true,
		},
	}
}
