package source

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"marketpulse/internal/core/domain"
)

// seed prices for the offline generator, one per supported pair.
var mockSeeds = map[string]domain.PriceObservation{
	"BTCUSDT":  {Symbol: "BTCUSDT", Price: 104500, Change24h: 2500, ChangePct24h: 2.45, High24h: 105200, Low24h: 101800, Volume24h: 28500000},
	"ETHUSDT":  {Symbol: "ETHUSDT", Price: 3850, Change24h: -120, ChangePct24h: -3.02, High24h: 3980, Low24h: 3780, Volume24h: 15600000},
	"BNBUSDT":  {Symbol: "BNBUSDT", Price: 695, Change24h: 15, ChangePct24h: 2.21, High24h: 708, Low24h: 668, Volume24h: 1200000},
	"ADAUSDT":  {Symbol: "ADAUSDT", Price: 1.25, Change24h: 0.08, ChangePct24h: 6.84, High24h: 1.28, Low24h: 1.15, Volume24h: 890000},
	"SOLUSDT":  {Symbol: "SOLUSDT", Price: 245, Change24h: -8, ChangePct24h: -3.16, High24h: 258, Low24h: 240, Volume24h: 2100000},
	"XRPUSDT":  {Symbol: "XRPUSDT", Price: 3.15, Change24h: 0.25, ChangePct24h: 8.62, High24h: 3.22, Low24h: 2.88, Volume24h: 4500000},
	"DOTUSDT":  {Symbol: "DOTUSDT", Price: 8.95, Change24h: -0.35, ChangePct24h: -3.76, High24h: 9.45, Low24h: 8.75, Volume24h: 560000},
	"DOGEUSDT": {Symbol: "DOGEUSDT", Price: 0.385, Change24h: 0.015, ChangePct24h: 4.05, High24h: 0.398, Low24h: 0.365, Volume24h: 1800000},
	"AVAXUSDT": {Symbol: "AVAXUSDT", Price: 45.2, Change24h: -1.8, ChangePct24h: -3.83, High24h: 47.5, Low24h: 44.1, Volume24h: 780000},
	"LINKUSDT": {Symbol: "LINKUSDT", Price: 24.8, Change24h: 1.2, ChangePct24h: 5.08, High24h: 25.1, Low24h: 23.2, Volume24h: 650000},
}

// MockSource generates a seeded random walk entirely offline. Prices tick
// every update interval, order books every two intervals, candles every five.
type MockSource struct {
	baseSource
	pairs       []domain.TradingPair
	updateEvery time.Duration
	logger      *slog.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMockSource(updateEvery time.Duration, logger *slog.Logger) *MockSource {
	if updateEvery <= 0 {
		updateEvery = time.Second
	}

	s := &MockSource{
		baseSource:  newBaseSource("mock"),
		pairs:       defaultTradingPairs(),
		updateEvery: updateEvery,
		logger:      logger,
	}
	now := time.Now()
	for symbol, obs := range mockSeeds {
		obs.ObservedAt = now
		s.prices[symbol] = obs
	}
	return s
}

func (s *MockSource) TradingPairs() []domain.TradingPair { return s.pairs }

// Connect starts the generator loops. Calling it while connected is a
// no-op returning true; no second set of tickers is created.
func (s *MockSource) Connect(_ context.Context) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(3)
	go s.runLoop(ctx, s.updateEvery, s.tickPrices)
	go s.runLoop(ctx, 2*s.updateEvery, s.tickOrderBooks)
	go s.runLoop(ctx, 5*s.updateEvery, s.tickCandles)

	s.setConnected(true)
	s.logger.Info("mock source started", slog.Duration("update_every", s.updateEvery))
	return true
}

func (s *MockSource) Disconnect() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
		s.cancel = nil
	}
	s.setConnected(false)
}

func (s *MockSource) runLoop(ctx context.Context, every time.Duration, tick func()) {
	defer s.wg.Done()

	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tick()
		}
	}
}

// tickPrices nudges every symbol by up to ±0.5%.
func (s *MockSource) tickPrices() {
	now := time.Now()
	for _, pair := range s.pairs {
		obs, ok := s.cachedPrice(pair.Symbol)
		if !ok {
			continue
		}

		changePct := (rand.Float64() - 0.5) * 0.01
		newPrice := obs.Price * (1 + changePct)

		obs.Change24h = newPrice - obs.Price
		obs.ChangePct24h = changePct * 100
		obs.Price = newPrice
		if newPrice > obs.High24h {
			obs.High24h = newPrice
		}
		if newPrice < obs.Low24h {
			obs.Low24h = newPrice
		}
		obs.ObservedAt = now
		s.storePrice(obs)
	}
}

func (s *MockSource) tickOrderBooks() {
	for _, pair := range s.pairs {
		obs, ok := s.cachedPrice(pair.Symbol)
		if !ok {
			continue
		}
		if book := synthesizeOrderBook(pair.Symbol, obs.Price, 10); book != nil {
			s.storeBook(*book)
		}
	}
}

func (s *MockSource) tickCandles() {
	now := time.Now()
	for _, pair := range s.pairs {
		obs, ok := s.cachedPrice(pair.Symbol)
		if !ok {
			continue
		}
		open := obs.Price * (0.998 + rand.Float64()*0.004)
		s.publishCandle(pair.Symbol, domain.Candle{
			OpenTime:  now,
			Open:      open,
			High:      maxFloat(open, obs.Price) * (1 + rand.Float64()*0.003),
			Low:       minFloat(open, obs.Price) * (1 - rand.Float64()*0.002),
			Close:     obs.Price,
			Volume:    rand.Float64() * 1000,
			Synthetic: true,
		})
	}
}

func (s *MockSource) HistoricalCandles(_ context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	obs, ok := s.cachedPrice(symbol)
	if !ok {
		return nil, fmt.Errorf("unsupported symbol %q", symbol)
	}
	return synthesizeCandles(obs.Price, interval, limit), nil
}

func (s *MockSource) OrderBook(_ context.Context, symbol string, limit int) (*domain.OrderBookSnapshot, error) {
	obs, ok := s.cachedPrice(symbol)
	if !ok {
		return nil, fmt.Errorf("unsupported symbol %q", symbol)
	}
	book := synthesizeOrderBook(symbol, obs.Price, limit)
	if book != nil {
		s.storeBook(*book)
	}
	return book, nil
}
