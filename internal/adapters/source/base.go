package source

import (
	"sync"
	"time"

	"marketpulse/internal/core/domain"
	"marketpulse/internal/core/port"
)

// baseSource carries the state every adapter shares: the observation cache
// (owned exclusively by the adapter's own refresh code), the subscriber hub
// and the connected flag. Embedding it keeps each adapter down to its
// vendor-specific transport.
type baseSource struct {
	name string
	hub  *hub

	mu        sync.RWMutex
	connected bool
	prices    map[string]domain.PriceObservation
	books     map[string]domain.OrderBookSnapshot
}

func newBaseSource(name string) baseSource {
	return baseSource{
		name:   name,
		hub:    newHub(),
		prices: make(map[string]domain.PriceObservation),
		books:  make(map[string]domain.OrderBookSnapshot),
	}
}

func (b *baseSource) Name() string { return b.name }

func (b *baseSource) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *baseSource) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

func (b *baseSource) Subscribe(ch domain.Channel, fn port.StreamHandler) port.Subscription {
	return b.hub.subscribe(ch, fn)
}

func (b *baseSource) Unsubscribe(ch domain.Channel, sub port.Subscription) {
	b.hub.unsubscribe(ch, sub)
}

// PriceData returns a copy of the current cache snapshot. Never blocks on
// the network.
func (b *baseSource) PriceData() []domain.PriceObservation {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.PriceObservation, 0, len(b.prices))
	for _, obs := range b.prices {
		out = append(out, obs)
	}
	return out
}

func (b *baseSource) cachedPrice(symbol string) (domain.PriceObservation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obs, ok := b.prices[symbol]
	return obs, ok
}

// storePrice caches and publishes one observation. Non-positive prices are
// discarded, never cached.
func (b *baseSource) storePrice(obs domain.PriceObservation) bool {
	if obs.Price <= 0 {
		return false
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now()
	}

	b.mu.Lock()
	b.prices[obs.Symbol] = obs
	b.mu.Unlock()

	b.hub.publish(domain.StreamEvent{
		Channel: domain.ChannelPrice,
		Symbol:  obs.Symbol,
		Price:   &obs,
	})
	return true
}

func (b *baseSource) storeBook(book domain.OrderBookSnapshot) {
	b.mu.Lock()
	b.books[book.Symbol] = book
	b.mu.Unlock()

	b.hub.publish(domain.StreamEvent{
		Channel: domain.ChannelOrderBook,
		Symbol:  book.Symbol,
		Book:    &book,
	})
}

func (b *baseSource) cachedBook(symbol string) (domain.OrderBookSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	book, ok := b.books[symbol]
	return book, ok
}

func (b *baseSource) publishCandle(symbol string, c domain.Candle) {
	b.hub.publish(domain.StreamEvent{
		Channel: domain.ChannelCandle,
		Symbol:  symbol,
		Candle:  &c,
	})
}
