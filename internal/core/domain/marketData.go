package domain

import "time"

// Channel names a stream an adapter publishes on.
type Channel string

const (
	ChannelPrice     Channel = "price"
	ChannelOrderBook Channel = "orderbook"
	ChannelCandle    Channel = "candle"
)

// TradingPair describes one instrument an adapter supports.
type TradingPair struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// PriceObservation is one symbol's latest market snapshot from one source.
// Symbols are exchange-neutral ("BTCUSDT"), regardless of the vendor's own
// instrument naming.
type PriceObservation struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change24h     float64   `json:"priceChange"`
	ChangePct24h  float64   `json:"priceChangePercent"`
	High24h       float64   `json:"high24h"`
	Low24h        float64   `json:"low24h"`
	Volume24h     float64   `json:"volume24h"`
	ObservedAt    time.Time `json:"observedAt"`
	EstimatedHiLo bool      `json:"estimatedHighLow,omitempty"` // high/low derived, not vendor-reported
}

// PriceLevel is one rung of an order-book ladder.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"amount"`
}

// OrderBookSnapshot holds bids (descending) and asks (ascending) by price.
// Synthetic marks ladders built locally from a last price rather than
// fetched from the venue.
type OrderBookSnapshot struct {
	Symbol     string       `json:"symbol"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	ObservedAt time.Time    `json:"timestamp"`
	Synthetic  bool         `json:"synthetic,omitempty"`
}

// Candle is one OHLCV bar. Synthetic marks bars whose open/high/low were
// estimated from a price-only series.
type Candle struct {
	OpenTime  time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// StreamEvent is what subscribers receive. Exactly one payload pointer is
// set, matching Channel.
type StreamEvent struct {
	Channel Channel
	Symbol  string
	Price   *PriceObservation
	Book    *OrderBookSnapshot
	Candle  *Candle
}
