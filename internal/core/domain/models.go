package domain

import "time"

// SourceStatus reports one registered source as seen by the aggregator.
type SourceStatus struct {
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	Priority  int    `json:"priority"`
}

// ServiceFeatures flags the capabilities of the active source.
type ServiceFeatures struct {
	RealTimeData    bool `json:"realTimeData"`
	OrderBookData   bool `json:"orderBookData"`
	CandlestickData bool `json:"candlestickData"`
}

// ServiceStatus describes the facade: which source is active and what it
// can do right now.
type ServiceStatus struct {
	DataSource       string          `json:"dataSource"`
	Connected        bool            `json:"isConnected"`
	SupportedSymbols []string        `json:"supportedSymbols"`
	Features         ServiceFeatures `json:"features"`
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	Connected bool      `json:"connected"`
	Redis     string    `json:"redis,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
