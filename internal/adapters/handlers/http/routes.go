package http

import (
	"net/http"

	"marketpulse/internal/adapters/handlers/http/handler"
)

// NewRouter wires the endpoints onto a mux.
func NewRouter(h *handler.MarketHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /status", h.Status)

	mux.HandleFunc("GET /prices", h.Prices)
	mux.HandleFunc("GET /prices/{symbol}", h.PriceBySymbol)
	mux.HandleFunc("GET /prices/{symbol}/aggregated", h.AggregatedPrice)
	mux.HandleFunc("GET /candles/{symbol}", h.Candles)
	mux.HandleFunc("GET /orderbook/{symbol}", h.OrderBook)

	mux.HandleFunc("GET /sources", h.Sources)
	mux.HandleFunc("POST /sources/{id}/switch", h.SwitchSource)
	mux.HandleFunc("POST /sources/{name}/enable", h.EnableSource)
	mux.HandleFunc("POST /sources/{name}/disable", h.DisableSource)

	return mux
}
