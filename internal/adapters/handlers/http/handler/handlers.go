// Package handler implements the HTTP endpoints over the market data facade
// and the aggregator.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"marketpulse/internal/core/domain"
	"marketpulse/internal/core/service"
	"marketpulse/pkg/jsonresponse"
)

// Pinger reports cache liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type MarketHandler struct {
	facade *service.UnifiedMarketData
	agg    *service.SmartAggregator
	cache  Pinger
	logger *slog.Logger
}

func NewMarketHandler(facade *service.UnifiedMarketData, agg *service.SmartAggregator, cache Pinger, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{facade: facade, agg: agg, cache: cache, logger: logger}
}

func (h *MarketHandler) Health(w http.ResponseWriter, r *http.Request) {
	redisStatus := ""
	if h.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if h.cache.Ping(ctx) == nil {
			redisStatus = "up"
		} else {
			redisStatus = "down"
		}
		cancel()
	}

	status := "ok"
	if !h.facade.IsConnected() {
		status = "degraded"
	}

	jsonresponse.WriteResponse(w, http.StatusOK, domain.HealthResponse{
		Status:    status,
		Source:    h.facade.ActiveSourceID(),
		Connected: h.facade.IsConnected(),
		Redis:     redisStatus,
		Timestamp: time.Now(),
	}, h.logger)
}

func (h *MarketHandler) Status(w http.ResponseWriter, _ *http.Request) {
	jsonresponse.WriteResponse(w, http.StatusOK, h.facade.ServiceStatus(), h.logger)
}

// Prices returns the full snapshot of the active source.
func (h *MarketHandler) Prices(w http.ResponseWriter, _ *http.Request) {
	jsonresponse.WriteResponse(w, http.StatusOK, h.facade.PriceData(), h.logger)
}

func (h *MarketHandler) PriceBySymbol(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	for _, obs := range h.facade.PriceData() {
		if obs.Symbol == symbol {
			jsonresponse.WriteResponse(w, http.StatusOK, obs, h.logger)
			return
		}
	}
	jsonresponse.WriteError(w, http.StatusNotFound, "no data for symbol "+symbol, h.logger)
}

// AggregatedPrice serves the cross-source reading for one symbol.
func (h *MarketHandler) AggregatedPrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	reading := h.agg.GetAggregatedPriceData(symbol)
	if reading == nil {
		jsonresponse.WriteError(w, http.StatusNotFound, "no data for symbol "+symbol, h.logger)
		return
	}
	jsonresponse.WriteResponse(w, http.StatusOK, reading, h.logger)
}

func (h *MarketHandler) Candles(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1h"
	}
	limit := queryInt(r, "limit", 100)

	candles, err := h.facade.HistoricalCandles(r.Context(), symbol, interval, limit)
	if err != nil {
		jsonresponse.WriteError(w, http.StatusBadGateway, err.Error(), h.logger)
		return
	}
	jsonresponse.WriteResponse(w, http.StatusOK, candles, h.logger)
}

func (h *MarketHandler) OrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	limit := queryInt(r, "limit", 20)

	book, err := h.facade.OrderBook(r.Context(), symbol, limit)
	if err != nil {
		jsonresponse.WriteError(w, http.StatusBadGateway, err.Error(), h.logger)
		return
	}
	jsonresponse.WriteResponse(w, http.StatusOK, book, h.logger)
}

// Sources lists every aggregation source with its state.
func (h *MarketHandler) Sources(w http.ResponseWriter, _ *http.Request) {
	jsonresponse.WriteResponse(w, http.StatusOK, h.agg.SourceStatus(), h.logger)
}

// SwitchSource cuts the facade over to the named source.
func (h *MarketHandler) SwitchSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.facade.HasSource(id) {
		jsonresponse.WriteError(w, http.StatusNotFound, "unknown source "+id, h.logger)
		return
	}
	if !h.facade.SwitchDataSource(r.Context(), id) {
		jsonresponse.WriteError(w, http.StatusBadGateway, "failed to switch to "+id, h.logger)
		return
	}
	jsonresponse.WriteResponse(w, http.StatusOK, map[string]string{"active": h.facade.ActiveSourceID()}, h.logger)
}

func (h *MarketHandler) EnableSource(w http.ResponseWriter, r *http.Request) {
	h.toggleSource(w, r, true)
}

func (h *MarketHandler) DisableSource(w http.ResponseWriter, r *http.Request) {
	h.toggleSource(w, r, false)
}

func (h *MarketHandler) toggleSource(w http.ResponseWriter, r *http.Request, enabled bool) {
	name := r.PathValue("name")
	if err := h.agg.SetSourceEnabled(name, enabled); err != nil {
		jsonresponse.WriteError(w, http.StatusNotFound, err.Error(), h.logger)
		return
	}
	jsonresponse.WriteResponse(w, http.StatusOK, map[string]any{"source": name, "enabled": enabled}, h.logger)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
