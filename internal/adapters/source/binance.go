package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"marketpulse/internal/core/domain"
)

var (
	defaultBinanceRESTEndpoints = []string{
		"https://fapi.binance.com/fapi/v1",
		"https://fapi.binancefuture.com/fapi/v1",
	}
	defaultBinanceWSEndpoints = []string{
		"wss://fstream.binance.com/ws",
	}
)

// binanceTicker is one element of GET /ticker/24hr. Binance encodes every
// numeric field as a string.
type binanceTicker struct {
	Symbol           string `json:"symbol"`
	LastPrice        string `json:"lastPrice"`
	PriceChange      string `json:"priceChange"`
	PriceChangePct   string `json:"priceChangePercent"`
	HighPrice        string `json:"highPrice"`
	LowPrice         string `json:"lowPrice"`
	Volume           string `json:"volume"`
}

// binanceDepth is GET /depth: [price, quantity] string pairs.
type binanceDepth struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

// binanceStreamEvent covers the two stream payloads we subscribe to,
// discriminated by the "e" field.
type binanceStreamEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`

	// 24hrTicker fields.
	LastPrice      string `json:"c"`
	PriceChange    string `json:"p"`
	PriceChangePct string `json:"P"`
	HighPrice      string `json:"h"`
	LowPrice       string `json:"l"`
	Volume         string `json:"v"`

	Kline *binanceKline `json:"k"`
}

type binanceKline struct {
	OpenTime int64  `json:"t"`
	Symbol   string `json:"s"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
}

type binanceSubscribe struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// BinanceSource serves real-time data over the Binance futures WebSocket
// stream, bootstrapped by a REST snapshot so the cache is warm before the
// first stream event lands. Order books and candles come straight from the
// REST API, never synthesized.
type BinanceSource struct {
	baseSource
	pairs         []domain.TradingPair
	restEndpoints []string
	wsEndpoints   []string
	client        *http.Client
	timeout       time.Duration
	reconnect     ReconnectPolicy
	logger        *slog.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBinanceSource(logger *slog.Logger) *BinanceSource {
	return &BinanceSource{
		baseSource:    newBaseSource("binance"),
		pairs:         defaultTradingPairs(),
		restEndpoints: defaultBinanceRESTEndpoints,
		wsEndpoints:   defaultBinanceWSEndpoints,
		client:        &http.Client{},
		timeout:       3 * time.Second,
		reconnect:     DefaultReconnectPolicy(),
		logger:        logger,
	}
}

func (s *BinanceSource) TradingPairs() []domain.TradingPair { return s.pairs }

// Connect bootstraps the price cache over REST, then starts the stream
// reader. A failed bootstrap returns false; a failed stream after a good
// bootstrap still returns true, the reader keeps reconnecting on its own.
func (s *BinanceSource) Connect(ctx context.Context) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		return true
	}

	if err := s.bootstrap(ctx); err != nil {
		s.logger.Error("binance bootstrap failed", slog.String("error", err.Error()))
		return false
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.runStream(runCtx)

	s.setConnected(true)
	s.logger.Info("binance source started", slog.Int("pairs", len(s.pairs)))
	return true
}

func (s *BinanceSource) Disconnect() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
		s.cancel = nil
	}
	s.setConnected(false)
}

// bootstrap fills the cache from GET /ticker/24hr.
func (s *BinanceSource) bootstrap(ctx context.Context) error {
	var tickers []binanceTicker
	urls := joinAll(s.restEndpoints, "/ticker/24hr")
	if err := fetchJSON(ctx, s.client, urls, s.timeout, &tickers); err != nil {
		return fmt.Errorf("ticker/24hr: %w", err)
	}

	now := time.Now()
	stored := 0
	for _, t := range tickers {
		if _, ok := pairBySymbol(t.Symbol); !ok {
			continue
		}
		if s.storePrice(domain.PriceObservation{
			Symbol:       t.Symbol,
			Price:        parseFloat(t.LastPrice),
			Change24h:    parseFloat(t.PriceChange),
			ChangePct24h: parseFloat(t.PriceChangePct),
			High24h:      parseFloat(t.HighPrice),
			Low24h:       parseFloat(t.LowPrice),
			Volume24h:    parseFloat(t.Volume),
			ObservedAt:   now,
		}) {
			stored++
		}
	}
	if stored == 0 {
		return fmt.Errorf("ticker/24hr: no supported symbols in response")
	}
	return nil
}

// runStream dials, subscribes and reads until the context ends, reconnecting
// within the policy budget. The attempt counter resets after every healthy
// session.
func (s *BinanceSource) runStream(ctx context.Context) {
	defer s.wg.Done()

	attempt := 0
	for {
		start := time.Now()
		err := s.streamSession(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > time.Minute {
			attempt = 0
		}

		attempt++
		delay, ok := s.reconnect.Delay(attempt)
		if !ok {
			s.logger.Error("binance stream gave up reconnecting",
				slog.Int("attempts", attempt-1),
				slog.String("error", errString(err)))
			s.setConnected(false)
			return
		}

		s.logger.Warn("binance stream lost, reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("in", delay),
			slog.String("error", errString(err)))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *BinanceSource) streamSession(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.wsEndpoints[0], nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 20)

	params := make([]string, 0, 2*len(s.pairs))
	for _, p := range s.pairs {
		lower := strings.ToLower(p.Symbol)
		params = append(params, lower+"@ticker", lower+"@kline_1m")
	}
	if err := wsjson.Write(ctx, conn, binanceSubscribe{Method: "SUBSCRIBE", Params: params, ID: 1}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-t.C:
				pctx, cancel := context.WithTimeout(pingCtx, 10*time.Second)
				err := conn.Ping(pctx)
				cancel()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		s.handleStreamMessage(data)
	}
}

func (s *BinanceSource) handleStreamMessage(data []byte) {
	var ev binanceStreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}

	switch ev.Event {
	case "24hrTicker":
		if _, ok := pairBySymbol(ev.Symbol); !ok {
			return
		}
		s.storePrice(domain.PriceObservation{
			Symbol:       ev.Symbol,
			Price:        parseFloat(ev.LastPrice),
			Change24h:    parseFloat(ev.PriceChange),
			ChangePct24h: parseFloat(ev.PriceChangePct),
			High24h:      parseFloat(ev.HighPrice),
			Low24h:       parseFloat(ev.LowPrice),
			Volume24h:    parseFloat(ev.Volume),
			ObservedAt:   time.Now(),
		})
	case "kline":
		if ev.Kline == nil {
			return
		}
		k := ev.Kline
		if _, ok := pairBySymbol(k.Symbol); !ok {
			return
		}
		s.publishCandle(k.Symbol, domain.Candle{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     parseFloat(k.Open),
			High:     parseFloat(k.High),
			Low:      parseFloat(k.Low),
			Close:    parseFloat(k.Close),
			Volume:   parseFloat(k.Volume),
		})
	}
}

// HistoricalCandles fetches GET /klines. Each kline is a mixed-type array:
// index 0 open time in ms, 1..5 o/h/l/c/v as strings.
func (s *BinanceSource) HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	if _, ok := pairBySymbol(symbol); !ok {
		return nil, fmt.Errorf("unsupported symbol %q", symbol)
	}

	var raw [][]any
	path := fmt.Sprintf("/klines?symbol=%s&interval=%s&limit=%d", symbol, interval, limit)
	if err := fetchJSON(ctx, s.client, joinAll(s.restEndpoints, path), s.timeout, &raw); err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		openTime, ok := k[0].(float64)
		if !ok {
			continue
		}
		candles = append(candles, domain.Candle{
			OpenTime: time.UnixMilli(int64(openTime)),
			Open:     parseFloat(anyString(k[1])),
			High:     parseFloat(anyString(k[2])),
			Low:      parseFloat(anyString(k[3])),
			Close:    parseFloat(anyString(k[4])),
			Volume:   parseFloat(anyString(k[5])),
		})
	}
	return candles, nil
}

func (s *BinanceSource) OrderBook(ctx context.Context, symbol string, limit int) (*domain.OrderBookSnapshot, error) {
	if _, ok := pairBySymbol(symbol); !ok {
		return nil, fmt.Errorf("unsupported symbol %q", symbol)
	}

	var depth binanceDepth
	path := fmt.Sprintf("/depth?symbol=%s&limit=%d", symbol, limit)
	if err := fetchJSON(ctx, s.client, joinAll(s.restEndpoints, path), s.timeout, &depth); err != nil {
		return nil, fmt.Errorf("depth %s: %w", symbol, err)
	}

	book := domain.OrderBookSnapshot{
		Symbol:     symbol,
		Bids:       parseLevels(depth.Bids),
		Asks:       parseLevels(depth.Asks),
		ObservedAt: time.Now(),
	}
	s.storeBook(book)
	return &book, nil
}

func parseLevels(raw [][2]string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, l := range raw {
		levels = append(levels, domain.PriceLevel{
			Price:    parseFloat(l[0]),
			Quantity: parseFloat(l[1]),
		})
	}
	return levels
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func anyString(v any) string {
	s, _ := v.(string)
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
