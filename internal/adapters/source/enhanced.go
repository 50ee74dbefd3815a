package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"marketpulse/internal/core/domain"
)

var defaultBinanceSpotEndpoints = []string{
	"https://api.binance.com/api/v3",
	"https://api1.binance.com/api/v3",
	"https://api2.binance.com/api/v3",
}

// EnhancedSource blends vendors for the most dependable snapshot on offer:
// Binance spot REST is the primary feed, CoinGecko the fallback when every
// Binance endpoint is down. Polling is tight because this source backs the
// highest-priority slot in aggregation.
type EnhancedSource struct {
	baseSource
	pairs              []domain.TradingPair
	binanceEndpoints   []string
	coingeckoEndpoints []string
	client             *http.Client
	pollEvery          time.Duration
	timeout            time.Duration
	logger             *slog.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEnhancedSource(logger *slog.Logger) *EnhancedSource {
	return &EnhancedSource{
		baseSource:         newBaseSource("enhanced"),
		pairs:              defaultTradingPairs(),
		binanceEndpoints:   defaultBinanceSpotEndpoints,
		coingeckoEndpoints: defaultCoinGeckoEndpoints,
		client:             &http.Client{},
		pollEvery:          5 * time.Second,
		timeout:            time.Second,
		logger:             logger,
	}
}

func (s *EnhancedSource) TradingPairs() []domain.TradingPair { return s.pairs }

func (s *EnhancedSource) Connect(ctx context.Context) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		return true
	}

	if err := s.poll(ctx); err != nil {
		s.logger.Error("enhanced bootstrap failed", slog.String("error", err.Error()))
		return false
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(runCtx)

	s.setConnected(true)
	s.logger.Info("enhanced source started", slog.Duration("poll_every", s.pollEvery))
	return true
}

func (s *EnhancedSource) Disconnect() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
		s.cancel = nil
	}
	s.setConnected(false)
}

func (s *EnhancedSource) run(ctx context.Context) {
	defer s.wg.Done()

	t := time.NewTicker(s.pollEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.poll(ctx); err != nil {
				s.logger.Warn("enhanced poll failed", slog.String("error", err.Error()))
			}
		}
	}
}

// poll takes the Binance spot snapshot, falling through to CoinGecko when
// every Binance endpoint fails.
func (s *EnhancedSource) poll(ctx context.Context) error {
	binanceErr := s.pollBinance(ctx)
	if binanceErr == nil {
		return nil
	}

	if cgErr := s.pollCoinGecko(ctx); cgErr != nil {
		return fmt.Errorf("binance: %w; coingecko: %w", binanceErr, cgErr)
	}
	s.logger.Warn("enhanced fell back to coingecko", slog.String("error", binanceErr.Error()))
	return nil
}

func (s *EnhancedSource) pollBinance(ctx context.Context) error {
	symbols := make([]string, 0, len(s.pairs))
	for _, p := range s.pairs {
		symbols = append(symbols, `"`+p.Symbol+`"`)
	}
	path := "/ticker/24hr?symbols=" + url.QueryEscape("["+strings.Join(symbols, ",")+"]")

	var tickers []binanceTicker
	if err := fetchJSON(ctx, s.client, joinAll(s.binanceEndpoints, path), s.timeout, &tickers); err != nil {
		return err
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
		return fmt.Errorf("no supported symbols in response")
	}
	return nil
}

func (s *EnhancedSource) pollCoinGecko(ctx context.Context) error {
	ids := make([]string, 0, len(defaultPairs))
	for _, p := range defaultPairs {
		ids = append(ids, p.CoinGeckoID)
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	q.Set("include_24hr_vol", "true")

	var tickers map[string]coingeckoTicker
	urls := joinAll(s.coingeckoEndpoints, "/simple/price?"+q.Encode())
	if err := fetchJSON(ctx, s.client, urls, s.timeout, &tickers); err != nil {
		return err
	}

	now := time.Now()
	for id, t := range tickers {
		symbol, ok := symbolByCoinGeckoID(id)
		if !ok {
			continue
		}
		s.storePrice(domain.PriceObservation{
			Symbol:        symbol,
			Price:         t.USD,
			Change24h:     t.USD * t.USD24hChange / 100,
			ChangePct24h:  t.USD24hChange,
			High24h:       t.USD * (1 + coingeckoHiLoMargin),
			Low24h:        t.USD * (1 - coingeckoHiLoMargin),
			Volume24h:     t.USD24hVol,
			ObservedAt:    now,
			EstimatedHiLo: true,
		})
	}
	return nil
}

// HistoricalCandles always comes from Binance spot klines; CoinGecko's
// chart resolution is too coarse to be worth falling back to here.
func (s *EnhancedSource) HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	if _, ok := pairBySymbol(symbol); !ok {
		return nil, fmt.Errorf("unsupported symbol %q", symbol)
	}

	var raw [][]any
	path := fmt.Sprintf("/klines?symbol=%s&interval=%s&limit=%d", symbol, interval, limit)
	if err := fetchJSON(ctx, s.client, joinAll(s.binanceEndpoints, path), s.timeout, &raw); err != nil {
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

func (s *EnhancedSource) OrderBook(ctx context.Context, symbol string, limit int) (*domain.OrderBookSnapshot, error) {
	if _, ok := pairBySymbol(symbol); !ok {
		return nil, fmt.Errorf("unsupported symbol %q", symbol)
	}

	var depth binanceDepth
	path := fmt.Sprintf("/depth?symbol=%s&limit=%d", symbol, limit)
	if err := fetchJSON(ctx, s.client, joinAll(s.binanceEndpoints, path), s.timeout, &depth); err != nil {
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
