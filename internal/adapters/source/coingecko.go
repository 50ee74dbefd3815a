package source

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"marketpulse/internal/core/domain"
)

const (
	coingeckoPollEvery  = 30 * time.Second
	coingeckoMaxMisses  = 5
	coingeckoChartDays  = 30
	coingeckoHiLoMargin = 0.05
)

var defaultCoinGeckoEndpoints = []string{
	"https://api.coingecko.com/api/v3",
	"https://pro-api.coingecko.com/api/v3",
}

// coingeckoTicker is one entry of /simple/price with 24h extras enabled.
type coingeckoTicker struct {
	USD          float64 `json:"usd"`
	USD24hChange float64 `json:"usd_24h_change"`
	USD24hVol    float64 `json:"usd_24h_vol"`
}

// coingeckoChart is /coins/{id}/market_chart.
type coingeckoChart struct {
	Prices       [][2]float64 `json:"prices"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// CoinGeckoSource polls the public CoinGecko REST API. CoinGecko has no
// streaming feed, no order books and no OHLC at our granularity, so candles
// and books are synthesized from the polled price and flagged accordingly.
type CoinGeckoSource struct {
	baseSource
	pairs     []domain.TradingPair
	endpoints []string
	client    *http.Client
	pollEvery time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCoinGeckoSource(logger *slog.Logger) *CoinGeckoSource {
	return &CoinGeckoSource{
		baseSource: newBaseSource("coingecko"),
		pairs:      defaultTradingPairs(),
		endpoints:  defaultCoinGeckoEndpoints,
		client:     &http.Client{},
		pollEvery:  coingeckoPollEvery,
		timeout:    5 * time.Second,
		logger:     logger,
	}
}

func (s *CoinGeckoSource) TradingPairs() []domain.TradingPair { return s.pairs }

// Connect performs one synchronous poll so callers can tell a dead upstream
// apart from a slow one, then keeps polling in the background.
func (s *CoinGeckoSource) Connect(ctx context.Context) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		return true
	}

	if err := s.poll(ctx); err != nil {
		s.logger.Error("coingecko bootstrap failed", slog.String("error", err.Error()))
		return false
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(runCtx)

	s.setConnected(true)
	s.logger.Info("coingecko source started", slog.Duration("poll_every", s.pollEvery))
	return true
}

func (s *CoinGeckoSource) Disconnect() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
		s.cancel = nil
	}
	s.setConnected(false)
}

func (s *CoinGeckoSource) run(ctx context.Context) {
	defer s.wg.Done()

	t := time.NewTicker(s.pollEvery)
	defer t.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.poll(ctx); err != nil {
				misses++
				s.logger.Warn("coingecko poll failed",
					slog.Int("consecutive", misses),
					slog.String("error", err.Error()))
				if misses >= coingeckoMaxMisses {
					s.logger.Error("coingecko unreachable, stopping polling")
					s.setConnected(false)
					return
				}
				continue
			}
			misses = 0
		}
	}
}

func (s *CoinGeckoSource) poll(ctx context.Context) error {
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
	urls := joinAll(s.endpoints, "/simple/price?"+q.Encode())
	if err := fetchJSON(ctx, s.client, urls, s.timeout, &tickers); err != nil {
		return fmt.Errorf("simple/price: %w", err)
	}

	now := time.Now()
	for id, t := range tickers {
		symbol, ok := symbolByCoinGeckoID(id)
		if !ok {
			continue
		}
		// CoinGecko gives no 24h hi/lo on this endpoint; estimate a
		// band around the spot price and mark it estimated.
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

// HistoricalCandles fetches the market chart and reshapes the price series
// into bars. Chart resolution is whatever CoinGecko grants for the window,
// so the bars are approximations and flagged synthetic.
func (s *CoinGeckoSource) HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	pair, ok := pairBySymbol(symbol)
	if !ok {
		return nil, fmt.Errorf("unsupported symbol %q", symbol)
	}

	days := int(math.Ceil(float64(limit) * intervalDuration(interval).Hours() / 24))
	if days < 1 {
		days = 1
	}
	if days > coingeckoChartDays {
		days = coingeckoChartDays
	}

	var chart coingeckoChart
	path := fmt.Sprintf("/coins/%s/market_chart?vs_currency=usd&days=%d", pair.CoinGeckoID, days)
	if err := fetchJSON(ctx, s.client, joinAll(s.endpoints, path), s.timeout, &chart); err != nil {
		return nil, fmt.Errorf("market_chart %s: %w", symbol, err)
	}
	return candlesFromPricePoints(chart.Prices, chart.TotalVolumes, limit), nil
}

// OrderBook synthesizes depth around the last polled price. CoinGecko does
// not expose order books.
func (s *CoinGeckoSource) OrderBook(_ context.Context, symbol string, limit int) (*domain.OrderBookSnapshot, error) {
	obs, ok := s.cachedPrice(symbol)
	if !ok {
		return nil, fmt.Errorf("no price cached for %q", symbol)
	}
	book := synthesizeOrderBook(symbol, obs.Price, limit)
	if book != nil {
		s.storeBook(*book)
	}
	return book, nil
}
