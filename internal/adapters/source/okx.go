package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"marketpulse/internal/core/domain"
)

var (
	defaultOKXRESTEndpoints = []string{
		"https://www.okx.com/api/v5",
		"https://aws.okx.com/api/v5",
	}
	defaultOKXWSEndpoints = []string{
		"wss://ws.okx.com:8443/ws/v5/public",
	}
)

// okxEnvelope wraps every OKX REST response; code "0" means success and the
// payload sits under data.
type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type okxTicker struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	Open24h string `json:"open24h"`
	High24h string `json:"high24h"`
	Low24h  string `json:"low24h"`
	Vol24h  string `json:"vol24h"`
}

type okxBook struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
	TS   string     `json:"ts"`
}

type okxSubscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxSubscribe struct {
	Op   string            `json:"op"`
	Args []okxSubscribeArg `json:"args"`
}

type okxStreamMessage struct {
	Event string          `json:"event"`
	Arg   okxSubscribeArg `json:"arg"`
	Data  []okxTicker     `json:"data"`
}

// okxIntervals maps our interval strings to OKX bar names; hours and days
// are uppercase there.
var okxIntervals = map[string]string{
	"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1H", "4h": "4H", "1d": "1D",
}

// OKXSource streams tickers over the OKX public WebSocket, bootstrapped by
// REST. OKX instrument ids are dash-separated (BTC-USDT); everything stored
// or published uses the neutral symbol form so readings line up across
// sources.
type OKXSource struct {
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

func NewOKXSource(logger *slog.Logger) *OKXSource {
	return &OKXSource{
		baseSource:    newBaseSource("okx"),
		pairs:         defaultTradingPairs(),
		restEndpoints: defaultOKXRESTEndpoints,
		wsEndpoints:   defaultOKXWSEndpoints,
		client:        &http.Client{},
		timeout:       4 * time.Second,
		reconnect:     DefaultReconnectPolicy(),
		logger:        logger,
	}
}

func (s *OKXSource) TradingPairs() []domain.TradingPair { return s.pairs }

func (s *OKXSource) Connect(ctx context.Context) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		return true
	}

	if err := s.bootstrap(ctx); err != nil {
		s.logger.Error("okx bootstrap failed", slog.String("error", err.Error()))
		return false
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.runStream(runCtx)

	s.setConnected(true)
	s.logger.Info("okx source started", slog.Int("pairs", len(s.pairs)))
	return true
}

func (s *OKXSource) Disconnect() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
		s.cancel = nil
	}
	s.setConnected(false)
}

// fetchEnvelope fetches an OKX endpoint and unwraps the response envelope.
func (s *OKXSource) fetchEnvelope(ctx context.Context, pathAndQuery string, out any) error {
	var env okxEnvelope
	if err := fetchJSON(ctx, s.client, joinAll(s.restEndpoints, pathAndQuery), s.timeout, &env); err != nil {
		return err
	}
	if env.Code != "0" {
		return fmt.Errorf("okx error code %s: %s", env.Code, env.Msg)
	}
	return json.Unmarshal(env.Data, out)
}

func (s *OKXSource) bootstrap(ctx context.Context) error {
	var tickers []okxTicker
	if err := s.fetchEnvelope(ctx, "/market/tickers?instType=SPOT", &tickers); err != nil {
		return fmt.Errorf("market/tickers: %w", err)
	}

	stored := 0
	for _, t := range tickers {
		if s.storeTicker(t) {
			stored++
		}
	}
	if stored == 0 {
		return fmt.Errorf("market/tickers: no supported instruments in response")
	}
	return nil
}

// storeTicker normalizes one OKX ticker into the neutral observation form.
// OKX carries no precomputed 24h change; it is derived from open24h.
func (s *OKXSource) storeTicker(t okxTicker) bool {
	symbol, ok := symbolByOKXInstID(t.InstID)
	if !ok {
		return false
	}

	last := parseFloat(t.Last)
	open := parseFloat(t.Open24h)
	change := last - open
	changePct := 0.0
	if open > 0 {
		changePct = change / open * 100
	}

	return s.storePrice(domain.PriceObservation{
		Symbol:       symbol,
		Price:        last,
		Change24h:    change,
		ChangePct24h: changePct,
		High24h:      parseFloat(t.High24h),
		Low24h:       parseFloat(t.Low24h),
		Volume24h:    parseFloat(t.Vol24h),
		ObservedAt:   time.Now(),
	})
}

func (s *OKXSource) runStream(ctx context.Context) {
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
			s.logger.Error("okx stream gave up reconnecting",
				slog.Int("attempts", attempt-1),
				slog.String("error", errString(err)))
			s.setConnected(false)
			return
		}

		s.logger.Warn("okx stream lost, reconnecting",
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

func (s *OKXSource) streamSession(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.wsEndpoints[0], nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 20)

	args := make([]okxSubscribeArg, 0, len(defaultPairs))
	for _, p := range defaultPairs {
		args = append(args, okxSubscribeArg{Channel: "tickers", InstID: p.OKXInstID})
	}
	if err := wsjson.Write(ctx, conn, okxSubscribe{Op: "subscribe", Args: args}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		t := time.NewTicker(25 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-t.C:
				// OKX keepalive is a literal text frame, not a
				// protocol-level ping.
				wctx, cancel := context.WithTimeout(pingCtx, 10*time.Second)
				err := conn.Write(wctx, websocket.MessageText, []byte("ping"))
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
		if string(data) == "pong" {
			continue
		}
		s.handleStreamMessage(data)
	}
}

func (s *OKXSource) handleStreamMessage(data []byte) {
	var msg okxStreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Event != "" || msg.Arg.Channel != "tickers" {
		return
	}
	for _, t := range msg.Data {
		s.storeTicker(t)
	}
}

// HistoricalCandles fetches GET /market/candles. OKX returns bars as string
// arrays, newest first; they are reversed into chronological order.
func (s *OKXSource) HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	pair, ok := pairBySymbol(symbol)
	if !ok {
		return nil, fmt.Errorf("unsupported symbol %q", symbol)
	}
	bar, ok := okxIntervals[interval]
	if !ok {
		bar = "1m"
	}

	var raw [][]string
	path := fmt.Sprintf("/market/candles?instId=%s&bar=%s&limit=%d", pair.OKXInstID, bar, limit)
	if err := s.fetchEnvelope(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("market/candles %s: %w", symbol, err)
	}

	candles := make([]domain.Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		k := raw[i]
		if len(k) < 6 {
			continue
		}
		candles = append(candles, domain.Candle{
			OpenTime: time.UnixMilli(int64(parseFloat(k[0]))),
			Open:     parseFloat(k[1]),
			High:     parseFloat(k[2]),
			Low:      parseFloat(k[3]),
			Close:    parseFloat(k[4]),
			Volume:   parseFloat(k[5]),
		})
	}
	return candles, nil
}

func (s *OKXSource) OrderBook(ctx context.Context, symbol string, limit int) (*domain.OrderBookSnapshot, error) {
	pair, ok := pairBySymbol(symbol)
	if !ok {
		return nil, fmt.Errorf("unsupported symbol %q", symbol)
	}

	var books []okxBook
	path := fmt.Sprintf("/market/books?instId=%s&sz=%d", pair.OKXInstID, limit)
	if err := s.fetchEnvelope(ctx, path, &books); err != nil {
		return nil, fmt.Errorf("market/books %s: %w", symbol, err)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("market/books %s: empty response", symbol)
	}

	book := domain.OrderBookSnapshot{
		Symbol:     symbol,
		Bids:       parseDepthRows(books[0].Bids),
		Asks:       parseDepthRows(books[0].Asks),
		ObservedAt: time.Now(),
	}
	s.storeBook(book)
	return &book, nil
}

// parseDepthRows reads OKX depth rows, which carry extra per-level columns
// beyond price and size.
func parseDepthRows(raw [][]string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, r := range raw {
		if len(r) < 2 {
			continue
		}
		levels = append(levels, domain.PriceLevel{
			Price:    parseFloat(r[0]),
			Quantity: parseFloat(r[1]),
		})
	}
	return levels
}
