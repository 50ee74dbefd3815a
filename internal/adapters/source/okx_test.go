package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOKXTestSource(t *testing.T, handlerFn http.HandlerFunc) *OKXSource {
	t.Helper()
	srv := httptest.NewServer(handlerFn)
	t.Cleanup(srv.Close)

	s := NewOKXSource(testLogger())
	s.restEndpoints = []string{srv.URL}
	return s
}

func TestOKXBootstrapNormalizesSymbols(t *testing.T) {
	s := newOKXTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market/tickers" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"code":"0","msg":"","data":[
			{"instId":"BTC-USDT","last":"104500","open24h":"102000","high24h":"105200","low24h":"101800","vol24h":"28500"},
			{"instId":"FOO-BAR","last":"1","open24h":"1","high24h":"1","low24h":"1","vol24h":"1"}
		]}`))
	})

	if err := s.bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	obs, ok := s.cachedPrice("BTCUSDT")
	if !ok {
		t.Fatal("BTC-USDT not cached under neutral symbol BTCUSDT")
	}
	if _, ok := s.cachedPrice("BTC-USDT"); ok {
		t.Fatal("vendor instId leaked into the cache")
	}

	// change derived from open24h
	if obs.Change24h != 2500 {
		t.Fatalf("change = %f, want 2500", obs.Change24h)
	}
	wantPct := 2500.0 / 102000 * 100
	if diff := obs.ChangePct24h - wantPct; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("changePct = %f, want %f", obs.ChangePct24h, wantPct)
	}
}

func TestOKXEnvelopeError(t *testing.T) {
	s := newOKXTestSource(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":"50011","msg":"rate limited","data":[]}`))
	})

	if err := s.bootstrap(context.Background()); err == nil {
		t.Fatal("expected error on non-zero envelope code")
	}
}

func TestOKXHistoricalCandlesReversedAndMapped(t *testing.T) {
	var gotBar string
	s := newOKXTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market/candles" {
			http.NotFound(w, r)
			return
		}
		gotBar = r.URL.Query().Get("bar")
		// newest first, as OKX serves them
		w.Write([]byte(`{"code":"0","msg":"","data":[
			["1700003600000","104500","104900","104200","104800","280"],
			["1700000000000","104000","104600","103900","104500","350"]
		]}`))
	})

	candles, err := s.HistoricalCandles(context.Background(), "BTCUSDT", "1h", 2)
	if err != nil {
		t.Fatalf("HistoricalCandles: %v", err)
	}
	if gotBar != "1H" {
		t.Fatalf("bar = %q, want 1H", gotBar)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	if !candles[0].OpenTime.Before(candles[1].OpenTime) {
		t.Fatal("candles not reversed into chronological order")
	}
	if candles[0].Open != 104000 {
		t.Fatalf("first candle open = %f, want 104000", candles[0].Open)
	}
}

func TestOKXOrderBook(t *testing.T) {
	s := newOKXTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market/books" {
			http.NotFound(w, r)
			return
		}
		// OKX depth rows carry extra columns past price and size.
		w.Write([]byte(`{"code":"0","msg":"","data":[
			{"bids":[["104400","1.5","0","2"]],"asks":[["104410","0.8","0","1"]],"ts":"1700000000000"}
		]}`))
	})

	book, err := s.OrderBook(context.Background(), "BTCUSDT", 5)
	if err != nil {
		t.Fatalf("OrderBook: %v", err)
	}
	if len(book.Bids) != 1 || book.Bids[0].Price != 104400 || book.Bids[0].Quantity != 1.5 {
		t.Fatalf("bids = %+v", book.Bids)
	}
}

func TestOKXStreamMessageHandling(t *testing.T) {
	s := NewOKXSource(testLogger())

	// subscribe ack carries an event field and no data; must be ignored
	s.handleStreamMessage([]byte(`{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT"}}`))
	if _, ok := s.cachedPrice("BTCUSDT"); ok {
		t.Fatal("ack message produced a cached price")
	}

	s.handleStreamMessage([]byte(`{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[
		{"instId":"BTC-USDT","last":"104600","open24h":"102000","high24h":"105200","low24h":"101800","vol24h":"28600"}
	]}`))

	obs, ok := s.cachedPrice("BTCUSDT")
	if !ok {
		t.Fatal("ticker push not cached")
	}
	if obs.Price != 104600 {
		t.Fatalf("price = %f, want 104600", obs.Price)
	}
}
