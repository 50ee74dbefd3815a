package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEnhancedPollPrefersBinance(t *testing.T) {
	binance := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"BTCUSDT","lastPrice":"104500","priceChange":"2500","priceChangePercent":"2.45","highPrice":"105200","lowPrice":"101800","volume":"28500000"}]`))
	}))
	defer binance.Close()

	s := NewEnhancedSource(testLogger())
	s.binanceEndpoints = []string{binance.URL}
	s.coingeckoEndpoints = []string{"http://127.0.0.1:1"} // must not be hit

	if err := s.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	obs, ok := s.cachedPrice("BTCUSDT")
	if !ok {
		t.Fatal("BTCUSDT not cached")
	}
	if obs.EstimatedHiLo {
		t.Fatal("binance snapshot flagged as estimated")
	}
	if obs.High24h != 105200 {
		t.Fatalf("high = %f, want the vendor-reported 105200", obs.High24h)
	}
}

func TestEnhancedPollFallsBackToCoinGecko(t *testing.T) {
	coingecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/simple/price") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"bitcoin": {"usd": 104000, "usd_24h_change": 2.0, "usd_24h_vol": 28000000}}`))
	}))
	defer coingecko.Close()

	s := NewEnhancedSource(testLogger())
	s.binanceEndpoints = []string{"http://127.0.0.1:1"}
	s.coingeckoEndpoints = []string{coingecko.URL}
	s.timeout = 200 * time.Millisecond

	if err := s.poll(context.Background()); err != nil {
		t.Fatalf("poll with fallback: %v", err)
	}

	obs, ok := s.cachedPrice("BTCUSDT")
	if !ok {
		t.Fatal("fallback data not cached")
	}
	if obs.Price != 104000 {
		t.Fatalf("price = %f, want 104000", obs.Price)
	}
	if !obs.EstimatedHiLo {
		t.Fatal("fallback high/low not flagged estimated")
	}
}

func TestEnhancedPollFailsWhenAllVendorsDown(t *testing.T) {
	s := NewEnhancedSource(testLogger())
	s.binanceEndpoints = []string{"http://127.0.0.1:1"}
	s.coingeckoEndpoints = []string{"http://127.0.0.1:1"}
	s.timeout = 200 * time.Millisecond

	if err := s.poll(context.Background()); err == nil {
		t.Fatal("expected error when every vendor is down")
	}
	if len(s.PriceData()) != 0 {
		t.Fatal("fabricated data cached after total failure")
	}
}
