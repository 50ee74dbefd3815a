package source

import (
	"math/rand"
	"time"

	"marketpulse/internal/core/domain"
)

// Synthesis helpers for upstreams that only provide a price series. The
// shapes are documented approximations, not real market microstructure, and
// every synthesized value is flagged as such.

// intervalDuration maps a kline interval string to a bar width, defaulting
// to one minute for anything unrecognized.
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// synthesizeCandles walks a random path backward from basePrice: open is the
// previous close, high/low bracket the body within a bounded volatility.
func synthesizeCandles(basePrice float64, interval string, limit int) []domain.Candle {
	if basePrice <= 0 || limit <= 0 {
		return nil
	}

	const volatility = 0.02

	width := intervalDuration(interval)
	candles := make([]domain.Candle, 0, limit)
	price := basePrice * 0.9
	now := time.Now()

	for i := 0; i < limit; i++ {
		openTime := now.Add(-time.Duration(limit-i) * width)
		open := price
		close := open * (1 + (rand.Float64()-0.5)*volatility)
		high := maxFloat(open, close) * (1 + rand.Float64()*0.01)
		low := minFloat(open, close) * (1 - rand.Float64()*0.01)

		candles = append(candles, domain.Candle{
			OpenTime:  openTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    100 + rand.Float64()*1000,
			Synthetic: true,
		})
		price = close
	}
	return candles
}

// candlesFromPricePoints converts a price/volume series into bars: open is
// the previous point, high/low jittered within a 0.5% band around close.
func candlesFromPricePoints(points [][2]float64, volumes [][2]float64, limit int) []domain.Candle {
	const volatility = 0.005

	start := 0
	if len(points) > limit {
		start = len(points) - limit
	}

	candles := make([]domain.Candle, 0, len(points)-start)
	for i := start; i < len(points); i++ {
		price := points[i][1]
		if price <= 0 {
			continue
		}
		open := price
		if i > 0 {
			open = points[i-1][1]
		}
		var volume float64
		if i < len(volumes) {
			volume = volumes[i][1]
		}

		candles = append(candles, domain.Candle{
			OpenTime:  time.UnixMilli(int64(points[i][0])),
			Open:      open,
			High:      price * (1 + rand.Float64()*volatility),
			Low:       price * (1 - rand.Float64()*volatility),
			Close:     price,
			Volume:    volume,
			Synthetic: true,
		})
	}
	return candles
}

// synthesizeOrderBook builds a fixed-spread ladder around the last price:
// ±0.1% per level, randomized quantities.
func synthesizeOrderBook(symbol string, price float64, limit int) *domain.OrderBookSnapshot {
	if price <= 0 || limit <= 0 {
		return nil
	}

	bids := make([]domain.PriceLevel, 0, limit)
	asks := make([]domain.PriceLevel, 0, limit)
	for i := 0; i < limit; i++ {
		step := float64(i+1) * 0.001
		bids = append(bids, domain.PriceLevel{Price: price * (1 - step), Quantity: rand.Float64()*10 + 1})
		asks = append(asks, domain.PriceLevel{Price: price * (1 + step), Quantity: rand.Float64()*10 + 1})
	}

	return &domain.OrderBookSnapshot{
		Symbol:     symbol,
		Bids:       bids,
		Asks:       asks,
		ObservedAt: time.Now(),
		Synthetic:  true,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
