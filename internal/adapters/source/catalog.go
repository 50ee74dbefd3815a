// Package source implements the market-data source adapters: a mock
// generator plus REST/WebSocket integrations for CoinGecko, Binance and OKX,
// and a composite "enhanced" source blending vendors.
package source

import "marketpulse/internal/core/domain"

// pairInfo is one supported instrument with its per-vendor identifiers.
type pairInfo struct {
	Symbol      string // exchange-neutral, e.g. "BTCUSDT"
	Base        string
	Quote       string
	CoinGeckoID string
	OKXInstID   string
}

var defaultPairs = []pairInfo{
	{"BTCUSDT", "BTC", "USDT", "bitcoin", "BTC-USDT"},
	{"ETHUSDT", "ETH", "USDT", "ethereum", "ETH-USDT"},
	{"BNBUSDT", "BNB", "USDT", "binancecoin", "BNB-USDT"},
	{"ADAUSDT", "ADA", "USDT", "cardano", "ADA-USDT"},
	{"SOLUSDT", "SOL", "USDT", "solana", "SOL-USDT"},
	{"XRPUSDT", "XRP", "USDT", "ripple", "XRP-USDT"},
	{"DOTUSDT", "DOT", "USDT", "polkadot", "DOT-USDT"},
	{"DOGEUSDT", "DOGE", "USDT", "dogecoin", "DOGE-USDT"},
	{"AVAXUSDT", "AVAX", "USDT", "avalanche-2", "AVAX-USDT"},
	{"LINKUSDT", "LINK", "USDT", "chainlink", "LINK-USDT"},
}

func defaultTradingPairs() []domain.TradingPair {
	pairs := make([]domain.TradingPair, 0, len(defaultPairs))
	for _, p := range defaultPairs {
		pairs = append(pairs, domain.TradingPair{Symbol: p.Symbol, BaseAsset: p.Base, QuoteAsset: p.Quote})
	}
	return pairs
}

func pairBySymbol(symbol string) (pairInfo, bool) {
	for _, p := range defaultPairs {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return pairInfo{}, false
}

func symbolByOKXInstID(instID string) (string, bool) {
	for _, p := range defaultPairs {
		if p.OKXInstID == instID {
			return p.Symbol, true
		}
	}
	return "", false
}

func symbolByCoinGeckoID(id string) (string, bool) {
	for _, p := range defaultPairs {
		if p.CoinGeckoID == id {
			return p.Symbol, true
		}
	}
	return "", false
}
