// Package quotes turns raw NSE payloads into the shapes the dashboard renders
// and decides, per endpoint, how upstream failures degrade.
package quotes

import (
	"github.com/aristath/marketdash/internal/modules/market_hours"
)

// Index names as NSE spells them in query strings.
const (
	IndexNifty50  = "NIFTY 50"
	IndexNifty500 = "NIFTY 500"
	IndexBank     = "NIFTY BANK"
)

// Cache keys shared between endpoints. Two endpoints that read the same
// upstream resource share a key.
const (
	KeyNifty50   = "nifty50"
	KeyNifty500  = "nifty"
	KeyBankNifty = "bankNifty"
)

// StockRow is one constituent row of an index listing.
type StockRow struct {
	Symbol            string  `json:"symbol"`
	Identifier        string  `json:"identifier"`
	LastPrice         float64 `json:"lastPrice"`
	Change            float64 `json:"change"`
	PChange           float64 `json:"pChange"`
	Open              float64 `json:"open"`
	DayHigh           float64 `json:"dayHigh"`
	DayLow            float64 `json:"dayLow"`
	PreviousClose     float64 `json:"previousClose"`
	TotalTradedVolume float64 `json:"totalTradedVolume"`
	TotalTradedValue  float64 `json:"totalTradedValue"`
	YearHigh          float64 `json:"yearHigh"`
	YearLow           float64 `json:"yearLow"`
	PerChange365d     float64 `json:"perChange365d"`
	PerChange30d      float64 `json:"perChange30d"`
	LastUpdateTime    string  `json:"lastUpdateTime"`
}

// BankNiftyStock is the compact row used by the bank constituents table.
type BankNiftyStock struct {
	Symbol    string   `json:"symbol"`
	Open      float64  `json:"open"`
	High      float64  `json:"high"`
	Low       float64  `json:"low"`
	PreClose  float64  `json:"preClose"`
	LastPrice float64  `json:"lastPrice"`
	Change    float64  `json:"change"`
	PChange   float64  `json:"pChange"`
	Volume    float64  `json:"volume"`
	Indices   []string `json:"indices"`
}

// IndexQuote is the headline row of an index (first element of its listing).
type IndexQuote struct {
	Symbol            string  `json:"symbol"`
	LastPrice         float64 `json:"lastPrice"`
	Change            float64 `json:"change"`
	PChange           float64 `json:"pChange"`
	Open              float64 `json:"open"`
	DayHigh           float64 `json:"dayHigh"`
	DayLow            float64 `json:"dayLow"`
	PreviousClose     float64 `json:"previousClose"`
	YearHigh          float64 `json:"yearHigh"`
	YearLow           float64 `json:"yearLow"`
	TotalTradedVolume float64 `json:"totalTradedVolume"`
	TotalTradedValue  float64 `json:"totalTradedValue"`
	PreviousDayVolume float64 `json:"previousDayVolume"`
	LowerCircuit      float64 `json:"lowerCircuit"`
	UpperCircuit      float64 `json:"upperCircuit"`
	LastUpdateTime    string  `json:"lastUpdateTime"`
}

// Candle is one daily OHLC bar.
type Candle struct {
	Date  string  `json:"date"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Source names where an index quote in the overview came from.
type Source string

const (
	SourceLive        Source = "live"
	SourceCache       Source = "cache"      // fresh cache entry
	SourceStale       Source = "stale"      // expired in-memory entry
	SourceLastKnown   Source = "last_known" // persisted snapshot
	SourcePlaceholder Source = "placeholder"
)

// Performance describes how an indices overview was assembled.
type Performance struct {
	FetchTime string            `json:"fetchTime"`
	Cached    bool              `json:"cached"`
	Sources   map[string]Source `json:"sources"`
	Error     string            `json:"error,omitempty"`
}

// IndicesOverview is the headline payload polled by the dashboard.
type IndicesOverview struct {
	MarketStatus market_hours.MarketStatus `json:"marketStatus"`
	Nifty50      IndexQuote                `json:"nifty50"`
	BankNifty    IndexQuote                `json:"bankNifty"`
	Performance  Performance               `json:"performance"`
}
