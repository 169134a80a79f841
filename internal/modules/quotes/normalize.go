package quotes

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// record is one upstream JSON object decoded without a schema. NSE omits
// fields, sends "-" for missing numbers and quotes numbers inconsistently.
type record map[string]interface{}

func (r record) num(key string) float64 {
	return toFloat(r[key])
}

func (r record) str(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// strOr returns the string at key, or fallback when it is missing or empty.
func (r record) strOr(key, fallback string) string {
	if s := r.str(key); s != "" {
		return s
	}
	return fallback
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		if s == "" || s == "-" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// dataRows extracts the "data" array of a listing payload. Non-object
// elements are skipped.
func dataRows(payload json.RawMessage) ([]record, error) {
	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode NSE payload: %w", err)
	}
	if envelope.Data == nil {
		return nil, ErrNoData
	}

	rows := make([]record, 0, len(envelope.Data))
	for _, raw := range envelope.Data {
		var row record
		if err := json.Unmarshal(raw, &row); err != nil || row == nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func toStockRows(rows []record, updatedAt string) []StockRow {
	out := make([]StockRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, StockRow{
			Symbol:            r.str("symbol"),
			Identifier:        r.str("identifier"),
			LastPrice:         r.num("lastPrice"),
			Change:            r.num("change"),
			PChange:           r.num("pChange"),
			Open:              r.num("open"),
			DayHigh:           r.num("dayHigh"),
			DayLow:            r.num("dayLow"),
			PreviousClose:     r.num("previousClose"),
			TotalTradedVolume: r.num("totalTradedVolume"),
			TotalTradedValue:  r.num("totalTradedValue"),
			YearHigh:          r.num("yearHigh"),
			YearLow:           r.num("yearLow"),
			PerChange365d:     r.num("perChange365d"),
			PerChange30d:      r.num("perChange30d"),
			LastUpdateTime:    r.strOr("lastUpdateTime", updatedAt),
		})
	}
	return out
}

func toBankNiftyStocks(rows []record) []BankNiftyStock {
	out := make([]BankNiftyStock, 0, len(rows))
	for _, r := range rows {
		out = append(out, BankNiftyStock{
			Symbol:    r.str("symbol"),
			Open:      r.num("open"),
			High:      r.num("dayHigh"),
			Low:       r.num("dayLow"),
			PreClose:  r.num("previousClose"),
			LastPrice: r.num("lastPrice"),
			Change:    r.num("change"),
			PChange:   r.num("pChange"),
			Volume:    r.num("totalTradedVolume"),
			Indices:   []string{IndexBank},
		})
	}
	return out
}

func toIndexQuote(r record, symbol, updatedAt string) IndexQuote {
	return IndexQuote{
		Symbol:            r.strOr("symbol", symbol),
		LastPrice:         r.num("lastPrice"),
		Change:            r.num("change"),
		PChange:           r.num("pChange"),
		Open:              r.num("open"),
		DayHigh:           r.num("dayHigh"),
		DayLow:            r.num("dayLow"),
		PreviousClose:     r.num("previousClose"),
		YearHigh:          r.num("yearHigh"),
		YearLow:           r.num("yearLow"),
		TotalTradedVolume: r.num("totalTradedVolume"),
		TotalTradedValue:  r.num("totalTradedValue"),
		PreviousDayVolume: r.num("previousDayVolume"),
		LowerCircuit:      r.num("lowerCircuit"),
		UpperCircuit:      r.num("upperCircuit"),
		LastUpdateTime:    r.strOr("lastUpdateTime", updatedAt),
	}
}

// placeholderQuote is served when no value for the index has ever been seen.
func placeholderQuote(symbol, updatedAt string) IndexQuote {
	return IndexQuote{Symbol: symbol, LastUpdateTime: updatedAt}
}

// headline returns the first row of a listing payload.
func headline(payload json.RawMessage) (record, bool) {
	rows, err := dataRows(payload)
	if err != nil || len(rows) == 0 {
		return nil, false
	}
	return rows[0], true
}

func toCandles(rows []record) []Candle {
	out := make([]Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, Candle{
			Date:  r.str("CH_TIMESTAMP"),
			Open:  r.num("CH_OPENING_PRICE"),
			High:  r.num("CH_TRADE_HIGH_PRICE"),
			Low:   r.num("CH_TRADE_LOW_PRICE"),
			Close: r.num("CH_CLOSING_PRICE"),
		})
	}
	return out
}
