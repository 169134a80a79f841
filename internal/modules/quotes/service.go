package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/marketdash/internal/clock"
	"github.com/aristath/marketdash/internal/modules/market_hours"
)

// Upstream API paths.
const (
	pathIndexListing = "/api/equity-stockIndices"
	pathQuote        = "/api/quote-equity"
	pathHistorical   = "/api/historical/cm/equity"
	pathSearch       = "/api/search/autocomplete"
)

// Upstream is the subset of the NSE client the service depends on.
type Upstream interface {
	Fetch(ctx context.Context, rawURL, cacheKey string, maxRetries int) (json.RawMessage, error)
	APIURL(path string, query url.Values) string
	Stale(key string) (json.RawMessage, bool)
	Snapshot(key string) (json.RawMessage, bool)
	HasFresh(key string) bool
	EnsureSession(ctx context.Context) error
}

// Config tunes per-endpoint behaviour.
type Config struct {
	StockFetchRetries int           // attempts for the single-stock endpoint
	IndicesJitter     time.Duration // upper bound of the random pause before the overview fetch
}

// Service implements the dashboard read endpoints.
type Service struct {
	upstream Upstream
	market   *market_hours.MarketHoursService
	clock    clock.Clock
	cfg      Config
	jitter   func(limit time.Duration) time.Duration
	log      zerolog.Logger
}

// NewService creates a new quotes service.
func NewService(
	upstream Upstream,
	market *market_hours.MarketHoursService,
	clk clock.Clock,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if cfg.StockFetchRetries < 1 {
		cfg.StockFetchRetries = 3
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Service{
		upstream: upstream,
		market:   market,
		clock:    clk,
		cfg:      cfg,
		jitter:   randomJitter,
		log:      log.With().Str("service", "quotes").Logger(),
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}

func (s *Service) indexURL(index string) string {
	return s.upstream.APIURL(pathIndexListing, url.Values{"index": {index}})
}

func (s *Service) localNow() string {
	return s.market.FormatLocal(s.clock.Now())
}

// Nifty50 returns the raw NIFTY 50 listing.
func (s *Service) Nifty50(ctx context.Context) (json.RawMessage, error) {
	return s.upstream.Fetch(ctx, s.indexURL(IndexNifty50), KeyNifty50, 0)
}

// Nifty returns normalized NIFTY 500 constituents.
func (s *Service) Nifty(ctx context.Context) ([]StockRow, error) {
	return s.listing(ctx, IndexNifty500, KeyNifty500)
}

// BankNifty returns normalized NIFTY BANK constituents.
func (s *Service) BankNifty(ctx context.Context) ([]StockRow, error) {
	return s.listing(ctx, IndexBank, KeyBankNifty)
}

func (s *Service) listing(ctx context.Context, index, key string) ([]StockRow, error) {
	payload, err := s.upstream.Fetch(ctx, s.indexURL(index), key, 0)
	if err != nil {
		return nil, err
	}

	rows, err := dataRows(payload)
	if err != nil {
		return nil, err
	}
	return toStockRows(rows, s.localNow()), nil
}

// BankNiftyStocks returns the compact bank constituents table.
func (s *Service) BankNiftyStocks(ctx context.Context) ([]BankNiftyStock, error) {
	payload, err := s.upstream.Fetch(ctx, s.indexURL(IndexBank), KeyBankNifty, 0)
	if err != nil {
		return nil, err
	}

	rows, err := dataRows(payload)
	if err != nil {
		return nil, err
	}
	return toBankNiftyStocks(rows), nil
}

func requireParam(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ValidationError{Field: field, Message: "is required"}
	}
	return value, nil
}

// StockDetails fetches the quote and trade info for symbol concurrently and
// returns the quote object with the trade info attached under "tradeInfo".
func (s *Service) StockDetails(ctx context.Context, symbol string) (map[string]json.RawMessage, error) {
	symbol, err := requireParam("symbol", symbol)
	if err != nil {
		return nil, err
	}

	var quote, tradeInfo json.RawMessage

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quote, err = s.upstream.Fetch(gctx,
			s.upstream.APIURL(pathQuote, url.Values{"symbol": {symbol}}),
			"quote_"+symbol, s.cfg.StockFetchRetries)
		return err
	})
	g.Go(func() error {
		var err error
		tradeInfo, err = s.upstream.Fetch(gctx,
			s.upstream.APIURL(pathQuote, url.Values{"symbol": {symbol}, "section": {"trade_info"}}),
			"trade_info_"+symbol, s.cfg.StockFetchRetries)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var combined map[string]json.RawMessage
	if err := json.Unmarshal(quote, &combined); err != nil {
		return nil, fmt.Errorf("failed to decode quote for %s: %w", symbol, err)
	}
	if combined == nil {
		return nil, ErrNoData
	}
	combined["tradeInfo"] = tradeInfo

	return combined, nil
}

// Historical returns daily candles for symbol.
func (s *Service) Historical(ctx context.Context, symbol string) ([]Candle, error) {
	symbol, err := requireParam("symbol", symbol)
	if err != nil {
		return nil, err
	}

	payload, err := s.upstream.Fetch(ctx,
		s.upstream.APIURL(pathHistorical, url.Values{"symbol": {symbol}}),
		"historical_"+symbol, 0)
	if err != nil {
		return nil, err
	}

	rows, err := dataRows(payload)
	if err != nil {
		return nil, err
	}
	return toCandles(rows), nil
}

// Search proxies the NSE autocomplete endpoint.
func (s *Service) Search(ctx context.Context, query string) (json.RawMessage, error) {
	query, err := requireParam("q", query)
	if err != nil {
		return nil, err
	}

	return s.upstream.Fetch(ctx,
		s.upstream.APIURL(pathSearch, url.Values{"q": {query}}),
		"search_"+strings.ToLower(query), 0)
}

// Indices assembles the headline overview. It never fails: each index falls
// back to its last known value and then to a zero placeholder.
func (s *Service) Indices(ctx context.Context) IndicesOverview {
	start := s.clock.Now()
	overview := IndicesOverview{
		MarketStatus: s.market.Status(start),
		Performance:  Performance{Sources: make(map[string]Source, 2)},
	}

	var failures []string

	if err := s.upstream.EnsureSession(ctx); err != nil {
		s.log.Error().Err(err).Msg("Failed to get NSE session for indices")
		failures = append(failures, err.Error())

		var src Source
		overview.Nifty50, src = s.fallbackQuote(KeyNifty50, IndexNifty50)
		overview.Performance.Sources[KeyNifty50] = src
		overview.BankNifty, src = s.fallbackQuote(KeyBankNifty, IndexBank)
		overview.Performance.Sources[KeyBankNifty] = src
		overview.Performance.Cached = true
		return s.finish(overview, start, failures)
	}

	// Desynchronise overlapping pollers
	if err := s.clock.Sleep(ctx, s.jitter(s.cfg.IndicesJitter)); err != nil {
		failures = append(failures, err.Error())
	}

	niftyCached := s.upstream.HasFresh(KeyNifty50)
	bankCached := s.upstream.HasFresh(KeyBankNifty)

	var niftyPayload, bankPayload json.RawMessage
	var niftyErr, bankErr error

	// Each index degrades on its own so the group never short-circuits.
	var g errgroup.Group
	g.Go(func() error {
		niftyPayload, niftyErr = s.upstream.Fetch(ctx, s.indexURL(IndexNifty50), KeyNifty50, 0)
		return nil
	})
	g.Go(func() error {
		bankPayload, bankErr = s.upstream.Fetch(ctx, s.indexURL(IndexBank), KeyBankNifty, 0)
		return nil
	})
	_ = g.Wait()

	var src Source
	overview.Nifty50, src = s.resolveQuote(KeyNifty50, IndexNifty50, niftyPayload, niftyErr, niftyCached)
	overview.Performance.Sources[KeyNifty50] = src
	if niftyErr != nil {
		s.log.Warn().Err(niftyErr).Str("source", string(src)).Msg("NIFTY 50 fetch failed")
		failures = append(failures, niftyErr.Error())
	}

	overview.BankNifty, src = s.resolveQuote(KeyBankNifty, IndexBank, bankPayload, bankErr, bankCached)
	overview.Performance.Sources[KeyBankNifty] = src
	if bankErr != nil {
		s.log.Warn().Err(bankErr).Str("source", string(src)).Msg("NIFTY BANK fetch failed")
		failures = append(failures, bankErr.Error())
	}

	overview.Performance.Cached = overview.Performance.Sources[KeyNifty50] != SourceLive
	return s.finish(overview, start, failures)
}

func (s *Service) resolveQuote(key, symbol string, payload json.RawMessage, err error, cached bool) (IndexQuote, Source) {
	if err == nil {
		if row, ok := headline(payload); ok {
			src := SourceLive
			if cached {
				src = SourceCache
			}
			return toIndexQuote(row, symbol, s.localNow()), src
		}
	}
	return s.fallbackQuote(key, symbol)
}

// fallbackQuote serves the headline row for key from the expired in-memory
// entry, then the persisted snapshot, else a zero placeholder.
func (s *Service) fallbackQuote(key, symbol string) (IndexQuote, Source) {
	lookups := []struct {
		get    func(string) (json.RawMessage, bool)
		source Source
	}{
		{s.upstream.Stale, SourceStale},
		{s.upstream.Snapshot, SourceLastKnown},
	}

	for _, l := range lookups {
		payload, ok := l.get(key)
		if !ok {
			continue
		}
		if row, ok := headline(payload); ok {
			return toIndexQuote(row, symbol, s.localNow()), l.source
		}
	}
	return placeholderQuote(symbol, s.localNow()), SourcePlaceholder
}

func (s *Service) finish(overview IndicesOverview, start time.Time, failures []string) IndicesOverview {
	elapsed := s.clock.Now().Sub(start)
	overview.Performance.FetchTime = fmt.Sprintf("%dms", elapsed.Milliseconds())
	if len(failures) > 0 {
		overview.Performance.Error = strings.Join(failures, "; ")
	}
	return overview
}
