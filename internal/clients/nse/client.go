// Package nse provides a client for the National Stock Exchange of India's
// website JSON API. The API is undocumented and guarded by anti-bot cookies:
// every call needs a session obtained through a two-step page handshake, and
// bursts are rate limited. The client pairs the session lifecycle with a
// short-TTL response cache and a bounded retry loop.
package nse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketdash/internal/cache"
	"github.com/aristath/marketdash/internal/clientdata"
	"github.com/aristath/marketdash/internal/clock"
)

const (
	defaultBaseURL      = "https://www.nseindia.com"
	defaultFetchRetries = 2
	defaultRetryPacing  = 2 * time.Second
	defaultRetryBackoff = 2 * time.Second
	maxResponseBytes    = 16 << 20
)

// SnapshotStore persists last-known-good payloads. Optional.
type SnapshotStore interface {
	Store(key string, payload json.RawMessage, fetchedAt time.Time) error
	GetIfFresh(key string, now time.Time) (*clientdata.Snapshot, error)
}

// ClientConfig tunes the retry loop.
type ClientConfig struct {
	BaseURL      string
	FetchRetries int           // default attempts when a caller passes 0
	RetryPacing  time.Duration // pause before every attempt after the first
	RetryBackoff time.Duration // attempt * RetryBackoff after a failed attempt
}

// Client performs logical fetches against the NSE API.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	session    Session
	cache      *cache.Cache
	snapshots  SnapshotStore
	clock      clock.Clock
	log        zerolog.Logger
}

// NewClient creates a new NSE client.
// snapshots is optional - if nil, fallbacks only use the in-memory cache.
func NewClient(
	cfg ClientConfig,
	httpClient *http.Client,
	session Session,
	responseCache *cache.Cache,
	snapshots SnapshotStore,
	clk clock.Clock,
	log zerolog.Logger,
) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.FetchRetries < 1 {
		cfg.FetchRetries = defaultFetchRetries
	}
	if cfg.RetryPacing < 0 {
		cfg.RetryPacing = defaultRetryPacing
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultRequestTimeout)
	}
	if responseCache == nil {
		responseCache = cache.New(cache.DefaultTTL)
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		session:    session,
		cache:      responseCache,
		snapshots:  snapshots,
		clock:      clk,
		log:        log.With().Str("client", "nse").Logger(),
	}
}

// APIURL builds an absolute URL for an API path such as "/api/quote-equity".
func (c *Client) APIURL(path string, query url.Values) string {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		// NSE expects %20 rather than + for spaces in index names
		u += "?" + strings.ReplaceAll(query.Encode(), "+", "%20")
	}
	return u
}

// Cache exposes the response cache for status reporting.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// HasFresh reports whether key would be served from cache right now.
func (c *Client) HasFresh(key string) bool {
	_, ok := c.cache.GetFresh(key, c.clock.Now())
	return ok
}

// EnsureSession exposes the session check for handlers that want to fail fast.
func (c *Client) EnsureSession(ctx context.Context) error {
	return c.session.EnsureValidSession(ctx)
}

type attemptStage string

const (
	stageSession attemptStage = "session"
	stagePacing  attemptStage = "pacing"
	stageRequest attemptStage = "request"
)

// attemptResult is the outcome of one pass through session check and request.
type attemptResult struct {
	payload json.RawMessage
	stage   attemptStage
	err     error
}

func (r attemptResult) ok() bool {
	return r.err == nil
}

// Fetch returns the payload for cacheKey, serving a fresh cache entry when
// one exists. Otherwise it makes up to maxRetries attempts (FetchRetries when
// maxRetries < 1). A failed attempt invalidates the session unless ctx has
// ended, in which case the loop stops and the session is left alone.
// Exhaustion returns *UpstreamError. Stale entries are never returned.
func (c *Client) Fetch(ctx context.Context, rawURL, cacheKey string, maxRetries int) (json.RawMessage, error) {
	if entry, ok := c.cache.GetFresh(cacheKey, c.clock.Now()); ok {
		c.log.Debug().Str("key", cacheKey).Msg("Cache hit")
		return entry.Payload, nil
	}

	if maxRetries < 1 {
		maxRetries = c.cfg.FetchRetries
	}

	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= maxRetries; attempt++ {
		attempts = attempt

		res := c.attempt(ctx, rawURL, attempt)
		if res.ok() {
			now := c.clock.Now()
			c.cache.Put(cacheKey, res.payload, now)
			c.persist(cacheKey, res.payload, now)
			return res.payload, nil
		}

		lastErr = res.err

		// The caller went away; the upstream did not reject the session
		if ctx.Err() != nil {
			c.log.Debug().
				Err(res.err).
				Str("key", cacheKey).
				Int("attempt", attempt).
				Msg("NSE request abandoned by caller")
			break
		}

		c.log.Warn().
			Err(res.err).
			Str("key", cacheKey).
			Str("stage", string(res.stage)).
			Int("attempt", attempt).
			Int("max_attempts", maxRetries).
			Msg("NSE request failed")

		// a failure is taken to mean the session was rejected
		c.session.Invalidate()

		if attempt == maxRetries {
			break
		}
		if err := c.clock.Sleep(ctx, time.Duration(attempt)*c.cfg.RetryBackoff); err != nil {
			lastErr = err
			break
		}
	}

	return nil, &UpstreamError{
		URL:      rawURL,
		CacheKey: cacheKey,
		Attempts: attempts,
		Err:      lastErr,
	}
}

func (c *Client) attempt(ctx context.Context, rawURL string, attempt int) attemptResult {
	if err := c.session.EnsureValidSession(ctx); err != nil {
		return attemptResult{stage: stageSession, err: err}
	}

	if attempt > 1 {
		if err := c.clock.Sleep(ctx, c.cfg.RetryPacing); err != nil {
			return attemptResult{stage: stagePacing, err: err}
		}
	}

	payload, err := c.get(ctx, rawURL)
	if err != nil {
		return attemptResult{stage: stageRequest, err: err}
	}

	return attemptResult{payload: payload, stage: stageRequest}
}

func (c *Client) get(ctx context.Context, rawURL string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.session.Decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrEmptyResponse
	}
	// Blocked sessions get an HTML interstitial with status 200
	if !json.Valid(body) {
		return nil, fmt.Errorf("NSE returned non-JSON body (%d bytes)", len(body))
	}

	return json.RawMessage(body), nil
}

func (c *Client) persist(key string, payload json.RawMessage, fetchedAt time.Time) {
	if c.snapshots == nil {
		return
	}
	if err := c.snapshots.Store(key, payload, fetchedAt); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to persist snapshot")
	}
}

// Stale returns the in-memory payload for key regardless of age. Only for
// fallbacks.
func (c *Client) Stale(key string) (json.RawMessage, bool) {
	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return entry.Payload, true
}

// Snapshot returns the persisted payload for key if it has not outlived the
// snapshot TTL. Only for fallbacks.
func (c *Client) Snapshot(key string) (json.RawMessage, bool) {
	if c.snapshots == nil {
		return nil, false
	}

	snap, err := c.snapshots.GetIfFresh(key, c.clock.Now())
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to read snapshot")
		return nil, false
	}
	if snap == nil || len(snap.Payload) == 0 {
		return nil, false
	}

	return snap.JSON(), true
}
