package nse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/marketdash/internal/clock"
)

const (
	defaultSessionTTL      = time.Second
	defaultSessionRetries  = 2
	defaultSessionBackoff  = time.Second
	defaultHandshakeDelay  = time.Second
	defaultReferencePath   = "/get-quotes/equity?symbol=SBIN"
	handshakeFlightKey     = "handshake"
	maxHandshakeBodyToRead = 1 << 20
)

// Session supplies the shared credential to data requests.
type Session interface {
	// EnsureValidSession reuses a fresh credential or performs the handshake.
	EnsureValidSession(ctx context.Context) error
	// Decorate sets the browser headers and current session cookie on req.
	Decorate(req *http.Request)
	// Invalidate clears the credential so the next use re-handshakes.
	Invalidate()
}

// SessionConfig tunes the handshake.
type SessionConfig struct {
	BaseURL        string
	ReferencePath  string
	TTL            time.Duration
	Retries        int
	Backoff        time.Duration // attempt * Backoff between handshake attempts
	HandshakeDelay time.Duration // pause between landing page and reference page
}

// SessionStatus is a point-in-time view of the credential.
type SessionStatus struct {
	Valid         bool      `json:"valid"`
	Generation    string    `json:"generation,omitempty"`
	AcquiredAt    time.Time `json:"acquired_at,omitempty"`
	Handshakes    int64     `json:"handshakes"`
	Invalidations int64     `json:"invalidations"`
}

// SessionManager owns the process-wide NSE session cookie.
type SessionManager struct {
	cfg        SessionConfig
	httpClient *http.Client
	clock      clock.Clock
	log        zerolog.Logger

	mu         sync.RWMutex
	token      string
	acquiredAt time.Time
	generation string

	flight        singleflight.Group
	handshakes    atomic.Int64
	invalidations atomic.Int64
}

// NewSessionManager creates a session manager. Zero config values take defaults.
func NewSessionManager(cfg SessionConfig, httpClient *http.Client, clk clock.Clock, log zerolog.Logger) *SessionManager {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ReferencePath == "" {
		cfg.ReferencePath = defaultReferencePath
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSessionTTL
	}
	if cfg.Retries < 1 {
		cfg.Retries = defaultSessionRetries
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = defaultSessionBackoff
	}
	if cfg.HandshakeDelay < 0 {
		cfg.HandshakeDelay = defaultHandshakeDelay
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultRequestTimeout)
	}
	if clk == nil {
		clk = clock.New()
	}

	return &SessionManager{
		cfg:        cfg,
		httpClient: httpClient,
		clock:      clk,
		log:        log.With().Str("component", "nse_session").Logger(),
	}
}

// ReferenceURL is the page used as Referer and as the second handshake step.
func (s *SessionManager) ReferenceURL() string {
	return s.cfg.BaseURL + s.cfg.ReferencePath
}

// EnsureValidSession returns immediately when the credential is fresh.
// Otherwise concurrent callers share a single handshake.
func (s *SessionManager) EnsureValidSession(ctx context.Context) error {
	if s.isValid(s.clock.Now()) {
		return nil
	}

	// The handshake outlives any single caller's cancellation since other
	// callers may be waiting on it; each request is still bounded by the client timeout.
	flightCtx := context.WithoutCancel(ctx)

	ch := s.flight.DoChan(handshakeFlightKey, func() (interface{}, error) {
		if s.isValid(s.clock.Now()) {
			return nil, nil
		}
		return nil, s.acquire(flightCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Decorate applies browser headers, Referer and the session cookie.
func (s *SessionManager) Decorate(req *http.Request) {
	applyBrowserHeaders(req.Header, s.ReferenceURL())

	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token != "" {
		req.Header.Set("Cookie", token)
	}
}

// Invalidate clears the token and its timestamp.
func (s *SessionManager) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.acquiredAt = time.Time{}
	s.generation = ""
	s.mu.Unlock()

	s.invalidations.Add(1)
	s.log.Debug().Msg("Session invalidated")
}

// Status reports the credential state.
func (s *SessionManager) Status() SessionStatus {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionStatus{
		Valid:         s.validLocked(now),
		Generation:    s.generation,
		AcquiredAt:    s.acquiredAt,
		Handshakes:    s.handshakes.Load(),
		Invalidations: s.invalidations.Load(),
	}
}

func (s *SessionManager) isValid(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validLocked(now)
}

func (s *SessionManager) validLocked(now time.Time) bool {
	if s.token == "" || s.acquiredAt.IsZero() {
		return false
	}
	return now.Sub(s.acquiredAt) < s.cfg.TTL
}

// acquire runs the handshake with linear backoff between attempts.
func (s *SessionManager) acquire(ctx context.Context) error {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		attempts = attempt

		token, err := s.handshake(ctx)
		if err == nil {
			s.store(token)
			return nil
		}

		lastErr = err
		s.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", s.cfg.Retries).
			Msg("Session handshake failed")

		if attempt == s.cfg.Retries {
			break
		}
		if err := s.clock.Sleep(ctx, time.Duration(attempt)*s.cfg.Backoff); err != nil {
			lastErr = err
			break
		}
	}

	s.log.Error().Err(lastErr).Int("attempts", attempts).Msg("Giving up on session handshake")
	return &SessionAcquisitionError{Attempts: attempts, Err: lastErr}
}

// handshake visits the landing page, pauses, then visits the reference page
// forwarding the landing cookies. The reference page must set a cookie.
func (s *SessionManager) handshake(ctx context.Context) (string, error) {
	s.handshakes.Add(1)

	landing, err := s.visit(ctx, s.cfg.BaseURL+"/", acceptPage, "")
	if err != nil {
		return "", fmt.Errorf("landing page: %w", err)
	}

	if err := s.clock.Sleep(ctx, s.cfg.HandshakeDelay); err != nil {
		return "", err
	}

	reference, err := s.visit(ctx, s.ReferenceURL(), acceptAny, cookieHeader(landing))
	if err != nil {
		return "", fmt.Errorf("reference page: %w", err)
	}
	if len(reference) == 0 {
		return "", ErrNoSessionCookie
	}

	return cookieHeader(landing, reference), nil
}

func (s *SessionManager) visit(ctx context.Context, rawURL, accept, cookie string) ([]*http.Cookie, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	applyBrowserHeaders(req.Header, s.ReferenceURL())
	req.Header.Set("Accept", accept)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxHandshakeBodyToRead))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	return resp.Cookies(), nil
}

func (s *SessionManager) store(token string) {
	now := s.clock.Now()
	generation := uuid.NewString()

	s.mu.Lock()
	s.token = token
	s.acquiredAt = now
	s.generation = generation
	s.mu.Unlock()

	s.log.Info().Str("generation", generation).Msg("Session cookies refreshed")
}
