package nse

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when the upstream answers 2xx with no body.
var ErrEmptyResponse = errors.New("empty response from NSE")

// ErrNoSessionCookie is returned when the handshake completes without the
// upstream setting any session cookie.
var ErrNoSessionCookie = errors.New("NSE did not set a session cookie")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("NSE returned status %d for %s", e.StatusCode, e.URL)
}

// SessionAcquisitionError means the handshake exhausted its attempts and the
// credential remains invalid.
type SessionAcquisitionError struct {
	Attempts int
	Err      error
}

func (e *SessionAcquisitionError) Error() string {
	return fmt.Sprintf("failed to acquire NSE session after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *SessionAcquisitionError) Unwrap() error {
	return e.Err
}

// UpstreamError means a logical fetch exhausted its retries. Err is the last
// underlying failure, which may itself be a *SessionAcquisitionError.
type UpstreamError struct {
	URL      string
	CacheKey string
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("failed to fetch %s after %d attempt(s): %v", e.CacheKey, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
