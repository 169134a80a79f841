package nse

import (
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultDialTimeout         = 5 * time.Second
	defaultKeepAlive           = 15 * time.Second
	defaultTLSHandshakeTimeout = 5 * time.Second
	defaultIdleConnTimeout     = 30 * time.Second
	defaultMaxIdleConnsPerHost = 10

	// DefaultRequestTimeout bounds a single upstream attempt.
	DefaultRequestTimeout = 15 * time.Second
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	acceptAny  = "*/*"
	acceptPage = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
)

// browserHeaders mimic a desktop Chrome XHR. Accept-Encoding is left to the
// transport so that gzip bodies are decoded transparently.
var browserHeaders = map[string]string{
	"User-Agent":         userAgent,
	"Accept":             acceptAny,
	"Accept-Language":    "en-US,en;q=0.9",
	"sec-ch-ua":          `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
	"sec-ch-ua-mobile":   "?0",
	"sec-ch-ua-platform": `"Windows"`,
	"Sec-Fetch-Dest":     "empty",
	"Sec-Fetch-Mode":     "cors",
	"Sec-Fetch-Site":     "same-origin",
}

// NewHTTPClient builds the client shared by the handshake and data requests.
// It has no cookie jar: the session cookie is managed explicitly.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	dialer := &net.Dialer{
		Timeout:   defaultDialTimeout,
		KeepAlive: defaultKeepAlive,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
		IdleConnTimeout:     defaultIdleConnTimeout,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func applyBrowserHeaders(h http.Header, referer string) {
	for k, v := range browserHeaders {
		h.Set(k, v)
	}
	if referer != "" {
		h.Set("Referer", referer)
	}
}

// cookieHeader merges cookies into a Cookie header value. Later cookies
// replace earlier ones with the same name; order of first appearance is kept.
func cookieHeader(groups ...[]*http.Cookie) string {
	values := make(map[string]string)
	var order []string

	for _, cookies := range groups {
		for _, c := range cookies {
			if c.Name == "" {
				continue
			}
			if _, seen := values[c.Name]; !seen {
				order = append(order, c.Name)
			}
			values[c.Name] = c.Value
		}
	}

	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, name+"="+values[name])
	}
	return strings.Join(parts, "; ")
}
