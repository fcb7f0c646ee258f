package geo

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const defaultLookupTimeout = 2 * time.Second

// HTTPConfig configures the HTTP locator.
type HTTPConfig struct {
	// BaseURL of an ip-api style JSON endpoint; the IP is appended as a
	// path segment.
	BaseURL string
	// Timeout bounds each lookup. Defaults to 2s.
	Timeout time.Duration
}

// HTTPLocator queries a JSON geolocation endpoint. Private, loopback,
// and unparseable addresses short-circuit to Unknown without a request.
type HTTPLocator struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPLocator creates an HTTP-backed locator.
func NewHTTPLocator(cfg HTTPConfig, logger zerolog.Logger) *HTTPLocator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &HTTPLocator{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Lookup resolves ip, failing open to Unknown on any error.
func (l *HTTPLocator) Lookup(ctx context.Context, ip string) Location {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return Unknown
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/"+url.PathEscape(ip), nil)
	if err != nil {
		return Unknown
	}

	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.Debug().Err(err).Str("ip", ip).Msg("geo lookup failed")
		return Unknown
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		l.logger.Debug().Int("status", resp.StatusCode).Str("ip", ip).Msg("geo lookup rejected")
		return Unknown
	}

	var loc Location
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		l.logger.Debug().Err(err).Str("ip", ip).Msg("geo response malformed")
		return Unknown
	}
	if loc.CountryCode == "" {
		return Unknown
	}
	return loc
}
