package chain

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kinecosystem/kinmigrate/internal/metrics"
)

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	// Timeout bounds the wait for response headers. Streams stay open
	// after headers arrive, so no whole-request deadline is applied.
	Timeout   time.Duration   `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// DefaultHTTPConfig returns a 30s header timeout and the default rate limit.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:   30 * time.Second,
		RateLimit: DefaultRateLimitConfig(),
	}
}

// Transport is an http.RoundTripper that rate limits per host and records
// every round trip.
type Transport struct {
	Base    http.RoundTripper
	Limiter *RateLimiter
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context(), host); err != nil {
			return nil, err
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	elapsed := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if t.Metrics != nil {
		t.Metrics.RecordRPCCall(host, status, elapsed, err)
	}
	t.Logger.Debug().
		Str("method", req.Method).
		Str("host", host).
		Str("path", req.URL.Path).
		Int("status", status).
		Dur("elapsed", elapsed).
		Err(err).
		Msg("http request")

	return resp, err
}

// NewHTTPClient returns a client whose transport applies cfg.
func NewHTTPClient(cfg HTTPConfig, m *metrics.Metrics, logger zerolog.Logger) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib default
	if cfg.Timeout > 0 {
		base.ResponseHeaderTimeout = cfg.Timeout
	}
	return &http.Client{
		Transport: &Transport{
			Base:    base,
			Limiter: NewRateLimiterFromConfig(cfg.RateLimit),
			Metrics: m,
			Logger:  logger.With().Str("component", "http").Logger(),
		},
	}
}
