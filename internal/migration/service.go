package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// Response codes of the migration service.
const (
	CodeSuccess                = 200
	CodeAccountNotBurned       = 4001
	CodeAccountAlreadyMigrated = 4002
	CodeInvalidPublicAddress   = 4003
	CodeAccountNotFound        = 4041
)

const maxResponseSize = 64 << 10

// Response is the body the migration service answers with.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ServiceResult is a successful migration request outcome.
type ServiceResult int

// Migration request outcomes.
const (
	// ResultMigrated means the service moved the balance now.
	ResultMigrated ServiceResult = iota
	// ResultAlreadyMigrated means an earlier request moved it.
	ResultAlreadyMigrated
	// ResultNoAccount means the legacy account never existed.
	ResultNoAccount
)

// String returns the result name.
func (r ServiceResult) String() string {
	switch r {
	case ResultMigrated:
		return "success"
	case ResultAlreadyMigrated:
		return "alreadyMigrated"
	case ResultNoAccount:
		return "noAccount"
	default:
		return "unknown"
	}
}

// Migrator asks the migration service to move an account.
type Migrator interface {
	Migrate(ctx context.Context, address string) (ServiceResult, error)
}

// Classify maps a service response onto a result. Codes other than
// success, already migrated and account not found are ErrMigrationFailed
// carrying the code and message.
func Classify(resp Response) (ServiceResult, error) {
	switch resp.Code {
	case CodeSuccess:
		return ResultMigrated, nil
	case CodeAccountAlreadyMigrated:
		return ResultAlreadyMigrated, nil
	case CodeAccountNotFound:
		return ResultNoAccount, nil
	default:
		return 0, kinerr.WithDetails(kinerr.ErrMigrationFailed, map[string]string{
			"code":    strconv.Itoa(resp.Code),
			"message": resp.Message,
		})
	}
}

// ServiceCode returns the service code carried by a migration failure,
// or 0.
func ServiceCode(err error) int {
	code, convErr := strconv.Atoi(kinerr.Detail(err, "code"))
	if convErr != nil {
		return 0
	}
	return code
}

// BreakerSettings tune the circuit breaker in front of the service. The
// breaker opens once MinRequests have been seen in a window and the failed
// share reaches FailureRatio; it half-opens after OpenTimeout.
type BreakerSettings struct {
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// DefaultBreakerSettings returns 10 requests, 70% failures and a 60s open state.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{MinRequests: 10, FailureRatio: 0.7, OpenTimeout: 60 * time.Second}
}

// Service is the HTTP client of the migration service.
type Service struct {
	base     *url.URL
	client   *http.Client
	retry    chain.RetryConfig
	settings BreakerSettings
	breaker  *gobreaker.CircuitBreaker
	logger   zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceHTTPClient sets the HTTP client.
func WithServiceHTTPClient(c *http.Client) ServiceOption {
	return func(s *Service) { s.client = c }
}

// WithServiceRetry sets the per-request retry policy.
func WithServiceRetry(cfg chain.RetryConfig) ServiceOption {
	return func(s *Service) { s.retry = cfg }
}

// WithServiceBreaker sets the circuit breaker settings.
func WithServiceBreaker(b BreakerSettings) ServiceOption {
	return func(s *Service) { s.settings = b }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l.With().Str("component", "migration-service").Logger() }
}

// NewService returns a client of the service at base.
func NewService(base *url.URL, opts ...ServiceOption) (*Service, error) {
	if base == nil {
		return nil, kinerr.ErrInvalidMigrationURL
	}
	if _, err := chain.ParseServiceURL(base.String()); err != nil {
		return nil, err
	}
	s := &Service{
		base:     base,
		client:   http.DefaultClient,
		retry:    chain.DefaultRetryConfig(),
		settings: DefaultBreakerSettings(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.breaker = newCircuitBreaker(s.settings, s.logger)
	return s, nil
}

func newCircuitBreaker(settings BreakerSettings, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "migration-service",
		Timeout: settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logger.Warn().Str("breaker", name).Msg("migration service seems down, stop allowing requests")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				logger.Info().Str("breaker", name).Msg("checking migration service status")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				logger.Info().Str("breaker", name).Msg("migration service seems ok, restart allowing requests")
			}
		},
	})
}

// URL returns the request URL for address.
func (s *Service) URL(address string) string {
	u := s.base.JoinPath("migrate")
	u.RawQuery = url.Values{"address": {address}}.Encode()
	return u.String()
}

// Migrate implements Migrator. Transport failures and 5xx answers are
// retried per the retry policy; the response is classified once.
func (s *Service) Migrate(ctx context.Context, address string) (ServiceResult, error) {
	resp, err := chain.RetryWithConfig(ctx, s.retry, func() (Response, error) {
		out, err := s.breaker.Execute(func() (interface{}, error) {
			return s.post(ctx, address)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return Response{}, kinerr.Wrap(kinerr.ErrResponseFailed, "%v", err)
			}
			return Response{}, err
		}
		return out.(Response), nil //nolint:forcetypeassert // post returns Response
	})
	if err != nil {
		if kinerr.Code(err) == "GENERAL_ERROR" || chain.IsRetryable(err) {
			err = kinerr.WithCause(kinerr.ErrResponseFailed, err, map[string]string{"address": address})
		}
		s.logger.Warn().Err(err).Str("address", address).Msg("migration request failed")
		return 0, err
	}

	result, err := Classify(resp)
	if err != nil {
		s.logger.Warn().Int("code", resp.Code).Str("message", resp.Message).Str("address", address).Msg("migration rejected")
		return 0, err
	}
	s.logger.Info().Str("address", address).Str("result", result.String()).Msg("migration request succeeded")
	return result, nil
}

func (s *Service) post(ctx context.Context, address string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL(address), nil)
	if err != nil {
		return Response{}, kinerr.Wrap(kinerr.ErrInvalidMigrationURL, "%v", err)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, chain.WrapRetryable(err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return Response{}, chain.WrapRetryable(err)
	}
	if chain.IsRetryableStatus(httpResp.StatusCode) {
		return Response{}, chain.WrapRetryable(fmt.Errorf("migration service: HTTP %d", httpResp.StatusCode))
	}
	return decodeResponse(httpResp.StatusCode, data)
}

func decodeResponse(status int, data []byte) (Response, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		if status >= http.StatusBadRequest {
			return Response{}, kinerr.WithDetails(kinerr.ErrResponseFailed, map[string]string{"status": strconv.Itoa(status)})
		}
		return Response{}, kinerr.ErrResponseEmpty
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, kinerr.Wrap(kinerr.ErrResponseDecodingFailed, "%v", err)
	}
	if resp.Code == 0 {
		return Response{}, kinerr.WithDetails(kinerr.ErrResponseDecodingFailed, map[string]string{"status": strconv.Itoa(status)})
	}
	return resp, nil
}

var _ Migrator = (*Service)(nil)
