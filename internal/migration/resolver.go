package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// VersionResolver answers which blockchain version an app currently runs on.
type VersionResolver interface {
	ResolveVersion(ctx context.Context) (chain.Version, error)
}

// FixedVersion always resolves to itself.
type FixedVersion chain.Version

// ResolveVersion implements VersionResolver.
func (v FixedVersion) ResolveVersion(context.Context) (chain.Version, error) {
	return chain.Version(v), nil
}

// backend version numbers as served by the app backend.
const (
	backendCoreVersion = 2
	backendSDKVersion  = 3
)

// HTTPResolver asks an app backend for the version of an app and address
// at GET {base}/migration/info/{appID}/{address}. The body is either
// {"version": n} or a bare n, where 2 is Kin Core and 3 is Kin SDK.
type HTTPResolver struct {
	base    *url.URL
	appID   string
	address string
	client  *http.Client
	retry   chain.RetryConfig
	logger  zerolog.Logger
}

// NewHTTPResolver returns a resolver for appID and address.
func NewHTTPResolver(base *url.URL, appID, address string, client *http.Client, retry chain.RetryConfig, logger zerolog.Logger) (*HTTPResolver, error) {
	if base == nil {
		return nil, kinerr.ErrInvalidMigrationURL
	}
	if _, err := chain.ParseServiceURL(base.String()); err != nil {
		return nil, err
	}
	if err := chain.ValidateAppID(appID); err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPResolver{
		base:    base,
		appID:   appID,
		address: address,
		client:  client,
		retry:   retry,
		logger:  logger.With().Str("component", "version-resolver").Logger(),
	}, nil
}

// URL returns the request URL.
func (r *HTTPResolver) URL() string {
	return r.base.JoinPath("migration", "info", r.appID, r.address).String()
}

// ResolveVersion implements VersionResolver.
func (r *HTTPResolver) ResolveVersion(ctx context.Context) (chain.Version, error) {
	v, err := chain.RetryWithConfig(ctx, r.retry, func() (chain.Version, error) {
		return r.fetch(ctx)
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("version lookup failed")
		return 0, err
	}
	r.logger.Debug().Str("version", v.String()).Msg("version resolved")
	return v, nil
}

func (r *HTTPResolver) fetch(ctx context.Context) (chain.Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL(), nil)
	if err != nil {
		return 0, kinerr.Wrap(kinerr.ErrInvalidMigrationURL, "%v", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, chain.WrapRetryable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, chain.WrapRetryable(err)
	}
	switch {
	case chain.IsRetryableStatus(resp.StatusCode):
		return 0, chain.WrapRetryable(fmt.Errorf("version lookup: HTTP %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return 0, kinerr.WithDetails(kinerr.ErrResponseFailed, map[string]string{"status": strconv.Itoa(resp.StatusCode)})
	}
	return parseVersion(data)
}

func parseVersion(data []byte) (chain.Version, error) {
	body := strings.TrimSpace(string(data))
	if body == "" {
		return 0, kinerr.ErrResponseEmpty
	}

	n, err := strconv.Atoi(body)
	if err != nil {
		var payload struct {
			Version json.Number `json:"version"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return 0, kinerr.Wrap(kinerr.ErrResponseDecodingFailed, "%v", err)
		}
		n64, err := payload.Version.Int64()
		if err != nil {
			return 0, kinerr.Wrap(kinerr.ErrResponseDecodingFailed, "version %q", payload.Version)
		}
		n = int(n64)
	}

	switch n {
	case backendCoreVersion:
		return chain.KinCore, nil
	case backendSDKVersion:
		return chain.KinSDK, nil
	default:
		return 0, kinerr.Wrap(kinerr.ErrUnexpectedCondition, "backend reported version %d", n)
	}
}

// DelegateFuncs builds a Delegate from a resolver and callbacks. Nil
// callbacks are skipped.
type DelegateFuncs struct {
	Resolver VersionResolver
	OnStart  func()
	OnReady  func(Outcome)
	OnError  func(error)
}

// NeedsVersion implements Delegate.
func (d DelegateFuncs) NeedsVersion(ctx context.Context) (chain.Version, error) {
	if d.Resolver == nil {
		return 0, kinerr.ErrMissingDelegate
	}
	return d.Resolver.ResolveVersion(ctx)
}

// DidStart implements Delegate.
func (d DelegateFuncs) DidStart() {
	if d.OnStart != nil {
		d.OnStart()
	}
}

// Ready implements Delegate.
func (d DelegateFuncs) Ready(o Outcome) {
	if d.OnReady != nil {
		d.OnReady(o)
	}
}

// Error implements Delegate.
func (d DelegateFuncs) Error(err error) {
	if d.OnError != nil {
		d.OnError(err)
	}
}

var (
	_ VersionResolver = FixedVersion(chain.KinSDK)
	_ VersionResolver = (*HTTPResolver)(nil)
	_ Delegate        = DelegateFuncs{}
)
