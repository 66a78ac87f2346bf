package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

const maxWhitelistResponse = 64 << 10

// WhitelistClient asks an app backend to countersign envelopes.
// The request body is {"envelope": <xdr>, "network_id": <passphrase>}; the
// response is either the same shape or the bare countersigned XDR.
type WhitelistClient struct {
	url    string
	client *http.Client
	retry  chain.RetryConfig
	logger zerolog.Logger
}

// NewWhitelistClient returns a client posting to rawURL.
func NewWhitelistClient(rawURL string, httpClient *http.Client, retry chain.RetryConfig, logger zerolog.Logger) (*WhitelistClient, error) {
	u, err := chain.ParseServiceURL(rawURL)
	if err != nil {
		return nil, kinerr.WithDetails(kinerr.ErrWhitelistFailed, map[string]string{"url": rawURL})
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WhitelistClient{
		url:    u.String(),
		client: httpClient,
		retry:  retry,
		logger: logger.With().Str("component", "whitelist").Logger(),
	}, nil
}

// Whitelist implements chain.Whitelister.
func (w *WhitelistClient) Whitelist(ctx context.Context, envelope *chain.Envelope) (*chain.Envelope, error) {
	if envelope == nil || envelope.XDR == "" {
		return nil, kinerr.Wrap(kinerr.ErrInvalidInput, "empty envelope")
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrWhitelistFailed, "encode request: %v", err)
	}

	xdr, err := chain.RetryWithConfig(ctx, w.retry, func() (string, error) {
		return w.post(ctx, body)
	})
	if err != nil {
		if kinerr.Is(err, kinerr.ErrWhitelistFailed) {
			return nil, err
		}
		return nil, kinerr.WithCause(kinerr.ErrWhitelistFailed, err, map[string]string{"url": w.url})
	}

	w.logger.Debug().Str("hash", envelope.Hash).Msg("envelope whitelisted")
	return &chain.Envelope{XDR: xdr, Hash: envelope.Hash, Network: envelope.Network}, nil
}

func (w *WhitelistClient) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return "", kinerr.Wrap(kinerr.ErrWhitelistFailed, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", chain.WrapRetryable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWhitelistResponse))
	if err != nil {
		return "", chain.WrapRetryable(err)
	}
	if chain.IsRetryableStatus(resp.StatusCode) {
		return "", chain.WrapRetryable(fmt.Errorf("whitelist service: HTTP %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", kinerr.WithDetails(kinerr.ErrWhitelistFailed, map[string]string{
			"status": fmt.Sprint(resp.StatusCode),
			"body":   strings.TrimSpace(string(data)),
		})
	}

	var out chain.Envelope
	if err := json.Unmarshal(data, &out); err == nil && out.XDR != "" {
		return out.XDR, nil
	}
	xdr := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if xdr == "" {
		return "", kinerr.Wrap(kinerr.ErrWhitelistFailed, "empty response")
	}
	return xdr, nil
}

var _ chain.Whitelister = (*WhitelistClient)(nil)
