package chain_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinecosystem/kinmigrate/internal/chain"
)

var errNonRetryable = errors.New("non-retryable error")

func fastRetry(attempts int) chain.RetryConfig {
	return chain.RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetry_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()
	attempts := 0
	result, err := chain.RetryWithConfig(context.Background(), fastRetry(3), func() (string, error) {
		attempts++
		return "success", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 1, attempts)
}

func TestRetry_SuccessAfterRetry(t *testing.T) {
	t.Parallel()
	attempts := 0
	result, err := chain.RetryWithConfig(context.Background(), fastRetry(3), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", chain.ErrRetryable
		}
		return "success", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableError(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, err := chain.RetryWithConfig(context.Background(), fastRetry(3), func() (string, error) {
		attempts++
		return "", errNonRetryable
	})

	require.ErrorIs(t, err, errNonRetryable)
	assert.Equal(t, 1, attempts)
}

func TestRetry_MaxAttempts(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, err := chain.RetryWithConfig(context.Background(), fastRetry(3), func() (int, error) {
		attempts++
		return 0, chain.WrapRetryable(errNonRetryable)
	})

	require.ErrorIs(t, err, chain.ErrRetryable)
	require.ErrorIs(t, err, errNonRetryable)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, err := chain.RetryWithConfig(context.Background(), chain.RetryConfig{}, func() (int, error) {
		attempts++
		return 0, chain.ErrTimeout
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := chain.RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		_, err := chain.RetryWithConfig(ctx, cfg, func() (int, error) {
			attempts++
			return 0, chain.ErrRateLimited
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
	assert.Equal(t, 1, attempts)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable", chain.ErrRetryable, true},
		{"timeout", chain.ErrTimeout, true},
		{"rate limited", chain.ErrRateLimited, true},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped", chain.WrapRetryable(errNonRetryable), true},
		{"plain", errNonRetryable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, chain.IsRetryable(tt.err))
		})
	}
	assert.NoError(t, chain.WrapRetryable(nil))
}

func TestIsRetryableStatus(t *testing.T) {
	t.Parallel()
	assert.True(t, chain.IsRetryableStatus(http.StatusTooManyRequests))
	assert.True(t, chain.IsRetryableStatus(http.StatusBadGateway))
	assert.False(t, chain.IsRetryableStatus(http.StatusOK))
	assert.False(t, chain.IsRetryableStatus(http.StatusBadRequest))
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 5*time.Second, chain.ParseRetryAfter("5"))
	assert.Equal(t, time.Duration(0), chain.ParseRetryAfter(""))
	assert.Equal(t, time.Duration(0), chain.ParseRetryAfter("soon"))
}

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()
	cfg := chain.DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.BaseDelay)
}
