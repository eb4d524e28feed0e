package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
)

var fast = Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

type statusError int

func (e statusError) Error() string   { return http.StatusText(int(e)) }
func (e statusError) StatusCode() int { return int(e) }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestSale_Retry_DefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, cfg.BaseBackoff)
	require.Equal(t, 5*time.Second, cfg.MaxBackoff)
}

func TestSale_Retry_Do(t *testing.T) {
	t.Parallel()

	transient := errors.New("connection reset by peer")
	tests := []struct {
		name     string
		failures int
		failWith error
		wantErr  bool
		wantRuns int
	}{
		{name: "first attempt", failures: 0, wantRuns: 1},
		{name: "after retries", failures: 2, failWith: transient, wantRuns: 3},
		{name: "exhausted", failures: 5, failWith: transient, wantErr: true, wantRuns: 3},
		{name: "not retryable", failures: 5, failWith: errors.New("bad input"), wantErr: true, wantRuns: 1},
		{name: "sale error", failures: 5, failWith: saleerr.StateErr("finalize", saleerr.ErrAlreadyFinalized), wantErr: true, wantRuns: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runs := 0
			err := Do(context.Background(), fast, func() error {
				runs++
				if runs <= tt.failures {
					return tt.failWith
				}
				return nil
			})
			require.Equal(t, tt.wantRuns, runs)
			if tt.wantErr {
				require.ErrorIs(t, err, tt.failWith)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSale_Retry_Do_ExhaustedErrorNamesAttempts(t *testing.T) {
	t.Parallel()

	err := Do(context.Background(), fast, func() error { return errors.New("connection refused") })
	require.ErrorContains(t, err, "failed after 3 attempts")
}

func TestSale_Retry_Do_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: time.Second}

	runs := 0
	err := Do(ctx, cfg, func() error {
		runs++
		cancel()
		return errors.New("connection refused")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, runs)
}

func TestSale_Retry_Do_CustomRetryable(t *testing.T) {
	t.Parallel()

	cfg := fast
	cfg.MaxAttempts = 4
	cfg.Retryable = func(err error) bool { return err.Error() == "again" }

	runs := 0
	err := Do(context.Background(), cfg, func() error {
		runs++
		if runs < 3 {
			return errors.New("again")
		}
		return errors.New("stop")
	})
	require.EqualError(t, err, "stop")
	require.Equal(t, 3, runs)
}

func TestSale_Retry_Do_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	runs := 0
	_ = Do(context.Background(), Config{}, func() error {
		runs++
		return errors.New("connection refused")
	})
	require.Equal(t, 1, runs)
}

func TestSale_Retry_IsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: false},
		{name: "net timeout", err: &net.OpError{Op: "read", Err: timeoutError{}}, want: true},
		{name: "connection refused text", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "eof text", err: errors.New("unexpected EOF"), want: true},
		{name: "pool closed", err: errors.New("closed pool: pool is closed"), want: true},
		{name: "plain", err: errors.New("syntax error at or near"), want: false},
		{name: "429", err: statusError(http.StatusTooManyRequests), want: true},
		{name: "500", err: statusError(http.StatusInternalServerError), want: true},
		{name: "503 wrapped", err: fmt.Errorf("get: %w", statusError(http.StatusServiceUnavailable)), want: true},
		{name: "400", err: statusError(http.StatusBadRequest), want: false},
		{name: "404", err: statusError(http.StatusNotFound), want: false},
		{name: "validation", err: saleerr.Validationf("startStage", "rate must be greater than zero"), want: false},
		{name: "arithmetic behind timeout text", err: fmt.Errorf("timeout: %w", saleerr.ArithmeticErr("buyTokens", saleerr.ErrUnderflow)), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestSale_Retry_CalculateBackoff(t *testing.T) {
	t.Parallel()

	base, max := 100*time.Millisecond, time.Second
	for attempt, full := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second} {
		for i := 0; i < 20; i++ {
			got := calculateBackoff(base, max, attempt)
			require.GreaterOrEqual(t, got, full/2, "attempt %d", attempt)
			require.Less(t, got, full+1, "attempt %d", attempt)
		}
	}

	// Shifts past the width of time.Duration clamp to max.
	require.LessOrEqual(t, calculateBackoff(base, max, 80), max)
}
