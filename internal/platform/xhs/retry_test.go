package xhs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func fastPolicy() retryPolicy {
	return retryPolicy{maxAttempts: 3, baseDelay: time.Millisecond, maxDelay: 2 * time.Millisecond}
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := fastPolicy()
	cases := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil", nil, 1, false},
		{"server error", &StatusError{Code: http.StatusBadGateway, Err: errors.New("bad gateway")}, 1, true},
		{"throttled", fmt.Errorf("wrapped: %w", &StatusError{Code: http.StatusTooManyRequests}), 2, true},
		{"forbidden", &StatusError{Code: http.StatusForbidden}, 1, false},
		{"timeout", timeoutErr{}, 1, true},
		{"no cookie", ErrNoCookie, 1, false},
		{"canceled", context.Canceled, 1, false},
		{"exhausted", &StatusError{Code: http.StatusServiceUnavailable}, 3, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, p.shouldRetry(tc.err, tc.attempt), tc.name)
	}
}

func TestBackoffIsBounded(t *testing.T) {
	t.Parallel()

	p := retryPolicy{maxAttempts: 5, baseDelay: 100 * time.Millisecond, maxDelay: 300 * time.Millisecond}
	for attempt := 1; attempt <= 5; attempt++ {
		d := p.backoff(attempt)
		require.GreaterOrEqual(t, d, 50*time.Millisecond)
		require.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestWrapRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	fetch := func(context.Context, string, string, bool) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, &StatusError{Code: http.StatusServiceUnavailable, Err: errors.New("unavailable")}
		}
		return []byte(profileFor("n1")), nil
	}
	notes, err := crawlTargets(context.Background(), crawler.CrawlRequest{Targets: []string{"c"}},
		fastPolicy().wrap(fetch, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, 3, calls)
}

func TestWrapGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	fetch := func(context.Context, string, string, bool) ([]byte, error) {
		calls++
		return nil, timeoutErr{}
	}
	_, err := fastPolicy().wrap(fetch, zap.NewNop())(context.Background(), "a", ProfileURL("c"), false)
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestWrapStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := retryPolicy{maxAttempts: 3, baseDelay: time.Hour, maxDelay: time.Hour}
	fetch := func(context.Context, string, string, bool) ([]byte, error) {
		cancel()
		return nil, &StatusError{Code: http.StatusBadGateway}
	}
	_, err := p.wrap(fetch, zap.NewNop())(ctx, "a", ProfileURL("c"), false)
	require.ErrorIs(t, err, context.Canceled)
}
