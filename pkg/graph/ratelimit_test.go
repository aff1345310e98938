package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"absent", "", 0},
		{"seconds", "7", 7 * time.Second},
		{"http date", now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{"garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			assert.Equal(t, tt.want, parseRetryAfter(h, now))
		})
	}
}

func TestRateLimiterRecordRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRateLimiter(0, 0)
	r.now = func() time.Time { return now }

	assert.True(t, r.Allow())
	r.RecordRetryAfter(10 * time.Second)
	assert.Equal(t, now.Add(10*time.Second), r.RetryAt())
	assert.False(t, r.Allow())

	r.RecordRetryAfter(time.Second)
	assert.Equal(t, now.Add(10*time.Second), r.RetryAt(), "a shorter pause never shortens the current one")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}

func TestClientRecordsThrottling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(t, server, WithRateLimit(100, 10))
	before := time.Now()
	_, err := c.Request(http.MethodGet, "me").Send(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryLater)
	assert.True(t, c.limiter.RetryAt().After(before.Add(time.Second)))
}
