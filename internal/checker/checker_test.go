package checker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IliaW/link-repair-kit/config"
	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/IliaW/link-repair-kit/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestChecker(t *testing.T, timeout time.Duration) *HttpChecker {
	t.Helper()
	client := NewHttpClient(&config.HttpClientConfig{RequestTimeout: timeout})
	return NewHttpChecker(client, &config.CheckerConfig{UserAgent: "link-repair-kit-test"}, nil,
		telemetry.NewNoopMetrics().CheckerMetrics)
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/missing", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/ua", func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "link-repair-kit-test" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckStatusCodes(t *testing.T) {
	srv := newSite(t)
	c := newTestChecker(t, 5*time.Second)

	tests := []struct {
		path   string
		code   int
		broken bool
	}{
		{"/ok", http.StatusOK, false},
		{"/missing", http.StatusNotFound, true},
		{"/moved", http.StatusNotFound, true},
		{"/ua", http.StatusNoContent, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := c.Check(context.Background(), srv.URL+tt.path)
			assert.Equal(t, srv.URL+tt.path, res.URL)
			assert.Equal(t, tt.code, res.StatusCode)
			assert.False(t, res.IsError())
			assert.Equal(t, tt.broken, res.IsBroken())
			assert.False(t, res.CheckedAt.IsZero())
		})
	}
}

func TestCheckTransportErrorIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	c := newTestChecker(t, 5*time.Second)

	res := c.Check(context.Background(), addr+"/gone")

	assert.True(t, res.IsError())
	assert.Zero(t, res.StatusCode)
	assert.True(t, strings.HasPrefix(res.Error, "Error: "))
	assert.True(t, res.IsBroken())
}

func TestCheckTimeout(t *testing.T) {
	srv := newSite(t)
	c := newTestChecker(t, 100*time.Millisecond)

	res := c.Check(context.Background(), srv.URL+"/slow")

	assert.True(t, res.IsError())
}

func TestCheckInvalidURL(t *testing.T) {
	c := newTestChecker(t, time.Second)

	res := c.Check(context.Background(), "http://bad host/")

	assert.True(t, res.IsError())
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]model.ReachabilityResult
}

func (m *memoryCache) GetResult(url string) (*model.ReachabilityResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[url]
	if !ok {
		return nil, false
	}
	return &r, true
}

func (m *memoryCache) SetResult(r *model.ReachabilityResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[r.URL] = *r
}

func (m *memoryCache) Close() {}

func TestCheckUsesCache(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()
	c := newTestChecker(t, time.Second)
	c.Cache = &memoryCache{items: make(map[string]model.ReachabilityResult)}

	first := c.Check(context.Background(), srv.URL)
	second := c.Check(context.Background(), srv.URL)

	require.Equal(t, http.StatusGone, first.StatusCode)
	assert.Equal(t, first.StatusCode, second.StatusCode)
	assert.Equal(t, 1, hits)
}

func TestCheckDoesNotCacheTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	c := newTestChecker(t, time.Second)
	cache := &memoryCache{items: make(map[string]model.ReachabilityResult)}
	c.Cache = cache

	res := c.Check(context.Background(), addr+"/gone")

	require.True(t, res.IsError())
	assert.Empty(t, cache.items)
}

func TestNewRateLimiter(t *testing.T) {
	unlimited := NewRateLimiter(&config.CheckerConfig{})
	assert.Equal(t, rate.Inf, unlimited.Limit())

	limited := NewRateLimiter(&config.CheckerConfig{RequestsLimit: 10, TimeInterval: time.Second})
	assert.InDelta(t, 10.0, float64(limited.Limit()), 0.001)
	assert.Equal(t, 10, limited.Burst())
}
