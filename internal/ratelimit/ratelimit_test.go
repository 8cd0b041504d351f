package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"openbadges/pkg/platform/httputil"
	"openbadges/pkg/testutil"
)

const (
	testLimit  = 3
	testWindow = time.Minute
)

type BucketStoreSuite struct {
	suite.Suite
	ctx   context.Context
	clock time.Time
	mr    *miniredis.Miniredis
	store BucketStore
	setup func()
	tick  func(time.Duration)
}

func TestInMemoryBucketStore(t *testing.T) {
	s := &BucketStoreSuite{}
	s.setup = func() {
		mem := NewInMemoryBucketStore()
		mem.now = func() time.Time { return s.clock }
		s.store = mem
		s.tick = func(d time.Duration) { s.clock = s.clock.Add(d) }
	}
	suite.Run(t, s)
}

func TestRedisBucketStore(t *testing.T) {
	s := &BucketStoreSuite{}
	s.setup = func() {
		s.mr = miniredis.RunT(s.T())
		client := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
		s.T().Cleanup(func() { _ = client.Close() })
		rs := NewRedisBucketStore(client, "test")
		rs.now = func() time.Time { return s.clock }
		s.store = rs
		s.tick = func(d time.Duration) {
			s.clock = s.clock.Add(d)
			s.mr.FastForward(d)
		}
	}
	suite.Run(t, s)
}

func (s *BucketStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.setup()
}

func (s *BucketStoreSuite) TestAllowsUpToLimit() {
	for i := range testLimit {
		res, err := s.store.Allow(s.ctx, "ip:a", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(testLimit, res.Limit)
		s.Equal(testLimit-i-1, res.Remaining)
	}

	res, err := s.store.Allow(s.ctx, "ip:a", testLimit, testWindow)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(0, res.Remaining)
	s.Equal(s.clock.Add(testWindow).Unix(), res.ResetAt.Unix())
}

func (s *BucketStoreSuite) TestKeysAreIndependent() {
	for range testLimit {
		_, err := s.store.Allow(s.ctx, "ip:a", testLimit, testWindow)
		s.Require().NoError(err)
	}
	res, err := s.store.Allow(s.ctx, "ip:b", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *BucketStoreSuite) TestWindowSlides() {
	for range testLimit {
		_, err := s.store.Allow(s.ctx, "ip:a", testLimit, testWindow)
		s.Require().NoError(err)
		s.tick(10 * time.Second)
	}
	res, err := s.store.Allow(s.ctx, "ip:a", testLimit, testWindow)
	s.Require().NoError(err)
	s.False(res.Allowed)

	// the first request falls out of the window
	s.tick(testWindow - 25*time.Second)
	res, err = s.store.Allow(s.ctx, "ip:a", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(0, res.Remaining)
}

func TestResultRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, Result{ResetAt: now.Add(30 * time.Second)}.RetryAfter(now))
	assert.Equal(t, 1, Result{ResetAt: now.Add(-time.Second)}.RetryAfter(now))
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("redis: connection refused")
}

func newRequest(ip string) *http.Request {
	return testutil.WithClientIP(httptest.NewRequest(http.MethodGet, "/ims/ob/v3p0/credentials", nil), ip)
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("rejects over the limit with status info", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := New(NewInMemoryBucketStore(), 2, testWindow, logger, WithMetrics(reg))
		h := m.Handler(ok)

		for range 2 {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, newRequest("10.0.0.1"))
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		}

		w := httptest.NewRecorder()
		h.ServeHTTP(w, newRequest("10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

		var info httputil.StatusInfo
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
		assert.Equal(t, "failure", info.CodeMajor)
		require.NotNil(t, info.CodeMinor)
		assert.Equal(t, "server_busy", info.CodeMinor.Fields[0].Value)
		assert.InDelta(t, 1, promtestutil.ToFloat64(m.rejected), 0)

		w = httptest.NewRecorder()
		h.ServeHTTP(w, newRequest("10.0.0.2"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("store failure lets the request through", func(t *testing.T) {
		h := New(failingStore{}, 1, testWindow, logger).Handler(ok)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, newRequest("10.0.0.1"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		h := New(failingStore{}, 0, testWindow, logger, WithDisabled(true)).Handler(ok)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, newRequest("10.0.0.1"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	})
}
