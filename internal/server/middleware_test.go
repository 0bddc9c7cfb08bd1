package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/livetemplate/resultplay/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func reqFromIP(ip string) *http.Request {
	r := httptest.NewRequest("POST", "/api/format", nil)
	r.RemoteAddr = ip + ":12345"
	return r
}

// rateLimitWrap creates a rate-limited handler with a context that is
// cancelled when the test finishes, preventing goroutine leaks.
func rateLimitWrap(t *testing.T, rps float64, burst, maxIPs int, logger *zap.Logger, next http.Handler) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	mw, done := RateLimitMiddleware(ctx, RateLimitOptions{RPS: rps, Burst: burst, MaxClients: maxIPs, Logger: logger})
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return mw(next)
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRateLimitLRUEviction(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	wrapped := rateLimitWrap(t, 100, 100, 3, zap.New(core), okHandler())

	for _, ip := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		require.Equal(t, http.StatusOK, serve(wrapped, reqFromIP(ip)).Code, ip)
	}

	// A 4th IP evicts the least recently used one instead of being refused.
	assert.Equal(t, http.StatusOK, serve(wrapped, reqFromIP("4.4.4.4")).Code)
	assert.Equal(t, 1, logs.FilterMessage("rate limiter evicted least-recent clients").Len())
}

func TestRateLimitEvictedIPGetsFreshLimiter(t *testing.T) {
	wrapped := rateLimitWrap(t, 0.01, 1, 2, nil, okHandler())

	require.Equal(t, http.StatusOK, serve(wrapped, reqFromIP("1.1.1.1")).Code)

	w := serve(wrapped, reqFromIP("1.1.1.1"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())

	for _, ip := range []string{"2.2.2.2", "3.3.3.3"} {
		require.Equal(t, http.StatusOK, serve(wrapped, reqFromIP(ip)).Code, ip)
	}

	assert.Equal(t, http.StatusOK, serve(wrapped, reqFromIP("1.1.1.1")).Code, "evicted IP gets a full bucket")
}

func TestRateLimitMRUNotEvicted(t *testing.T) {
	wrapped := rateLimitWrap(t, 0.01, 1, 3, nil, okHandler())

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		require.Equal(t, http.StatusOK, serve(wrapped, reqFromIP(ip)).Code, ip)
	}

	// Touching A moves it to the front; D then evicts B.
	require.Equal(t, http.StatusTooManyRequests, serve(wrapped, reqFromIP("10.0.0.1")).Code)
	require.Equal(t, http.StatusOK, serve(wrapped, reqFromIP("10.0.0.4")).Code)

	assert.Equal(t, http.StatusTooManyRequests, serve(wrapped, reqFromIP("10.0.0.1")).Code, "A kept its exhausted bucket")
	assert.Equal(t, http.StatusOK, serve(wrapped, reqFromIP("10.0.0.2")).Code, "B was evicted")
}

func TestRateLimitConcurrentAccess(t *testing.T) {
	wrapped := rateLimitWrap(t, 1000, 1000, 100, nil, okHandler())

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ip := fmt.Sprintf("10.0.%d.%d", id/256, id%256)
			for range 10 {
				if code := serve(wrapped, reqFromIP(ip)).Code; code != http.StatusOK {
					t.Errorf("IP %s: got %d under concurrent load", ip, code)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestRateLimitCleanupStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, done := RateLimitMiddleware(ctx, RateLimitOptions{RPS: 100, Burst: 100, MaxClients: 100})

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup goroutine did not exit within 2s")
	}
}

func TestClientLimiterSweep(t *testing.T) {
	l := newClientLimiter(RateLimitOptions{RPS: 1, Burst: 1, IdleTimeout: time.Minute})
	start := time.Now()

	require.True(t, l.allow("1.1.1.1", start))
	require.True(t, l.allow("2.2.2.2", start.Add(50*time.Second)))
	require.Equal(t, 2, l.size())

	assert.Zero(t, l.sweep(start.Add(time.Minute)), "exactly the timeout is not idle yet")
	assert.Equal(t, 1, l.sweep(start.Add(61*time.Second)))
	assert.Equal(t, 1, l.size())

	assert.True(t, l.allow("1.1.1.1", start.Add(62*time.Second)), "a dropped client starts with a full bucket")
}

func TestClientLimiterSweepInterval(t *testing.T) {
	tests := []struct {
		idle time.Duration
		want time.Duration
	}{
		{time.Hour, 5 * time.Minute},
		{time.Minute, 30 * time.Second},
		{time.Second, time.Second},
	}
	for _, tt := range tests {
		l := newClientLimiter(RateLimitOptions{IdleTimeout: tt.idle})
		assert.Equal(t, tt.want, l.sweepInterval(), "idle %v", tt.idle)
	}
}

func TestRateLimitOptionsFrom(t *testing.T) {
	defaults := RateLimitOptionsFrom(nil, nil)
	assert.Equal(t, RateLimitOptions{RPS: 10, Burst: 20, MaxClients: 10000, IdleTimeout: 10 * time.Minute}, defaults)

	opts := RateLimitOptionsFrom(&config.APIConfig{RateLimit: &config.RateLimitConfig{
		RequestsPerSecond: 2,
		Burst:             3,
		MaxIPs:            4,
		IdleTimeout:       "90s",
	}}, zap.NewNop())
	assert.Equal(t, 2.0, opts.RPS)
	assert.Equal(t, 3, opts.Burst)
	assert.Equal(t, 4, opts.MaxClients)
	assert.Equal(t, 90*time.Second, opts.IdleTimeout)
	assert.NotNil(t, opts.Logger)
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantHeader string
	}{
		{"disabled", nil, "http://a.test", ""},
		{"listed", []string{"http://a.test"}, "http://a.test", "http://a.test"},
		{"not listed", []string{"http://a.test"}, "http://b.test", ""},
		{"wildcard", []string{"*"}, "http://b.test", "*"},
		{"no origin", []string{"*"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/snippets", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			w := serve(CORSMiddleware(tt.origins)(okHandler()), r)
			assert.Equal(t, tt.wantHeader, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}

	t.Run("preflight", func(t *testing.T) {
		called := false
		next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
		r := httptest.NewRequest(http.MethodOptions, "/api/format", nil)
		r.Header.Set("Origin", "http://a.test")

		w := serve(CORSMiddleware([]string{"http://a.test"})(next), r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, called)
		assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := serve(SecurityHeadersMiddleware()(okHandler()), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "connect-src 'self'")
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct", "203.0.113.7:4000", "", "", "203.0.113.7"},
		{"public peer ignores XFF", "203.0.113.7:4000", "1.2.3.4", "", "203.0.113.7"},
		{"proxy XFF first hop", "127.0.0.1:4000", "1.2.3.4, 10.0.0.1", "", "1.2.3.4"},
		{"proxy X-Real-IP", "10.0.0.2:4000", "", "5.6.7.8", "5.6.7.8"},
		{"no port", "203.0.113.9", "", "", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}

func TestRequestScheme(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "127.0.0.1:1"
	assert.Equal(t, "http", requestScheme(r))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https", requestScheme(r))

	r.RemoteAddr = "203.0.113.7:1"
	assert.Equal(t, "http", requestScheme(r), "untrusted peers cannot claim https")

	r.TLS = &tls.ConnectionState{}
	assert.Equal(t, "https", requestScheme(r))
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := middleware.RequestID(RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	serve(h, httptest.NewRequest("GET", "/docs/", nil))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/docs/", fields["path"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
	assert.EqualValues(t, 15, fields["bytes"])
	assert.NotEmpty(t, fields["request_id"])
}
