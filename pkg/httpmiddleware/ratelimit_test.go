package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestLimiter(t *testing.T, cfg RateLimitConfig) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rl := NewRateLimiter(client, cfg)
	now := time.Date(2026, 3, 11, 10, 0, 30, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, mr
}

func request(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimit_UnderLimit(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimitConfig{Max: 3, Window: time.Minute})
	handler := rl.Middleware()(okHandler())

	for i := range 3 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, request("192.168.1.1:12345"))

		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, []string{"2", "1", "0"}[i], w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "1773223260", w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimitConfig{Max: 2, Window: time.Minute})
	handler := rl.Middleware()(okHandler())

	for range 2 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, request("10.0.0.1:9999"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, request("10.0.0.1:9999"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimitConfig{Max: 1, Window: time.Minute})
	handler := rl.Middleware()(okHandler())

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, request(addr))
		assert.Equal(t, http.StatusOK, w.Code, addr)
	}
}

func TestRateLimit_WindowRolls(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimitConfig{Max: 1, Window: time.Minute})
	handler := rl.Middleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, request("10.0.0.1:1"))
	require.Equal(t, http.StatusOK, w.Code)

	next := rl.now().Add(time.Minute)
	rl.now = func() time.Time { return next }

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, request("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	rl, mr := newTestLimiter(t, RateLimitConfig{Max: 1, Window: time.Minute})
	mr.Close()
	handler := rl.Middleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, request("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "forwarded chain", header: map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.1"}, remote: "10.0.0.9:1", want: "203.0.113.1"},
		{name: "real ip", header: map[string]string{"X-Real-IP": "203.0.113.2"}, remote: "10.0.0.9:1", want: "203.0.113.2"},
		{name: "remote addr", remote: "198.51.100.7:4444", want: "198.51.100.7"},
		{name: "remote without port", remote: "198.51.100.7", want: "198.51.100.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(tt.remote)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
