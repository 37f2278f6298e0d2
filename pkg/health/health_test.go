package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type flakyPinger struct {
	err atomic.Pointer[error]
}

func (p *flakyPinger) set(err error) { p.err.Store(&err) }

func (p *flakyPinger) Ping(context.Context) error {
	if e := p.err.Load(); e != nil {
		return *e
	}
	return nil
}

// --- Helpers ---

type probeBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func probe(t *testing.T, endpoint http.HandlerFunc) (int, probeBody) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body probeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

// --- Tests ---

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, GoroutineCountCheck(1_000_000))

	code, body := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Checks)
}

func TestCheck_Thresholds(t *testing.T) {
	p := &flakyPinger{}
	p.set(errors.New("connection refused"))

	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("postgres", time.Second, PingCheck(p))
	c := h.readiness[0]
	ctx := context.Background()

	for i := 1; i < FailureThreshold; i++ {
		c.run(ctx)
		assert.True(t, h.IsReady(), "failure %d is below threshold", i)
	}
	c.run(ctx)
	assert.False(t, h.IsReady())

	code, body := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, map[string]string{"postgres": "connection refused"}, body.Checks)

	p.set(nil)
	c.run(ctx)
	assert.True(t, h.IsReady())
}

func TestReadyEndpoint_NotReady(t *testing.T) {
	h := New()

	code, body := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	code, body = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}

func TestRun(t *testing.T) {
	var calls atomic.Int32
	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("redis", time.Second, func(context.Context) error {
		calls.Add(1)
		return errors.New("down")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, calls.Load(), int32(FailureThreshold))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestCheck_Timeout(t *testing.T) {
	h := New()
	h.AddLivenessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c := h.liveness[0]
	for range FailureThreshold {
		c.run(context.Background())
	}

	code, body := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, context.DeadlineExceeded.Error(), body.Checks["slow"])
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}
