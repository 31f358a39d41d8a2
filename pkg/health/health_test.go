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

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestReadyEndpointGatedByManualFlag(t *testing.T) {
	h := New()

	rec := httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decodeStatus(t, rec).Status)

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeStatus(t, rec).Status)
}

func TestFailureThreshold(t *testing.T) {
	p := newProbe("flaky", time.Second, func(context.Context) error {
		return errors.New("boom")
	})

	ctx := context.Background()
	p.observe(ctx)
	p.observe(ctx)
	healthy, _ := p.state()
	assert.True(t, healthy, "below threshold must stay healthy")

	p.observe(ctx)
	healthy, lastErr := p.state()
	assert.False(t, healthy)
	assert.EqualError(t, lastErr, "boom")
}

func TestRecoveryAfterSingleSuccess(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	p := newProbe("db", time.Second, func(context.Context) error {
		if fail.Load() {
			return errors.New("connection refused")
		}
		return nil
	})

	ctx := context.Background()
	for i := 0; i < failureThreshold; i++ {
		p.observe(ctx)
	}
	healthy, _ := p.state()
	require.False(t, healthy)

	fail.Store(false)
	p.observe(ctx)
	healthy, _ = p.state()
	assert.True(t, healthy)
}

func TestLiveEndpointReportsFailingCheck(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, func(context.Context) error {
		return errors.New("too many goroutines")
	})
	for i := 0; i < failureThreshold; i++ {
		h.liveness[0].observe(context.Background())
	}

	rec := httptest.NewRecorder()
	h.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeStatus(t, rec)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "too many goroutines", resp.Checks["goroutines"])
}

func TestStartRunsChecksPeriodically(t *testing.T) {
	var calls atomic.Int32
	h := New()
	h.AddReadinessCheck("counter", time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 10*time.Millisecond)
	defer h.Stop()

	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	assert.True(t, h.IsReady())
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}
