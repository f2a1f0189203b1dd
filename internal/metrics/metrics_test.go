package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wagate/gateway/internal/models"
)

func newTestRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	return NewWithRegistry(registry, registry)
}

func TestRecorder_SessionGauge(t *testing.T) {
	r := newTestRecorder()

	steps := []models.Transition{
		{From: models.SessionStateAbsent, To: models.SessionStateInitializing},
		{From: models.SessionStateInitializing, To: models.SessionStateAwaitingScan},
		{From: models.SessionStateAwaitingScan, To: models.SessionStateReady},
	}
	for _, step := range steps {
		r.OnTransition(step)
	}

	assert.Equal(t, float64(0), testutil.ToFloat64(r.sessions.WithLabelValues("initializing")))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.sessions.WithLabelValues("awaiting_scan")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.sessions.WithLabelValues("ready")))

	r.OnTransition(models.Transition{From: models.SessionStateReady, To: models.SessionStateDisconnected})
	assert.Equal(t, float64(0), testutil.ToFloat64(r.sessions.WithLabelValues("ready")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.transitions.WithLabelValues("disconnected")))
}

func TestRecorder_Outcomes(t *testing.T) {
	r := newTestRecorder()

	r.OnMessage("t1", nil)
	r.OnMessage("t1", errors.New("socket closed"))
	r.OnMessage("t1", nil)
	assert.Equal(t, float64(2), testutil.ToFloat64(r.messages.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.messages.WithLabelValues("error")))

	r.OnHandshake("t1", nil)
	r.OnHandshake("t1", models.ErrHandshakeTimeout)
	r.OnHandshake("t1", fmt.Errorf("%w: %w", models.ErrHandshakeSuperseded, models.ErrSessionDisconnected))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.qrWaits.WithLabelValues("delivered")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.qrWaits.WithLabelValues("timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.qrWaits.WithLabelValues("superseded")))

	r.OnCleanup("t1", nil)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.cleanups.WithLabelValues("success")))
}

func TestRecorder_Handler(t *testing.T) {
	r := newTestRecorder()
	r.OnMessage("t1", nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `wagate_messages_total{result="success"} 1`)
	assert.Contains(t, rec.Body.String(), `wagate_sessions{state="ready"} 0`)
}
