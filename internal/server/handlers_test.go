package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maximewewer/remotecw/internal/clockcheck"
	"github.com/maximewewer/remotecw/internal/keyer"
	testutil "github.com/maximewewer/remotecw/pkg/testing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandlers(k *fakeKeyer, clock ClockStatus) *Handlers {
	return NewHandlers(createTestConfig(), prometheus.NewRegistry(), k, clock)
}

func TestHandlers_MetricsHandler(t *testing.T) {
	registry := testutil.CreateTestRegistry()
	testGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_metric",
		Help: "Test metric",
	})
	registry.MustRegister(testGauge)
	testGauge.Set(42)

	handlers := NewHandlers(createTestConfig(), registry, &fakeKeyer{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handlers.MetricsHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_metric")
	assert.Contains(t, w.Body.String(), "42")
}

func TestHandlers_HealthHandler(t *testing.T) {
	handlers := newTestHandlers(&fakeKeyer{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handlers.HealthHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "remotecw", body["service"])
}

func TestHandlers_StatusHandler(t *testing.T) {
	k := &fakeKeyer{snap: keyer.Snapshot{
		SessionID:     "abc",
		Connected:     true,
		Peer:          "192.0.2.7:7373",
		DialBreaker:   "half-open",
		PacketDelayMs: 240,
		ClockOffsetMs: -900,
		Framing:       "newline",
	}}
	clock := fakeClock{ok: true, result: clockcheck.Result{Server: "pool.ntp.org", Offset: 3 * time.Millisecond}}
	handlers := newTestHandlers(k, clock)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	handlers.StatusHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "abc", body["session_id"])
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, float64(240), body["packet_delay_ms"])
	assert.Equal(t, float64(-900), body["clock_offset_ms"])
	assert.Equal(t, "keyer.example.net:7373", body["remote"])
	assert.Equal(t, "192.0.2.7:7373", body["peer"])
	assert.Equal(t, "half-open", body["dial_breaker"])
	require.Contains(t, body, "clock")
	assert.Equal(t, "pool.ntp.org", body["clock"].(map[string]interface{})["server"])
}

func TestHandlers_StatusHandler_NoClock(t *testing.T) {
	handlers := newTestHandlers(&fakeKeyer{}, fakeClock{})

	w := httptest.NewRecorder()
	handlers.StatusHandler(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"clock"`)
	assert.NotContains(t, w.Body.String(), `"peer"`)
}

func TestHandlers_StatusHandler_Stopped(t *testing.T) {
	handlers := newTestHandlers(&fakeKeyer{err: keyer.ErrStopped}, nil)

	w := httptest.NewRecorder()
	handlers.StatusHandler(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandlers_DelayHandler(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		delay  uint32
	}{
		{"valid", `{"packet_delay_ms": 180}`, http.StatusNoContent, 180},
		{"zero", `{"packet_delay_ms": 0}`, http.StatusNoContent, 0},
		{"missing", `{}`, http.StatusBadRequest, 0},
		{"negative", `{"packet_delay_ms": -5}`, http.StatusBadRequest, 0},
		{"too_large", `{"packet_delay_ms": 20000}`, http.StatusBadRequest, 0},
		{"unknown_field", `{"delay": 10}`, http.StatusBadRequest, 0},
		{"not_json", `delay=10`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &fakeKeyer{}
			handlers := newTestHandlers(k, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/delay", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handlers.DelayHandler(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.delay, k.delay)
		})
	}
}

func TestHandlers_SideToneHandler(t *testing.T) {
	k := &fakeKeyer{}
	handlers := newTestHandlers(k, nil)

	body := `{"enabled": true, "volume": 70, "frequency_hz": 650, "test": false}`
	req := httptest.NewRequest(http.MethodPost, "/api/sidetone", strings.NewReader(body))
	w := httptest.NewRecorder()

	handlers.SideToneHandler(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, k.sideTone)
	assert.True(t, *k.sideTone)
	assert.Equal(t, 70, k.volume)
	assert.Equal(t, 650, k.frequency)
	require.NotNil(t, k.toneTest)
	assert.False(t, *k.toneTest)
}

func TestHandlers_SideToneHandler_Partial(t *testing.T) {
	k := &fakeKeyer{}
	handlers := newTestHandlers(k, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sidetone", strings.NewReader(`{"volume": 10}`))
	w := httptest.NewRecorder()

	handlers.SideToneHandler(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"volume"}, k.Calls())
}

func TestHandlers_SideToneHandler_Invalid(t *testing.T) {
	for _, body := range []string{`{"volume": 101}`, `{"frequency_hz": 50}`} {
		k := &fakeKeyer{}
		handlers := newTestHandlers(k, nil)

		w := httptest.NewRecorder()
		handlers.SideToneHandler(w, httptest.NewRequest(http.MethodPost, "/api/sidetone", strings.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Empty(t, k.Calls())
	}
}

func TestHandlers_KeyHandler(t *testing.T) {
	k := &fakeKeyer{}
	handlers := newTestHandlers(k, nil)

	w := httptest.NewRecorder()
	handlers.KeyHandler(w, httptest.NewRequest(http.MethodPost, "/api/key", strings.NewReader(`{"down": true}`)))

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, k.keyDown)
	assert.True(t, *k.keyDown)

	w = httptest.NewRecorder()
	handlers.KeyHandler(w, httptest.NewRequest(http.MethodPost, "/api/key", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{keyer.ErrStopped, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: key_down: %w", keyer.ErrSendFailed, keyer.ErrNotConnected), http.StatusConflict},
		{fmt.Errorf("%w: ping: broken pipe", keyer.ErrSendFailed), http.StatusBadGateway},
		{fmt.Errorf("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeError(w, tt.err)
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
		assert.Contains(t, w.Body.String(), `"error"`)
	}
}

func TestHandlers_IndexHandler(t *testing.T) {
	handlers := newTestHandlers(&fakeKeyer{}, nil)

	w := httptest.NewRecorder()
	handlers.IndexHandler(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Remote CW Keyer")
	assert.Contains(t, w.Body.String(), "keyer.example.net:7373")
	assert.Contains(t, w.Body.String(), "/dev/ttyUSB0")
}
