package server

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/maximewewer/remotecw/internal/clockcheck"
	"github.com/maximewewer/remotecw/internal/config"
	"github.com/maximewewer/remotecw/internal/keyer"
	"github.com/maximewewer/remotecw/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds control request bodies
const maxBodyBytes = 4096

// Keyer is the session surface exposed over HTTP
type Keyer interface {
	Snapshot(ctx context.Context) (keyer.Snapshot, error)
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	OpenKeyLine(ctx context.Context) error
	CloseKeyLine(ctx context.Context) error
	Calibrate(ctx context.Context) error
	Ping(ctx context.Context) error
	SetPacketDelay(ctx context.Context, ms uint32) error
	SetSideTone(ctx context.Context, enabled bool) error
	SetVolume(ctx context.Context, level int) error
	SetFrequency(ctx context.Context, hz int) error
	ManualKey(ctx context.Context, down bool) error
	ToneTest(ctx context.Context, on bool) error
}

// ClockStatus reports the latest local clock check
type ClockStatus interface {
	Last() (clockcheck.Result, bool)
}

// Handlers contains HTTP request handlers
type Handlers struct {
	config   *config.Config
	registry *prometheus.Registry
	keyer    Keyer
	clock    ClockStatus
}

// NewHandlers creates a new handlers instance. clock may be nil.
func NewHandlers(cfg *config.Config, registry *prometheus.Registry, k Keyer, clock ClockStatus) *Handlers {
	return &Handlers{
		config:   cfg,
		registry: registry,
		keyer:    k,
		clock:    clock,
	}
}

// MetricsHandler serves Prometheus metrics
func (h *Handlers) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	handler := promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{
		ErrorLog:      &loggerAdapter{},
		ErrorHandling: promhttp.ContinueOnError,
	})

	handler.ServeHTTP(w, r)
}

// HealthHandler returns health status
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "remotecw"})
}

type statusResponse struct {
	keyer.Snapshot
	Remote string             `json:"remote"`
	Clock  *clockcheck.Result `json:"clock,omitempty"`
}

// StatusHandler returns the session snapshot
func (h *Handlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.keyer.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := statusResponse{Snapshot: snap, Remote: h.config.Network.Address()}
	if h.clock != nil {
		if res, ok := h.clock.Last(); ok {
			resp.Clock = &res
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// action adapts a body-less session command
func (h *Handlers) action(fn func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type delayRequest struct {
	PacketDelayMs *int `json:"packet_delay_ms"`
}

// DelayHandler overrides the packet delay
func (h *Handlers) DelayHandler(w http.ResponseWriter, r *http.Request) {
	var req delayRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PacketDelayMs == nil || *req.PacketDelayMs < 0 || *req.PacketDelayMs > 10000 {
		writeMessage(w, http.StatusBadRequest, "packet_delay_ms must be between 0 and 10000")
		return
	}

	if err := h.keyer.SetPacketDelay(r.Context(), uint32(*req.PacketDelayMs)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sideToneRequest struct {
	Enabled     *bool `json:"enabled"`
	Volume      *int  `json:"volume"`
	FrequencyHz *int  `json:"frequency_hz"`
	Test        *bool `json:"test"`
}

// SideToneHandler changes any of the side-tone settings present in the body
func (h *Handlers) SideToneHandler(w http.ResponseWriter, r *http.Request) {
	var req sideToneRequest
	if !decode(w, r, &req) {
		return
	}

	if req.Volume != nil && (*req.Volume < 0 || *req.Volume > 100) {
		writeMessage(w, http.StatusBadRequest, "volume must be between 0 and 100")
		return
	}
	if req.FrequencyHz != nil && (*req.FrequencyHz < 100 || *req.FrequencyHz > 4000) {
		writeMessage(w, http.StatusBadRequest, "frequency_hz must be between 100 and 4000")
		return
	}

	ctx := r.Context()
	var err error
	if req.Enabled != nil {
		err = errors.Join(err, h.keyer.SetSideTone(ctx, *req.Enabled))
	}
	if req.Volume != nil {
		err = errors.Join(err, h.keyer.SetVolume(ctx, *req.Volume))
	}
	if req.FrequencyHz != nil {
		err = errors.Join(err, h.keyer.SetFrequency(ctx, *req.FrequencyHz))
	}
	if req.Test != nil {
		err = errors.Join(err, h.keyer.ToneTest(ctx, *req.Test))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type keyRequest struct {
	Down *bool `json:"down"`
}

// KeyHandler keys the remote end by hand
func (h *Handlers) KeyHandler(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Down == nil {
		writeMessage(w, http.StatusBadRequest, "down is required")
		return
	}

	if err := h.keyer.ManualKey(r.Context(), *req.Down); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Remote CW Keyer</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        h1 { color: #333; }
        ul { list-style-type: none; padding: 0; }
        li { margin: 10px 0; }
        a { color: #0066cc; text-decoration: none; }
        a:hover { text-decoration: underline; }
        .info { background-color: #f0f0f0; padding: 15px; border-radius: 5px; }
    </style>
</head>
<body>
    <h1>Remote CW Keyer</h1>
    <div class="info">
        <h2>Available Endpoints:</h2>
        <ul>
            <li><a href="/status">/status</a> - Session state</li>
            <li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
            <li><a href="/health">/health</a> - Health check</li>
            <li>/ws/events - Live session events (websocket)</li>
        </ul>
        <h2>Configuration:</h2>
        <ul>
            <li>Remote keyer: {{.Remote}}</li>
            <li>Framing: {{.Framing}}</li>
            <li>Key line: {{.Device}} ({{.Input}}, {{.Polarity}})</li>
            <li>Initial packet delay: {{.Delay}} ms</li>
        </ul>
    </div>
</body>
</html>`))

// IndexHandler serves the index page
func (h *Handlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)

	_ = indexTemplate.Execute(w, map[string]interface{}{
		"Remote":   h.config.Network.Address(),
		"Framing":  h.config.Network.Framing,
		"Device":   h.config.Key.Device,
		"Input":    h.config.Key.Input,
		"Polarity": h.config.Key.Polarity,
		"Delay":    h.config.Keying.PacketDelay,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("server", "Failed to encode response", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps session errors to HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, keyer.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, keyer.ErrNotConnected):
		status = http.StatusConflict
	case errors.Is(err, keyer.ErrSendFailed):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	writeMessage(w, status, err.Error())
}

// loggerAdapter adapts pkg/logger to promhttp logger interface
type loggerAdapter struct{}

func (l *loggerAdapter) Println(v ...interface{}) {
	msg := ""
	for i, val := range v {
		if i > 0 {
			msg += " "
		}
		if s, ok := val.(string); ok {
			msg += s
		} else if err, ok := val.(error); ok {
			msg += err.Error()
		}
	}
	logger.Error("promhttp", msg, nil)
}
