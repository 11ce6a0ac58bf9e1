// Package httpapi exposes the monitor's reconciled state as a read-only
// view API for dashboards, plus liveness, readiness, and metrics probes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/greenloop/ewaste-monitor/internal/metrics"
	"github.com/greenloop/ewaste-monitor/internal/models"
	"github.com/greenloop/ewaste-monitor/internal/state"
	"github.com/greenloop/ewaste-monitor/internal/views"
	"github.com/greenloop/ewaste-monitor/pkg/backend"
)

// StreamStatusFunc reports the current stream connection phase. A nil
// function is treated as an idle stream.
type StreamStatusFunc func() string

type Handler struct {
	logger  zerolog.Logger
	store   *state.Store
	api     backend.API
	metrics *metrics.Metrics
	status  StreamStatusFunc
}

// NewHandler builds the view API handler. The backend client may be nil,
// in which case the proxy endpoints report the upstream as unconfigured.
func NewHandler(logger zerolog.Logger, store *state.Store, api backend.API,
	m *metrics.Metrics, status StreamStatusFunc) *Handler {
	return &Handler{
		logger:  logger,
		store:   store,
		api:     api,
		metrics: m,
		status:  status,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Probes
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// Views
	r.Route("/api/views", func(r chi.Router) {
		r.Get("/summary", h.handleSummary)
		r.Get("/status-distribution", h.handleStatusDistribution)
		r.Get("/map", h.handleMap)
		r.Get("/feed", h.handleFeed)
		r.Get("/table", h.handleTable)
		r.Get("/connection", h.handleConnection)
		r.Get("/devices/{id}", h.handleDeviceDetail)
		r.Get("/facilities", h.handleFacilities)
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		if id := middleware.GetReqID(r.Context()); id != "" {
			ww.Header().Set("X-Request-ID", id)
		}

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		// Label metrics by route pattern, not raw path, so device ids do
		// not fan out into unbounded label values.
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		h.metrics.ObserveHTTPRequest(r.Method, pattern, ww.Status(), duration)

		h.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

// writeUpstreamError maps a backend client failure onto the view API's
// error envelope. Upstream 404s pass through; everything else is a bad
// gateway because the monitor, not the caller, owns the backend session.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, err error, msg string) {
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		h.writeError(w, http.StatusNotFound, "not_found", apiErr.Detail, nil)
	case errors.Is(err, backend.ErrUnauthorized):
		h.logger.Error().Err(err).Msg(msg)
		h.writeError(w, http.StatusBadGateway, "upstream_auth", "backend rejected the monitor session", nil)
	case errors.As(err, &apiErr):
		h.logger.Error().Err(err).Msg(msg)
		h.writeError(w, http.StatusBadGateway, "upstream_error", apiErr.Detail,
			map[string]any{"upstream_status": apiErr.StatusCode})
	default:
		h.logger.Error().Err(err).Msg(msg)
		h.writeError(w, http.StatusBadGateway, "upstream_unreachable", "backend request failed", nil)
	}
}

func (h *Handler) ensureAPI(w http.ResponseWriter) bool {
	if h.api == nil {
		h.writeError(w, http.StatusServiceUnavailable, "upstream_unconfigured", "backend client not configured", nil)
		return false
	}
	return true
}

func (h *Handler) streamStatus() string {
	if h.status == nil {
		return "idle"
	}
	return h.status()
}

func (h *Handler) snapshotAge() float64 {
	last := h.store.LastSnapshot()
	if last.IsZero() {
		return 0
	}
	return time.Since(last).Seconds()
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleReadyz gates readiness on the store having been seeded at least
// once. A dead backend does not fail readiness afterwards; the monitor
// keeps serving its last good state and only reports the probe result.
func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !h.store.Seeded() {
		h.writeError(w, http.StatusServiceUnavailable, "not_ready", "state not seeded yet", nil)
		return
	}

	upstream := "unconfigured"
	if h.api != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if _, err := h.api.Health(ctx); err != nil {
			upstream = "unreachable"
		} else {
			upstream = "ok"
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"ready":   true,
		"backend": upstream,
		"stream":  h.streamStatus(),
	})
}

type summaryResponse struct {
	Summary    *models.Summary `json:"summary"`
	Seeded     bool            `json:"seeded"`
	AgeSeconds float64         `json:"age_seconds"`
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	v := h.store.View()
	h.writeJSON(w, http.StatusOK, summaryResponse{
		Summary:    v.Summary,
		Seeded:     v.Seeded,
		AgeSeconds: h.snapshotAge(),
	})
}

func (h *Handler) handleStatusDistribution(w http.ResponseWriter, r *http.Request) {
	v := h.store.View()
	h.writeJSON(w, http.StatusOK, views.StatusDistribution(v.Devices))
}

func (h *Handler) handleMap(w http.ResponseWriter, r *http.Request) {
	v := h.store.View()
	h.writeJSON(w, http.StatusOK, views.MapPoints(v.Devices))
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	v := h.store.View()
	h.writeJSON(w, http.StatusOK, views.LiveFeed(v.Events, time.Now()))
}

func (h *Handler) handleTable(w http.ResponseWriter, r *http.Request) {
	v := h.store.View()
	h.writeJSON(w, http.StatusOK, views.DeviceTable(v.Devices, r.URL.Query().Get("status")))
}

type connectionResponse struct {
	views.ConnectionView
	Seeded     bool    `json:"seeded"`
	AgeSeconds float64 `json:"age_seconds"`
}

func (h *Handler) handleConnection(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, connectionResponse{
		ConnectionView: views.Connection(h.streamStatus()),
		Seeded:         h.store.Seeded(),
		AgeSeconds:     h.snapshotAge(),
	})
}

type deviceDetailResponse struct {
	Device models.Device  `json:"device"`
	Events []models.Event `json:"events"`
	Live   bool           `json:"live"`
}

// handleDeviceDetail proxies the backend's per-device view. When the
// reconciled state holds the device, that record replaces the backend's
// because the stream may have mutated it since the backend row was read.
func (h *Handler) handleDeviceDetail(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAPI(w) {
		return
	}

	id := chi.URLParam(r, "id")
	detail, err := h.api.Device(r.Context(), id)
	if err != nil {
		h.writeUpstreamError(w, err, "device detail fetch failed")
		return
	}

	resp := deviceDetailResponse{Device: detail.Device, Events: detail.Events}
	if live, ok := h.store.Device(id); ok {
		resp.Device = live
		resp.Live = true
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleFacilities(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAPI(w) {
		return
	}

	facilities, err := h.api.Facilities(r.Context())
	if err != nil {
		h.writeUpstreamError(w, err, "facility fetch failed")
		return
	}
	if facilities == nil {
		facilities = []models.Facility{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"facilities": facilities})
}
