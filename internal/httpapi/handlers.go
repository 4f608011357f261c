package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ruuviair/internal/pipeline"
	"ruuviair/internal/store"
	"ruuviair/internal/tracker"
)

// Reader is the slice of the store the API serves from.
type Reader interface {
	QueryWindow(ctx context.Context, from, to time.Time) ([]store.Record, error)
	QueryDevice(ctx context.Context, deviceID string, from, to time.Time) ([]store.Record, error)
	AggregateDevice(ctx context.Context, deviceID string, from, to time.Time) (*store.Aggregate, error)
	Stats(ctx context.Context) (*store.Stats, error)
}

// DeviceLister exposes tracked device state.
type DeviceLister interface {
	Snapshot() []tracker.DeviceState
}

// Health reports whether ingestion is persisting writes.
type Health interface {
	Healthy() bool
	Stats() pipeline.Snapshot
}

// Handler serves the read-only query API.
type Handler struct {
	reader  Reader
	devices DeviceLister
	health  Health
	logger  *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(reader Reader, devices DeviceLister, health Health, logger *zap.Logger) *Handler {
	return &Handler{
		reader:  reader,
		devices: devices,
		health:  health,
		logger:  logger,
	}
}

// GetDevices lists tracked devices with online status.
func (h *Handler) GetDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.devices.Snapshot())
}

// GetMeasurements returns measurements for a time window, optionally for one
// device. Query params: device (optional), hours (default 24).
func (h *Handler) GetMeasurements(w http.ResponseWriter, r *http.Request) {
	from, to := windowParams(r)
	device := r.URL.Query().Get("device")

	var (
		records []store.Record
		err     error
	)
	if device != "" {
		records, err = h.reader.QueryDevice(r.Context(), device, from, to)
	} else {
		records, err = h.reader.QueryWindow(r.Context(), from, to)
	}
	if err != nil {
		h.logger.Error("measurement query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetAggregate returns per-field averages for one device over a window.
// Query params: device (required), hours (default 1).
func (h *Handler) GetAggregate(w http.ResponseWriter, r *http.Request) {
	device := r.URL.Query().Get("device")
	if device == "" {
		writeError(w, http.StatusBadRequest, "device parameter required")
		return
	}

	hours := intParam(r, "hours", 1)
	to := time.Now().UTC()
	from := to.Add(-time.Duration(hours) * time.Hour)

	agg, err := h.reader.AggregateDevice(r.Context(), device, from, to)
	if err != nil {
		h.logger.Error("aggregate query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// GetStats returns database statistics plus the ingest counters.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	dbStats, err := h.reader.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"database": dbStats,
		"ingest":   h.health.Stats(),
	})
}

// GetHealth is the liveness endpoint the service supervisor polls. A
// persistent store failure reports 503.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if !h.health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func windowParams(r *http.Request) (time.Time, time.Time) {
	hours := intParam(r, "hours", 24)
	to := time.Now().UTC()
	return to.Add(-time.Duration(hours) * time.Hour), to
}

func intParam(r *http.Request, name string, defaultValue int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
