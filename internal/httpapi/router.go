// Package httpapi serves the read-only query API consumed by dashboards and
// exports. Uses the standard library http.ServeMux; the route surface is too
// small to justify a router dependency.
package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router wraps a ServeMux with method guards.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterRoutes attaches the query API. Every endpoint is read-only GET.
func (r *Router) RegisterRoutes(h *Handler) {
	get := func(pattern string, fn http.HandlerFunc) {
		r.mux.HandleFunc(pattern, func(w http.ResponseWriter, req *http.Request) {
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			fn(w, req)
		})
	}

	get("/api/v1/devices", h.GetDevices)
	get("/api/v1/measurements", h.GetMeasurements)
	get("/api/v1/aggregate", h.GetAggregate)
	get("/api/v1/stats", h.GetStats)
	get("/healthz", h.GetHealth)
}
