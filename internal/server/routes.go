// Package server wires HTTP handlers into a chi router for the operations
// endpoint and the WebSocket gateway.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/linechat/internal/config"
)

// SetupRoutes returns the HTTP router: /healthz, /metrics, and, when the
// gateway is enabled, /ws and /test.
func SetupRoutes(hub *Hub, cfg *config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", HealthHandler(hub))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if cfg.HTTP.WebSocket {
		r.Method(http.MethodGet, "/ws", NewWebSocketHandler(hub, cfg.HTTP, cfg.Server))
		r.Get("/test", TestPageHandler)
	}
	return r
}
