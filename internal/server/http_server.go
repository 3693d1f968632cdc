// Package server constructs the HTTP operations service with helpers that
// apply sensible production defaults.
package server

import (
	"net/http"
	"time"
)

// CreateServer creates an HTTP server for addr and handler with reasonable
// timeouts. WriteTimeout is left unset because WebSocket connections are
// long lived once upgraded.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
