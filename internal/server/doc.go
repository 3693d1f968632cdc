// Package server implements the chat relay: the hub and its connection
// registry, the per-connection session state machine, the TCP listener, the
// WebSocket gateway and the HTTP operations endpoints.
//
// The implementation is organized into specialized files for configuration,
// hub management, connections, transports, routing, and HTTP handlers.
package server
