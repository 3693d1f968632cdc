// Package server implements the TCP listener that feeds accepted sockets
// into the hub.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/logging"
)

// Server accepts TCP connections and attaches them to a Hub. It implements
// suture.Service so it can run under the process supervisor.
type Server struct {
	cfg config.ListenConfig
	hub *Hub

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates a relay listener for cfg. Call Listen before Serve to
// surface bind errors at startup.
func NewServer(cfg config.ListenConfig, hub *Hub) *Server {
	return &Server{cfg: cfg, hub: hub}
}

// Listen binds the relay address.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.ln = ln
	logging.Info().Str("addr", ln.Addr().String()).Msg("relay listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) String() string {
	return "relay"
}

// Serve accepts connections until ctx is cancelled, then stops accepting and
// shuts the hub down within the configured grace period.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return s.shutdown(ctx)
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				logging.Warn().Err(err).Dur("retry_in", backoff).Msg("accept error")
				time.Sleep(backoff)
				continue
			}
			s.mu.Lock()
			_ = ln.Close()
			s.ln = nil
			s.mu.Unlock()
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0

		if _, err := s.hub.Attach(NewTCPTransport(conn, s.cfg.WriteTimeout)); err != nil {
			logging.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("rejected connection")
		}
	}
}

func (s *Server) shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.ln = nil
	s.mu.Unlock()

	logging.Info().Msg("relay stopped accepting connections")
	if err := s.hub.Shutdown(s.cfg.ShutdownGrace); err != nil {
		return err
	}
	return ctx.Err()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
