// Package server coordinates client registration, message broadcast, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/protocol"
)

// ErrHubClosed is returned by Attach once Shutdown has begun.
var ErrHubClosed = errors.New("hub is shutting down")

// HubConfig holds the per-connection limits applied by the hub.
type HubConfig struct {
	SendQueueSize int
	MaxFrameSize  int
	RateLimit     config.RateLimitConfig
}

// NewHubConfig extracts the settings the Hub needs from cfg.
func NewHubConfig(cfg *config.Config) HubConfig {
	return HubConfig{
		SendQueueSize: cfg.Server.SendQueueSize,
		MaxFrameSize:  cfg.Server.MaxFrameSize,
		RateLimit:     cfg.RateLimit,
	}
}

// Hub owns the registry of live connections. It runs a reader and a writer
// goroutine per connection, dispatches decoded client messages, and fans
// server messages out to every other connection.
type Hub struct {
	cfg      HubConfig
	registry *Registry
	wg       sync.WaitGroup

	mu      sync.Mutex
	closing bool
}

// NewHub creates a Hub with an empty registry.
func NewHub(cfg HubConfig) *Hub {
	return &Hub{
		cfg:      cfg,
		registry: NewRegistry(),
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	return h.registry.Size()
}

// Registry exposes the hub's connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Attach registers a new connection over t and starts its pumps. The
// connection starts Unjoined; nothing is broadcast until it joins.
func (h *Hub) Attach(t Transport) (*Conn, error) {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		if err := t.Close(); err != nil && !isExpectedCloseError(err) {
			logging.Warn().Err(err).Str("remote", t.RemoteAddr()).Msg("error closing rejected connection")
		}
		return nil, ErrHubClosed
	}
	// Registering under h.mu means Shutdown's snapshot always includes c.
	c := newConn(t, h.cfg)
	if err := h.registry.Insert(c); err != nil {
		h.mu.Unlock()
		_ = t.Close()
		return nil, err
	}
	h.wg.Add(2)
	h.mu.Unlock()
	ConnectionsActive.Inc()

	logging.Info().
		Str("conn", string(c.id)).
		Str("remote", c.RemoteAddr()).
		Int("clients", h.registry.Size()).
		Msg("client connected")

	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		h.readLoop(c)
	}()
	return c, nil
}

// Broadcast encodes msg once and queues it for every registered connection
// except exclude. A recipient that cannot take the frame is logged and
// skipped; the rest still receive it. It returns the number of recipients
// the frame was queued for.
func (h *Hub) Broadcast(msg protocol.ServerMessage, exclude ConnID) int {
	frame, err := protocol.EncodeFrame(msg)
	if err != nil {
		logging.Error().Err(err).Str("type", msg.Type()).Msg("failed to encode broadcast")
		return 0
	}
	Broadcasts.WithLabelValues(msg.Type()).Inc()

	delivered, err := h.registry.ForEachExcept(exclude, func(c *Conn) error {
		return c.enqueue(frame)
	})
	if err != nil {
		h.logDeliveryFailures(msg, err)
	}
	Deliveries.Add(float64(delivered))

	logging.Debug().
		Str("type", msg.Type()).
		Int("recipients", delivered).
		Msg("broadcast message")
	return delivered
}

func (h *Hub) logDeliveryFailures(msg protocol.ServerMessage, err error) {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	for _, e := range errs {
		// Closing connections are already on their way out of the registry.
		if errors.Is(e, ErrConnClosed) {
			continue
		}
		DeliveryFailures.Inc()
		logging.Warn().Err(e).Str("type", msg.Type()).Msg("broadcast delivery failed")
	}
}

func (h *Hub) readLoop(c *Conn) {
	var cause error
	defer func() { h.Disconnect(c, cause) }()

	buf := make([]byte, readBufferSize)
	for {
		n, err := c.transport.Read(buf)
		if n > 0 {
			// Framer.Write never fails.
			_, _ = c.framer.Write(buf[:n])
			if ferr := h.drainFrames(c); ferr != nil {
				cause = ferr
				return
			}
		}
		if err != nil {
			cause = err
			return
		}
	}
}

// drainFrames dispatches every complete frame buffered on c. Frames are
// handled strictly in arrival order.
func (h *Hub) drainFrames(c *Conn) error {
	for {
		frame, ok, err := c.framer.Next()
		if err != nil {
			FramesRejected.WithLabelValues(reasonTooLarge).Inc()
			logging.Warn().Err(err).
				Str("conn", string(c.id)).
				Int("max_frame_size", h.cfg.MaxFrameSize).
				Msg("closing connection that exceeded the frame size limit")
			return err
		}
		if !ok {
			return nil
		}
		if c.limiter != nil && !c.limiter.Allow() {
			FramesRejected.WithLabelValues(reasonRateLimited).Inc()
			logging.Warn().Str("conn", string(c.id)).Msg("rate limit exceeded, dropping frame")
			continue
		}
		h.handleFrame(c, frame)
	}
}

// Disconnect tears c down. It removes c from the registry, announces the
// departure to everyone still connected if c had joined, and closes the
// transport. Only the first call for a connection has any effect.
func (h *Hub) Disconnect(c *Conn, cause error) {
	username, wasJoined, first := c.markClosed()
	if !first {
		return
	}
	if h.registry.Remove(c.id) {
		ConnectionsActive.Dec()
	}

	event := logging.Info()
	label := "clean"
	if cause != nil && !errors.Is(cause, io.EOF) && !isExpectedCloseError(cause) {
		event = logging.Warn().Err(cause)
		label = "error"
	}
	Disconnects.WithLabelValues(label).Inc()
	event.Str("conn", string(c.id)).
		Str("remote", c.RemoteAddr()).
		Str("username", username).
		Int("clients", h.registry.Size()).
		Msg("client disconnected")

	if wasJoined {
		UsersJoined.Dec()
		h.Broadcast(protocol.UserLeft{Username: username}, "")
	}
	c.forceClose()
}

// Shutdown stops accepting connections and closes the existing ones. Each
// connection flushes its queue and half-closes; any still open when grace
// elapses is closed forcibly. Shutdown returns after every connection
// goroutine has exited.
func (h *Hub) Shutdown(grace time.Duration) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		h.wg.Wait()
		return nil
	}
	h.closing = true
	h.mu.Unlock()

	conns := h.registry.Snapshot()
	logging.Info().Int("clients", len(conns)).Dur("grace", grace).Msg("shutting down client connections")

	for _, c := range conns {
		c.requestClose()
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	forced := 0
wait:
	for i, c := range conns {
		select {
		case <-c.done:
		case <-timer.C:
			for _, rest := range conns[i:] {
				select {
				case <-rest.done:
					continue
				default:
				}
				forced++
				ForcedCloses.Inc()
				rest.forceClose()
			}
			break wait
		}
	}

	h.wg.Wait()
	logging.Info().Int("forced", forced).Msg("hub shutdown completed")
	return nil
}
