// Package server manages individual client connections, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/protocol"
)

const readBufferSize = 4096

var (
	// ErrNotJoined rejects chat and typing messages from a connection that has not joined.
	ErrNotJoined = errors.New("connection has not joined")
	// ErrAlreadyJoined rejects a second join; usernames are immutable once set.
	ErrAlreadyJoined = errors.New("connection already joined")
	// ErrEmptyUsername rejects a join whose username is blank.
	ErrEmptyUsername = errors.New("username is empty")
	// ErrConnClosed is returned once a connection is closing or closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrQueueFull is returned when a recipient's outbound queue has no room.
	ErrQueueFull = errors.New("send queue full")
)

// ConnID identifies a connection for its whole lifetime, independent of the
// transport object.
type ConnID string

// SessionState is the per-connection protocol state.
type SessionState int

const (
	// StateUnjoined is the initial state: only a join is accepted.
	StateUnjoined SessionState = iota
	// StateJoined accepts chat and typing messages.
	StateJoined
	// StateClosed is terminal.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the server-side state of one accepted connection. It is owned by
// the hub's registry from Attach until Disconnect completes.
type Conn struct {
	id        ConnID
	transport Transport
	framer    *protocol.Framer
	limiter   *rate.Limiter
	send      chan []byte

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	state    SessionState
	username string
	typing   bool
}

func newConn(t Transport, cfg HubConfig) *Conn {
	queue := cfg.SendQueueSize
	if queue <= 0 {
		queue = 256
	}
	return &Conn{
		id:        ConnID(uuid.NewString()),
		transport: t,
		framer:    protocol.NewFramer(cfg.MaxFrameSize),
		limiter:   newRateLimiter(cfg.RateLimit),
		send:      make(chan []byte, queue),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ID returns the connection's identity.
func (c *Conn) ID() ConnID { return c.id }

// RemoteAddr returns the peer address reported by the transport.
func (c *Conn) RemoteAddr() string { return c.transport.RemoteAddr() }

// Done is closed once the connection has been disconnected.
func (c *Conn) Done() <-chan struct{} { return c.done }

// State returns the current session state.
func (c *Conn) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Username returns the joined username, or "" before a join.
func (c *Conn) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Typing reports the connection's last typing indicator.
func (c *Conn) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

func (c *Conn) join(username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosed:
		return ErrConnClosed
	case StateJoined:
		return ErrAlreadyJoined
	}
	if strings.TrimSpace(username) == "" {
		return ErrEmptyUsername
	}
	c.username = username
	c.state = StateJoined
	return nil
}

// identity returns the username of a joined connection.
func (c *Conn) identity() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosed:
		return "", ErrConnClosed
	case StateUnjoined:
		return "", ErrNotJoined
	}
	return c.username, nil
}

func (c *Conn) setTyping(typing bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosed:
		return "", ErrConnClosed
	case StateUnjoined:
		return "", ErrNotJoined
	}
	c.typing = typing
	return c.username, nil
}

// markClosed moves the connection to StateClosed. first is true only for the
// call that performed the transition.
func (c *Conn) markClosed() (username string, wasJoined, first bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return "", false, false
	}
	wasJoined = c.state == StateJoined
	username = c.username
	c.state = StateClosed
	c.typing = false
	close(c.done)
	return username, wasJoined, true
}

// enqueue hands frame to the writer goroutine without blocking.
func (c *Conn) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	case <-c.quit:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// requestClose asks the writer to flush queued frames and half-close.
func (c *Conn) requestClose() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// forceClose tears the transport down; the reader then runs the disconnect path.
func (c *Conn) forceClose() {
	if err := c.transport.Close(); err != nil && !isExpectedCloseError(err) {
		logging.Warn().Err(err).Str("conn", string(c.id)).Msg("error force-closing connection")
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case frame := <-c.send:
			if !c.write(frame) {
				return
			}
		case <-c.quit:
			c.flushQueued()
			if err := c.transport.CloseGracefully(); err != nil && !isExpectedCloseError(err) {
				logging.Warn().Err(err).Str("conn", string(c.id)).Msg("error closing connection gracefully")
			}
			return
		case <-c.done:
			return
		}
	}
}

// flushQueued writes frames that were queued before a graceful close.
func (c *Conn) flushQueued() {
	for {
		select {
		case frame := <-c.send:
			if !c.write(frame) {
				return
			}
		default:
			return
		}
	}
}

// write sends one frame. A failed write closes the transport so the reader
// surfaces the failure through the disconnect path.
func (c *Conn) write(frame []byte) bool {
	if err := c.transport.WriteFrame(frame); err != nil {
		DeliveryFailures.Inc()
		if !isExpectedCloseError(err) {
			logging.Warn().Err(err).Str("conn", string(c.id)).Str("remote", c.RemoteAddr()).Msg("error writing frame")
		}
		c.forceClose()
		return false
	}
	return true
}
