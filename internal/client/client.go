// Package client is the terminal client's connection core. It dials the
// relay, joins, decodes the server's frames into an ordered event stream, and
// writes chat and typing messages back.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/protocol"
)

const (
	// DefaultTypingIdle is how long after the last keystroke typing_stop is sent.
	DefaultTypingIdle = 2 * time.Second
	// closeWait bounds how long Close waits for the server to hang up.
	closeWait = 300 * time.Millisecond

	eventBuffer    = 64
	readBufferSize = 4096
	maxFrameSize   = 1 << 20
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("client closed")

// Option configures Dial.
type Option func(*options)

type options struct {
	typingIdle time.Duration
}

// WithTypingIdle sets the typing_stop debounce delay.
func WithTypingIdle(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.typingIdle = d
		}
	}
}

// Client is one connection to the relay.
type Client struct {
	conn     net.Conn
	username string
	typing   *TypingNotifier

	events  chan protocol.ServerMessage
	done    chan struct{}
	closing chan struct{}
	err     error

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to addr and joins as username. The join is the first frame
// written on the connection.
func Dial(ctx context.Context, addr, username string, opts ...Option) (*Client, error) {
	o := options{typingIdle: DefaultTypingIdle}
	for _, opt := range opts {
		opt(&o)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	c := &Client{
		conn:     conn,
		username: username,
		events:   make(chan protocol.ServerMessage, eventBuffer),
		done:     make(chan struct{}),
		closing:  make(chan struct{}),
	}
	c.typing = NewTypingNotifier(c.Send, o.typingIdle)

	if err := c.Send(protocol.Join{Username: username}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("join as %s: %w", username, err)
	}
	go c.readLoop()
	return c, nil
}

// Username returns the name this client joined with.
func (c *Client) Username() string { return c.username }

// Events yields decoded server messages in receipt order. It is closed when
// the connection ends.
func (c *Client) Events() <-chan protocol.ServerMessage { return c.events }

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended: nil for a clean close by the server.
// It is only meaningful after Done is closed.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Send writes one client message.
func (c *Client) Send(msg protocol.ClientMessage) error {
	frame, err := protocol.EncodeFrame(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closing:
		return ErrClosed
	default:
	}
	_, err = c.conn.Write(frame)
	return err
}

// SendChat sends text as a chat message after trimming it. Blank input is not
// sent; sent reports whether a frame was written.
func (c *Client) SendChat(text string) (sent bool, err error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false, nil
	}
	if err := c.Send(protocol.Chat{Message: trimmed}); err != nil {
		return false, err
	}
	return true, nil
}

// Keystroke records local typing activity for the typing indicator.
func (c *Client) Keystroke() {
	c.typing.Keystroke()
}

// Close half-closes the connection and waits briefly for the server to close
// its side before tearing the socket down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.typing.Cancel()

		c.writeMu.Lock()
		close(c.closing)
		if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
			err = cw.CloseWrite()
		}
		c.writeMu.Unlock()

		select {
		case <-c.done:
		case <-time.After(closeWait):
		}
		if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
			err = cerr
		}
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.events)

	framer := protocol.NewFramer(maxFrameSize)
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			_, _ = framer.Write(buf[:n])
			if ferr := c.dispatch(framer); ferr != nil {
				c.err = ferr
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.isClosing() {
				c.err = err
			}
			return
		}
	}
}

func (c *Client) dispatch(framer *protocol.Framer) error {
	for {
		frame, ok, err := framer.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		msg, err := protocol.DecodeServer(frame)
		if err != nil {
			logging.Debug().Err(err).Msg("skipping undecodable server frame")
			continue
		}
		select {
		case c.events <- msg:
		case <-c.closing:
			return nil
		}
	}
}

func (c *Client) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}
