// Package server defines the transport abstraction that lets the hub serve
// raw TCP sockets and WebSocket connections through the same session code.
package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// Transport is the byte-stream side of one client connection. The hub reads
// raw bytes from it, frames them, and writes encoded frames back.
//
// Read is only called from the connection's reader goroutine and WriteFrame
// only from its writer goroutine. CloseGracefully and Close may be called from
// any goroutine.
type Transport interface {
	// Read fills p with the next bytes from the peer. io.EOF marks a clean close.
	Read(p []byte) (int, error)
	// WriteFrame writes one delimiter-terminated frame.
	WriteFrame(frame []byte) error
	// CloseGracefully stops sending and asks the peer to close its side.
	CloseGracefully() error
	// Close tears the connection down immediately.
	Close() error
	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string
}

type closeWriter interface {
	CloseWrite() error
}

// tcpTransport adapts a net.Conn.
type tcpTransport struct {
	conn         net.Conn
	writeTimeout time.Duration
}

// NewTCPTransport wraps conn. A positive writeTimeout bounds every frame write.
func NewTCPTransport(conn net.Conn, writeTimeout time.Duration) Transport {
	return &tcpTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *tcpTransport) Read(p []byte) (int, error) {
	return t.conn.Read(p)
}

func (t *tcpTransport) WriteFrame(frame []byte) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := t.conn.Write(frame)
	return err
}

// CloseGracefully half-closes the socket so the peer sees EOF while we keep
// reading until it closes its own side.
func (t *tcpTransport) CloseGracefully() error {
	if cw, ok := t.conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return t.conn.Close()
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// isExpectedCloseError reports whether err is the normal result of a
// connection being closed by either side.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
