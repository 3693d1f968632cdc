// Package testhelpers provides common utilities for testing the relay and
// its clients.
//
// It provides line-oriented socket clients, HTTP request helpers and
// WebSocket dial helpers so unit and integration tests do not repeat the
// same plumbing.
package testhelpers

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds every blocking read performed by the helpers.
const DefaultTimeout = 2 * time.Second

// LineClient speaks newline-delimited frames over a net.Conn.
type LineClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

// NewLineClient wraps an established connection. The connection is closed
// when the test finishes.
func NewLineClient(t *testing.T, conn net.Conn) *LineClient {
	t.Helper()
	t.Cleanup(func() { _ = conn.Close() })
	return &LineClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// DialLineClient connects to a TCP relay at addr.
func DialLineClient(t *testing.T, addr string) *LineClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	require.NoError(t, err, "dial %s", addr)
	return NewLineClient(t, conn)
}

// Conn returns the underlying connection.
func (c *LineClient) Conn() net.Conn { return c.conn }

// Send writes line followed by a newline.
func (c *LineClient) Send(line string) {
	c.t.Helper()
	c.SendRaw([]byte(line + "\n"))
}

// SendRaw writes b as-is.
func (c *LineClient) SendRaw(b []byte) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(DefaultTimeout)))
	_, err := c.conn.Write(b)
	require.NoError(c.t, err)
}

// ReadLine returns the next line without its newline.
func (c *LineClient) ReadLine(timeout time.Duration) (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return line, err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// ExpectLine fails the test unless the next line equals want.
func (c *LineClient) ExpectLine(want string) {
	c.t.Helper()
	got, err := c.ReadLine(DefaultTimeout)
	require.NoError(c.t, err, "waiting for %s", want)
	require.Equal(c.t, want, got)
}

// ExpectSilence fails the test if anything arrives within d.
func (c *LineClient) ExpectSilence(d time.Duration) {
	c.t.Helper()
	line, err := c.ReadLine(d)
	if err == nil {
		c.t.Fatalf("expected no frame, got %q", line)
	}
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		c.t.Fatalf("expected read timeout, got %v (partial %q)", err, line)
	}
	require.Empty(c.t, line, "partial frame received")
}

// ExpectEOF fails the test unless the peer closes the stream within timeout.
// Frames still in flight are discarded.
func (c *LineClient) ExpectEOF(timeout time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		_, err := c.ReadLine(time.Until(deadline))
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			c.t.Fatalf("connection still open after %s", timeout)
		}
		// Resets count as closed.
		return
	}
}

// CloseWrite half-closes a TCP connection.
func (c *LineClient) CloseWrite() {
	c.t.Helper()
	cw, ok := c.conn.(interface{ CloseWrite() error })
	require.True(c.t, ok, "connection does not support half-close")
	require.NoError(c.t, cw.CloseWrite())
}

// Close closes the connection.
func (c *LineClient) Close() {
	_ = c.conn.Close()
}

// MakeRequest executes an HTTP request with a 5 second timeout.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err, "failed to create request")

	resp, err := client.Do(req)
	require.NoError(t, err, "failed to make request")
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// AssertStatusCode checks the HTTP response status.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks the Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	if got := resp.Header.Get("Content-Type"); got != expected {
		t.Errorf("Expected content type %s, got %s", expected, got)
	}
}

// ConnectWebSocket dials url with the given Origin header ("" sends none).
// The returned response is closed.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// ReadWebSocketText reads one message from conn within timeout.
func ReadWebSocketText(conn *websocket.Conn, timeout time.Duration) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	_, data, err := conn.ReadMessage()
	return string(data), err
}
