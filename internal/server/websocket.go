// Package server adapts WebSocket connections to the Transport interface so
// browser clients join the same chat as TCP clients.
package server

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/protocol"
)

const closeControlTimeout = time.Second

// wsTransport presents a WebSocket as a byte stream. Each inbound message is
// followed by a delimiter, so one message may carry one or more frames.
// Outbound frames are sent as one text message each, without the delimiter.
type wsTransport struct {
	conn         *websocket.Conn
	addr         string
	writeTimeout time.Duration
	pending      []byte
}

func newWSTransport(conn *websocket.Conn, addr string, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{conn: conn, addr: addr, writeTimeout: writeTimeout}
}

func (t *wsTransport) Read(p []byte) (int, error) {
	for len(t.pending) == 0 {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				return 0, io.EOF
			}
			return 0, err
		}
		t.pending = protocol.AppendFrame(nil, data)
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *wsTransport) WriteFrame(frame []byte) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(frame, []byte{protocol.Delimiter}))
}

// CloseGracefully sends a close control frame; the peer's reply ends Read with io.EOF.
func (t *wsTransport) CloseGracefully() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	return t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeControlTimeout))
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() string {
	return t.addr
}

// WebSocketHandler upgrades requests and attaches them to the hub.
type WebSocketHandler struct {
	hub          *Hub
	upgrader     websocket.Upgrader
	maxFrameSize int
	writeTimeout time.Duration
}

// NewWebSocketHandler creates the /ws handler. Origins are checked against
// httpCfg.AllowedOrigins.
func NewWebSocketHandler(hub *Hub, httpCfg config.HTTPConfig, listenCfg config.ListenConfig) *WebSocketHandler {
	policy := newOriginPolicy(httpCfg.AllowedOrigins)
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		maxFrameSize: listenCfg.MaxFrameSize,
		writeTimeout: listenCfg.WriteTimeout,
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}
	if h.maxFrameSize > 0 {
		conn.SetReadLimit(int64(h.maxFrameSize))
	}

	if _, err := h.hub.Attach(newWSTransport(conn, r.RemoteAddr, h.writeTimeout)); err != nil {
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("rejected WebSocket connection")
	}
}
