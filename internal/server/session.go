package server

import (
	"errors"

	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/protocol"
)

// handleFrame decodes one frame from c and applies it to the session.
// Undecodable frames and messages invalid in the current state are logged
// and dropped; the connection stays open.
func (h *Hub) handleFrame(c *Conn, frame []byte) {
	msg, err := protocol.DecodeClient(frame)
	if err != nil {
		reason := reasonMalformed
		if errors.Is(err, protocol.ErrUnknownType) {
			reason = reasonUnknownType
		}
		FramesRejected.WithLabelValues(reason).Inc()
		logging.Warn().Err(err).
			Str("conn", string(c.id)).
			Int("bytes", len(frame)).
			Msg("discarding undecodable frame")
		return
	}
	FramesReceived.WithLabelValues(msg.Type()).Inc()

	switch m := msg.(type) {
	case protocol.Join:
		h.handleJoin(c, m)
	case protocol.Chat:
		h.handleChat(c, m)
	case protocol.TypingStart:
		h.handleTyping(c, true)
	case protocol.TypingStop:
		h.handleTyping(c, false)
	}
}

func (h *Hub) handleJoin(c *Conn, m protocol.Join) {
	if err := c.join(m.Username); err != nil {
		h.reject(c, m, err)
		return
	}
	UsersJoined.Inc()
	logging.Info().
		Str("conn", string(c.id)).
		Str("username", m.Username).
		Int("clients", h.registry.Size()).
		Msg("user joined the chat")
	h.Broadcast(protocol.UserJoined{Username: m.Username}, c.id)
}

func (h *Hub) handleChat(c *Conn, m protocol.Chat) {
	username, err := c.identity()
	if err != nil {
		h.reject(c, m, err)
		return
	}
	logging.Debug().Str("username", username).Str("message", m.Message).Msg("chat message")
	h.Broadcast(protocol.ChatPosted{Username: username, Message: m.Message}, c.id)
}

func (h *Hub) handleTyping(c *Conn, typing bool) {
	username, err := c.setTyping(typing)
	if err != nil {
		var msg protocol.ClientMessage = protocol.TypingStop{}
		if typing {
			msg = protocol.TypingStart{}
		}
		h.reject(c, msg, err)
		return
	}
	h.Broadcast(protocol.Typing{Username: username, IsTyping: typing}, c.id)
}

func (h *Hub) reject(c *Conn, msg protocol.ClientMessage, err error) {
	if errors.Is(err, ErrConnClosed) {
		return
	}
	reason := reasonMalformed
	switch {
	case errors.Is(err, ErrNotJoined):
		reason = reasonNotJoined
	case errors.Is(err, ErrAlreadyJoined):
		reason = reasonAlreadyJoined
	case errors.Is(err, ErrEmptyUsername):
		reason = reasonEmptyUsername
	}
	FramesRejected.WithLabelValues(reason).Inc()
	logging.Warn().Err(err).
		Str("conn", string(c.id)).
		Str("type", msg.Type()).
		Str("state", c.State().String()).
		Msg("dropping message")
}
