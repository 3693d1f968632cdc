package client

import (
	"sync"
	"time"

	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/protocol"
)

// TypingNotifier debounces keystrokes into typing_start and typing_stop
// messages. The first keystroke sends typing_start; typing_stop follows once
// idle has passed without another keystroke.
type TypingNotifier struct {
	send func(protocol.ClientMessage) error
	idle time.Duration

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
	gen    uint64
}

// NewTypingNotifier returns a notifier that writes through send.
func NewTypingNotifier(send func(protocol.ClientMessage) error, idle time.Duration) *TypingNotifier {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingNotifier{send: send, idle: idle}
}

// Keystroke records activity and re-arms the idle timer.
func (n *TypingNotifier) Keystroke() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.typing {
		n.typing = true
		n.emit(protocol.TypingStart{})
	}
	if n.timer != nil {
		n.timer.Stop()
	}
	n.gen++
	gen := n.gen
	n.timer = time.AfterFunc(n.idle, func() { n.expire(gen) })
}

// Typing reports whether typing_start has been sent without a matching stop.
func (n *TypingNotifier) Typing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.typing
}

// Cancel stops the idle timer without sending anything.
func (n *TypingNotifier) Cancel() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
	}
	n.gen++
	n.typing = false
}

func (n *TypingNotifier) expire(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	// A later keystroke or Cancel superseded this timer.
	if gen != n.gen || !n.typing {
		return
	}
	n.typing = false
	n.emit(protocol.TypingStop{})
}

func (n *TypingNotifier) emit(msg protocol.ClientMessage) {
	if err := n.send(msg); err != nil {
		logging.Debug().Err(err).Str("type", msg.Type()).Msg("failed to send typing indicator")
	}
}
