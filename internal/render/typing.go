package render

import (
	"fmt"
	"slices"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// TypingSet tracks who is typing, in the order they started.
type TypingSet struct {
	names []string
}

// Apply updates the set from a server event. It reports whether the set
// changed.
func (s *TypingSet) Apply(msg protocol.ServerMessage) bool {
	switch m := msg.(type) {
	case protocol.Typing:
		if m.IsTyping {
			return s.add(m.Username)
		}
		return s.remove(m.Username)
	case protocol.ChatPosted:
		return s.remove(m.Username)
	}
	return false
}

// Names returns the typing users in insertion order.
func (s *TypingSet) Names() []string {
	return slices.Clone(s.names)
}

// Len returns how many users are typing.
func (s *TypingSet) Len() int { return len(s.names) }

// StatusLine describes who is typing, or "" when nobody is.
func (s *TypingSet) StatusLine() string {
	var text string
	switch len(s.names) {
	case 0:
		return ""
	case 1:
		text = FormatUsername(s.names[0], false) + Muted + " is typing..."
	case 2:
		text = FormatUsername(s.names[0], false) + Muted + " and " +
			FormatUsername(s.names[1], false) + Muted + " are typing..."
	default:
		text = fmt.Sprintf("%d people are typing...", len(s.names))
	}
	return Muted + text + Reset
}

func (s *TypingSet) add(name string) bool {
	if slices.Contains(s.names, name) {
		return false
	}
	s.names = append(s.names, name)
	return true
}

func (s *TypingSet) remove(name string) bool {
	i := slices.Index(s.names, name)
	if i < 0 {
		return false
	}
	s.names = slices.Delete(s.names, i, i+1)
	return true
}
