package render

import "github.com/Tyrowin/linechat/internal/protocol"

// FormatEvent renders msg as one line of chat history. Typing events have no
// history line and yield ok == false.
func FormatEvent(msg protocol.ServerMessage) (line string, ok bool) {
	switch m := msg.(type) {
	case protocol.UserJoined:
		return Success + "→" + Reset + " " + Dim + FormatUsername(m.Username, true) + Reset +
			Muted + " has joined the chat" + Reset, true
	case protocol.UserLeft:
		return Subtle + "←" + Reset + " " + Dim + FormatUsername(m.Username, true) + Reset +
			" " + Muted + "has left the chat" + Reset, true
	case protocol.ChatPosted:
		return FormatChat(m.Username, m.Message), true
	}
	return "", false
}

// FormatChat renders a chat line attributed to username.
func FormatChat(username, message string) string {
	return FormatUsername(username, true) + " › " + message
}

// Prompt is the label shown in front of the input line.
func Prompt(username string) string {
	return FormatUsername(username, true) + Subtle + " ›" + Reset + " "
}

// StripANSI removes SGR escape sequences from s.
func StripANSI(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && (s[j] == ';' || (s[j] >= '0' && s[j] <= '9')) {
				j++
			}
			if j < len(s) && s[j] == 'm' {
				i = j
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}
