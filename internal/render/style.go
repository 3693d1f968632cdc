// Package render turns server events into terminal text for the chat client.
// Usernames get a stable color and emoji derived from a hash of the name, so
// every client decorates the same user the same way.
package render

import (
	"strconv"
	"unicode/utf16"
)

// ANSI sequences for non-user text.
const (
	Reset   = "\x1b[0m"
	Dim     = "\x1b[2m"
	Success = "\x1b[38;5;42m"
	Error   = "\x1b[38;5;203m"
	Info    = "\x1b[38;5;117m"
	Muted   = "\x1b[38;5;240m"
	Subtle  = "\x1b[38;5;245m"
)

// userPalette holds 256-color codes chosen to stay readable on dark and light
// backgrounds.
var userPalette = [...]int{130, 166, 208, 178, 100, 64, 71, 77, 36, 37, 31, 68, 104, 98, 135, 169, 204, 167}

var userEmojis = [...]string{
	"🦆", "🦀", "🦎", "🦄", "🦦", "🐸", "🐙", "🦩", "🐢", "🦞", "🦕", "🦫",
	"🦒", "🦚", "🦜", "🪿", "🦭", "🦈", "🐋", "🦑", "🐌", "🦗", "🪲", "🦋",
	"🌵", "🍄", "🌸", "🌺", "🪻", "🌻", "🌙", "⭐", "🔮", "🎯", "🎲", "🎪",
	"🎨", "🎭", "🎺", "🎸", "🚀", "🛸", "⚡️", "🔥", "💎", "🏆", "🎖️", "👑",
}

// HashCode is the 32-bit rolling hash h = h*31 + unit over the UTF-16 code
// units of s, wrapping on overflow.
func HashCode(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	return h
}

func paletteIndex(name string, n int) int {
	h := int64(HashCode(name))
	if h < 0 {
		h = -h
	}
	return int(h % int64(n))
}

// UserColor returns the ANSI color sequence for name.
func UserColor(name string) string {
	code := userPalette[paletteIndex(name, len(userPalette))]
	return "\x1b[38;5;" + strconv.Itoa(code) + "m"
}

// UserEmoji returns the emoji for name.
func UserEmoji(name string) string {
	return userEmojis[paletteIndex(name, len(userEmojis))]
}

// FormatUsername colors name and optionally appends its emoji.
func FormatUsername(name string, withEmoji bool) string {
	text := name
	if withEmoji {
		text += " " + UserEmoji(name)
	}
	return UserColor(name) + text + Reset
}
