package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Wire type tags.
const (
	TypeJoin        = "join"
	TypeChat        = "chat"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
	TypeUserJoined  = "user_joined"
	TypeUserLeft    = "user_left"
	TypeTyping      = "typing"
)

var (
	// ErrMalformed wraps any frame that is not a JSON object with a string type tag.
	ErrMalformed = errors.New("protocol: malformed frame")
	// ErrUnknownType is returned for a well-formed frame whose type tag is not
	// part of the expected direction's grammar.
	ErrUnknownType = errors.New("protocol: unknown message type")
)

// Message is implemented by every value that can be encoded onto the wire.
type Message interface {
	Type() string
}

// ClientMessage is a message sent from a client to the server:
// Join, Chat, TypingStart or TypingStop.
type ClientMessage interface {
	Message
	clientMessage()
}

// ServerMessage is a message broadcast by the server:
// UserJoined, UserLeft, ChatPosted or Typing.
type ServerMessage interface {
	Message
	serverMessage()
}

// Join announces the sender's display name. It must be the first message on a connection.
type Join struct {
	Username string
}

// Chat carries one line of chat text from the sender.
type Chat struct {
	Message string
}

// TypingStart reports that the sender began typing.
type TypingStart struct{}

// TypingStop reports that the sender stopped typing.
type TypingStop struct{}

// UserJoined is broadcast when a connection completes its join.
type UserJoined struct {
	Username string
}

// UserLeft is broadcast when a joined connection goes away.
type UserLeft struct {
	Username string
}

// ChatPosted is the broadcast form of Chat, attributed to its author.
type ChatPosted struct {
	Username string
	Message  string
}

// Typing is the broadcast form of TypingStart and TypingStop.
type Typing struct {
	Username string
	IsTyping bool
}

func (Join) Type() string        { return TypeJoin }
func (Chat) Type() string        { return TypeChat }
func (TypingStart) Type() string { return TypeTypingStart }
func (TypingStop) Type() string  { return TypeTypingStop }
func (UserJoined) Type() string  { return TypeUserJoined }
func (UserLeft) Type() string    { return TypeUserLeft }
func (ChatPosted) Type() string  { return TypeChat }
func (Typing) Type() string      { return TypeTyping }

func (Join) clientMessage()        {}
func (Chat) clientMessage()        {}
func (TypingStart) clientMessage() {}
func (TypingStop) clientMessage()  {}

func (UserJoined) serverMessage() {}
func (UserLeft) serverMessage()   {}
func (ChatPosted) serverMessage() {}
func (Typing) serverMessage()     {}

// Wire shapes. Field order here is the canonical order on the wire.
type (
	typeOnly struct {
		Type string `json:"type"`
	}
	usernameRecord struct {
		Type     string `json:"type"`
		Username string `json:"username"`
	}
	messageRecord struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	chatRecord struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		Message  string `json:"message"`
	}
	typingRecord struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		IsTyping bool   `json:"isTyping"`
	}
)

// record is the union of every field either direction may carry.
type record struct {
	Type     *string `json:"type"`
	Username string  `json:"username"`
	Message  string  `json:"message"`
	IsTyping bool    `json:"isTyping"`
}

// Encode serializes msg to its canonical JSON form without a delimiter.
func Encode(msg Message) ([]byte, error) {
	var v any
	switch m := msg.(type) {
	case Join:
		v = usernameRecord{Type: TypeJoin, Username: m.Username}
	case Chat:
		v = messageRecord{Type: TypeChat, Message: m.Message}
	case TypingStart:
		v = typeOnly{Type: TypeTypingStart}
	case TypingStop:
		v = typeOnly{Type: TypeTypingStop}
	case UserJoined:
		v = usernameRecord{Type: TypeUserJoined, Username: m.Username}
	case UserLeft:
		v = usernameRecord{Type: TypeUserLeft, Username: m.Username}
	case ChatPosted:
		v = chatRecord{Type: TypeChat, Username: m.Username, Message: m.Message}
	case Typing:
		v = typingRecord{Type: TypeTyping, Username: m.Username, IsTyping: m.IsTyping}
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrUnknownType, msg)
	}
	return json.Marshal(v)
}

// EncodeFrame serializes msg and appends the frame delimiter.
func EncodeFrame(msg Message) ([]byte, error) {
	payload, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return AppendFrame(make([]byte, 0, len(payload)+1), payload), nil
}

func decodeRecord(frame []byte) (record, string, error) {
	var r record
	if err := json.Unmarshal(frame, &r); err != nil {
		return r, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.Type == nil {
		return r, "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return r, *r.Type, nil
}

// DecodeClient parses one frame sent by a client.
func DecodeClient(frame []byte) (ClientMessage, error) {
	r, typ, err := decodeRecord(frame)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeJoin:
		return Join{Username: r.Username}, nil
	case TypeChat:
		return Chat{Message: r.Message}, nil
	case TypeTypingStart:
		return TypingStart{}, nil
	case TypeTypingStop:
		return TypingStop{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

// DecodeServer parses one frame sent by the server.
func DecodeServer(frame []byte) (ServerMessage, error) {
	r, typ, err := decodeRecord(frame)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeUserJoined:
		return UserJoined{Username: r.Username}, nil
	case TypeUserLeft:
		return UserLeft{Username: r.Username}, nil
	case TypeChat:
		return ChatPosted{Username: r.Username, Message: r.Message}, nil
	case TypeTyping:
		return Typing{Username: r.Username, IsTyping: r.IsTyping}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}
