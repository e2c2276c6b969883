// Package protocol encodes and decodes the tagged JSON envelopes exchanged
// between chat clients and the hub. The "type" field selects the variant.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Wire tags.
const (
	TypeLogin         = "Login"
	TypeMessage       = "Message"
	TypeLoginSystem   = "LoginSystem"
	TypeJoinSystem    = "JoinSystem"
	TypeChatters      = "Chatters"
	TypeLoginRejected = "LoginRejected"
)

var (
	// ErrMalformed reports a frame that is not a JSON object of the expected shape.
	ErrMalformed = errors.New("malformed envelope")
	// ErrMissingType reports an envelope without a "type" tag.
	ErrMissingType = errors.New("missing envelope type")
	// ErrUnknownType reports a tag that names no known variant.
	ErrUnknownType = errors.New("unknown envelope type")
	// ErrInvalidEnvelope reports a well-formed envelope with invalid fields.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

var validate = validator.New()

// Inbound is an action sent by a client. It is implemented by Login and Chat only.
type Inbound interface {
	inbound()
}

// Login asks the hub to register Name for the sending connection.
type Login struct {
	Name string `json:"name" validate:"required"`
}

// Chat asks the hub to broadcast Text on behalf of Chatter. Chatter is
// whatever the client claims, the empty string included.
type Chat struct {
	Chatter string `json:"chatter"`
	Text    string `json:"text"`
}

func (Login) inbound() {}
func (Chat) inbound()  {}

// Outbound is a message built by the hub for one or more clients.
type Outbound interface {
	outbound()
}

// LoginAck confirms a login to the new chatter only.
type LoginAck struct {
	Text string
}

// JoinNotice announces a new chatter to everyone.
type JoinNotice struct {
	Text string
}

// ChatMessage is a stamped chat line. Time is in milliseconds since the epoch.
type ChatMessage struct {
	Chatter string
	Time    uint64
	Text    string
}

// RosterSnapshot lists every registered name. Order carries no meaning.
type RosterSnapshot struct {
	Chatters []string
}

// LoginRejected tells a client its requested name is taken.
type LoginRejected struct {
	Text string
}

func (LoginAck) outbound()       {}
func (JoinNotice) outbound()     {}
func (ChatMessage) outbound()    {}
func (RosterSnapshot) outbound() {}
func (LoginRejected) outbound()  {}

type textWire struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatWire struct {
	Type    string `json:"type"`
	Chatter string `json:"chatter"`
	Time    uint64 `json:"time"`
	Text    string `json:"text"`
}

type chattersWire struct {
	Type     string   `json:"type"`
	Chatters []string `json:"chatters"`
}

// Decode parses one client frame. Every failure wraps one of the package
// sentinel errors so callers can classify it with errors.Is.
//
// Field names match exactly and every field of the variant must be present.
// Unknown fields are ignored.
func Decode(raw []byte) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	rawType, ok := fields["type"]
	if !ok || isNull(rawType) {
		return nil, ErrMissingType
	}
	var tag string
	if err := json.Unmarshal(rawType, &tag); err != nil {
		return nil, fmt.Errorf("%w: type: %v", ErrMalformed, err)
	}

	switch tag {
	case "":
		return nil, ErrMissingType
	case TypeLogin:
		var login Login
		if err := stringField(fields, "name", &login.Name); err != nil {
			return nil, err
		}
		if err := validate.Struct(login); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		return login, nil
	case TypeMessage:
		var chat Chat
		if err := stringField(fields, "chatter", &chat.Chatter); err != nil {
			return nil, err
		}
		if err := stringField(fields, "text", &chat.Text); err != nil {
			return nil, err
		}
		return chat, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
}

func stringField(fields map[string]json.RawMessage, key string, dst *string) error {
	value, ok := fields[key]
	if !ok || isNull(value) {
		return fmt.Errorf("%w: missing %q", ErrInvalidEnvelope, key)
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	return nil
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}

// Encode renders msg as a single JSON text frame.
func Encode(msg Outbound) ([]byte, error) {
	switch m := msg.(type) {
	case LoginAck:
		return json.Marshal(textWire{Type: TypeLoginSystem, Text: m.Text})
	case JoinNotice:
		return json.Marshal(textWire{Type: TypeJoinSystem, Text: m.Text})
	case LoginRejected:
		return json.Marshal(textWire{Type: TypeLoginRejected, Text: m.Text})
	case ChatMessage:
		return json.Marshal(chatWire{Type: TypeMessage, Chatter: m.Chatter, Time: m.Time, Text: m.Text})
	case RosterSnapshot:
		chatters := m.Chatters
		if chatters == nil {
			chatters = []string{}
		}
		return json.Marshal(chattersWire{Type: TypeChatters, Chatters: chatters})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}
