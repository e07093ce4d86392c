// Package protocol defines the chat wire protocol: one JSON object per
// frame, discriminated by a "type" field.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type discriminates the protocol message variants on the wire.
type Type string

const (
	// Client to server.
	TypeSetUsername Type = "set_username"
	TypeChatMessage Type = "chat_message"

	// Server to client.
	TypeMessage Type = "message"
	TypeUsers   Type = "users"
	TypeHistory Type = "history"
)

// EventKind classifies a ChatEvent.
type EventKind string

const (
	KindMessage EventKind = "message"
	KindJoin    EventKind = "join"
	KindLeave   EventKind = "leave"
)

// ChatEvent is one immutable entry of the chat log. The timestamp is
// assigned by the server when the event is accepted, never by clients.
type ChatEvent struct {
	Kind      EventKind `json:"kind,omitempty"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// User is a single entry of a presence snapshot.
type User struct {
	Username string `json:"username"`
}

// Message is the union of all protocol message variants. Exactly one
// variant is carried per frame.
type Message interface {
	// Type returns the wire discriminator of the variant.
	Type() Type
}

// SetUsername is the client registration request.
type SetUsername struct {
	Username string
}

// ChatMessage is a client send request. The server attributes the event to
// the connection's registered participant and re-timestamps it.
type ChatMessage struct {
	Username string
	Message  string
}

// Event carries one new chat event to clients.
type Event struct {
	Data ChatEvent
}

// Users carries the full presence snapshot to clients.
type Users struct {
	Data []User
}

// History carries the ordered chat log replay to a newly registered client.
type History struct {
	Data []ChatEvent
}

func (*SetUsername) Type() Type { return TypeSetUsername }
func (*ChatMessage) Type() Type { return TypeChatMessage }
func (*Event) Type() Type       { return TypeMessage }
func (*Users) Type() Type       { return TypeUsers }
func (*History) Type() Type     { return TypeHistory }

// DecodeError reports a frame that could not be decoded into exactly one
// recognized variant. The frame is discarded; the connection stays up.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode frame: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// envelope is the wire shape shared by all variants. Client-to-server
// variants carry their fields inline, server-to-client variants carry a
// "data" payload.
type envelope struct {
	Type     Type            `json:"type"`
	Username string          `json:"username,omitempty"`
	Message  string          `json:"message,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Encode serializes a Message into a single JSON frame. Failure here is a
// local bug, not a protocol condition.
func Encode(m Message) ([]byte, error) {
	env := envelope{Type: m.Type()}

	var err error
	switch v := m.(type) {
	case *SetUsername:
		env.Username = v.Username
	case *ChatMessage:
		env.Username = v.Username
		env.Message = v.Message
	case *Event:
		env.Data, err = json.Marshal(v.Data)
	case *Users:
		// Clients iterate data; an empty snapshot must be [], not null.
		users := v.Data
		if users == nil {
			users = []User{}
		}
		env.Data, err = json.Marshal(users)
	case *History:
		events := v.Data
		if events == nil {
			events = []ChatEvent{}
		}
		env.Data, err = json.Marshal(events)
	default:
		return nil, fmt.Errorf("encode frame: unknown variant %T", m)
	}
	if err != nil {
		return nil, fmt.Errorf("encode frame %q: %w", m.Type(), err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode frame %q: %w", m.Type(), err)
	}
	return data, nil
}

// Decode parses a single JSON frame into its Message variant. Any failure
// is returned as a *DecodeError.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Reason: "malformed frame", Err: err}
	}

	switch env.Type {
	case TypeSetUsername:
		return &SetUsername{Username: env.Username}, nil
	case TypeChatMessage:
		return &ChatMessage{Username: env.Username, Message: env.Message}, nil
	case TypeMessage:
		var ev ChatEvent
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		return &Event{Data: ev}, nil
	case TypeUsers:
		var users []User
		if err := unmarshalData(env.Data, &users); err != nil {
			return nil, err
		}
		if users == nil {
			// A null payload decodes the same as an empty snapshot.
			users = []User{}
		}
		return &Users{Data: users}, nil
	case TypeHistory:
		var events []ChatEvent
		if err := unmarshalData(env.Data, &events); err != nil {
			return nil, err
		}
		if events == nil {
			events = []ChatEvent{}
		}
		return &History{Data: events}, nil
	case "":
		return nil, &DecodeError{Reason: "missing type discriminator"}
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unrecognized type %q", env.Type)}
	}
}

func unmarshalData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return &DecodeError{Reason: "missing data payload"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{Reason: "malformed data payload", Err: err}
	}
	return nil
}
