package subscription

import (
	"encoding/json"
)

// ConnectionState represents the lifecycle state of the subscription connection
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String returns the state name
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// MessageKind identifies the variant of an inbound Message
type MessageKind string

const (
	KindEvent   MessageKind = "event"
	KindAck     MessageKind = "ack"
	KindError   MessageKind = "error"
	KindUnknown MessageKind = "unknown"
)

// Message is a decoded inbound frame. Concrete types are *Event, *Ack, *ErrorMessage and *Unknown.
type Message interface {
	Kind() MessageKind
}

// Event is a push notification for one subscribed application or context
type Event struct {
	ApplicationID string          `json:"application_id"`
	Payload       json.RawMessage `json:"payload"`
}

// Kind implements Message
func (e *Event) Kind() MessageKind { return KindEvent }

// DecodePayload unmarshals the event payload into v
func (e *Event) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Ack confirms a subscribe or unsubscribe control message
type Ack struct {
	Type           string   `json:"type"`
	ApplicationIDs []string `json:"application_ids,omitempty"`
}

// Kind implements Message
func (a *Ack) Kind() MessageKind { return KindAck }

// ErrorMessage is an error reported by the node over the subscription feed
type ErrorMessage struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Kind implements Message
func (e *ErrorMessage) Kind() MessageKind { return KindError }

// Unknown carries a well-formed frame whose type is not recognised
type Unknown struct {
	Type string          `json:"type,omitempty"`
	Raw  json.RawMessage `json:"raw"`
}

// Kind implements Message
func (u *Unknown) Kind() MessageKind { return KindUnknown }
