package subscription

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// Frame types used on the subscription endpoint
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeEvent        = "event"
	TypeAck          = "ack"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeError        = "error"
)

var errNoTargets = errors.New("no application ids")

type controlFrame struct {
	Type           string   `json:"type"`
	ApplicationIDs []string `json:"application_ids"`
}

// EncodeSubscribe builds a subscribe control frame for ids
func EncodeSubscribe(ids []string) ([]byte, error) {
	return encodeControl(TypeSubscribe, ids)
}

// EncodeUnsubscribe builds an unsubscribe control frame for ids
func EncodeUnsubscribe(ids []string) ([]byte, error) {
	return encodeControl(TypeUnsubscribe, ids)
}

func encodeControl(frameType string, ids []string) ([]byte, error) {
	if len(ids) == 0 {
		return nil, errNoTargets
	}
	return json.Marshal(controlFrame{Type: frameType, ApplicationIDs: ids})
}

// Decode parses one inbound frame. Frames that are not a JSON object, or that
// carry a known type with missing required fields, return a *DecodeError.
// A well-formed frame with an unrecognised type decodes to *Unknown.
func Decode(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, &DecodeError{Data: data, Err: errors.New("invalid JSON")}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, &DecodeError{Data: data, Err: errors.New("frame is not a JSON object")}
	}

	frameType := root.Get("type")
	switch frameType.String() {
	case TypeEvent:
		return decodeEvent(data, root)
	case TypeAck, TypeSubscribed, TypeUnsubscribed:
		ack := &Ack{Type: frameType.String()}
		for _, id := range root.Get("application_ids").Array() {
			ack.ApplicationIDs = append(ack.ApplicationIDs, id.String())
		}
		return ack, nil
	case TypeError:
		msg := root.Get("message")
		if !msg.Exists() {
			return nil, &DecodeError{Data: data, Err: errors.New("error frame without message")}
		}
		return &ErrorMessage{Code: root.Get("code").String(), Message: msg.String()}, nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return &Unknown{Type: frameType.String(), Raw: raw}, nil
	}
}

func decodeEvent(data []byte, root gjson.Result) (Message, error) {
	target := root.Get("application_id").String()
	if target == "" {
		target = root.Get("context_id").String()
	}
	if target == "" {
		return nil, &DecodeError{Data: data, Err: errors.New("event without application_id")}
	}

	payload := json.RawMessage("null")
	if p := root.Get("payload"); p.Exists() {
		payload = json.RawMessage(p.Raw)
	}
	return &Event{ApplicationID: target, Payload: payload}, nil
}
