package subscription

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable is the ConnectError kind for network failures
	ErrUnreachable = errors.New("node unreachable")
	// ErrHandshake is the ConnectError kind for a rejected websocket upgrade
	ErrHandshake = errors.New("websocket handshake rejected")
	// ErrConnectTimeout is the ConnectError kind for a dial that did not finish in time
	ErrConnectTimeout = errors.New("connect timed out")
	// ErrClosing is returned by Connect while a Disconnect is still in progress
	ErrClosing = errors.New("connection is closing")

	// ErrNotConnected is the SendError kind when there is no live connection
	ErrNotConnected = errors.New("not connected")
	// ErrTransportFailure is the SendError kind when the transport rejects a write
	ErrTransportFailure = errors.New("transport failure")

	// ErrConnectionLost is reported when the transport closes while connected
	ErrConnectionLost = errors.New("connection lost")
	// ErrReconnectExhausted is reported when the reconnect policy gives up
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrMalformedFrame is wrapped by every DecodeError
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrHandlerFailed is wrapped by every CallbackError
	ErrHandlerFailed = errors.New("handler failed")
)

// ConnectError is returned by Connect
type ConnectError struct {
	Kind error
	URL  string
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connect %s: %v", e.URL, e.Kind)
	}
	return fmt.Sprintf("connect %s: %v: %v", e.URL, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SendError is returned by Subscribe, Unsubscribe and Send when a frame could not be written
type SendError struct {
	Kind error
	Err  error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("send: %v", e.Kind)
	}
	return fmt.Sprintf("send: %v: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// DecodeError reports an inbound frame that could not be decoded. The frame is dropped.
type DecodeError struct {
	Data []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v (%d bytes): %v", ErrMalformedFrame, len(e.Data), e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrMalformedFrame, e.Err}
}

// CallbackError reports a handler that returned an error or panicked
type CallbackError struct {
	Handle  Handle
	Message Message
	Err     error
	// Panic holds the recovered value when the handler panicked
	Panic interface{}
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%v: handle %d (%s): %v", ErrHandlerFailed, e.Handle, e.Message.Kind(), e.Err)
}

func (e *CallbackError) Unwrap() []error {
	return []error{ErrHandlerFailed, e.Err}
}
