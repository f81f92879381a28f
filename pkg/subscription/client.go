// Package subscription implements the node event subscription client: one
// websocket connection, a desired set of application ids that survives
// reconnects, and ordered dispatch of inbound events to registered handlers.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Client subscribes to application events on a Calimero node.
// All methods are safe for concurrent use and may be called from handlers.
type Client struct {
	url      string
	opts     Options
	logger   zerolog.Logger
	targets  *targetSet
	handlers *callbackRegistry
	conn     *connManager
}

// New creates a Client for the node at baseURL. No connection is made until Connect.
func New(baseURL string, opts Options, logger zerolog.Logger) (*Client, error) {
	opts = opts.withDefaults()
	endpoint, err := BuildURL(baseURL, opts.Path)
	if err != nil {
		return nil, err
	}

	logger = logger.With().Str("component", "subscription").Logger()
	c := &Client{
		url:      endpoint,
		opts:     opts,
		logger:   logger,
		targets:  newTargetSet(),
		handlers: &callbackRegistry{},
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &WSDialer{
			HandshakeTimeout: opts.ConnectTimeout,
			WriteTimeout:     opts.WriteTimeout,
			ReadTimeout:      opts.ReadTimeout,
			PingInterval:     opts.PingInterval,
			Logger:           logger,
		}
	}

	c.conn = &connManager{
		url:            endpoint,
		header:         opts.header(),
		dialer:         dialer,
		connectTimeout: opts.ConnectTimeout,
		queueSize:      opts.EventQueueSize,
		policy:         opts.Reconnect,
		logger:         logger,
		replay:         c.replayFrames,
		deliver:        c.handleFrame,
		onDisconnect:   opts.OnDisconnect,
		onStateChange:  opts.OnStateChange,
	}
	return c, nil
}

// URL returns the websocket endpoint
func (c *Client) URL() string {
	return c.url
}

// Connect opens the connection and subscribes to every id in the desired set.
// Calling Connect on an active connection is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Disconnect closes the connection. Subscriptions and handlers are kept for the next Connect.
func (c *Client) Disconnect() error {
	return c.conn.Disconnect()
}

// State returns the current connection state
func (c *Client) State() ConnectionState {
	return c.conn.State()
}

// LastError returns the error behind the most recent failed connect or drop
func (c *Client) LastError() error {
	return c.conn.LastError()
}

// Subscribe adds ids to the desired set. When connected, one subscribe frame
// is sent for the ids that were not already present.
func (c *Client) Subscribe(ids ...string) error {
	return c.conn.Apply(func(connected bool) ([]byte, error) {
		added := c.targets.add(ids)
		if len(added) == 0 {
			return nil, nil
		}
		c.logger.Debug().Strs("applicationIds", added).Bool("connected", connected).Msg("subscribe")
		if !connected {
			return nil, nil
		}
		return EncodeSubscribe(added)
	})
}

// Unsubscribe removes ids from the desired set. When connected, one
// unsubscribe frame is sent for the ids that were present.
func (c *Client) Unsubscribe(ids ...string) error {
	return c.conn.Apply(func(connected bool) ([]byte, error) {
		removed := c.targets.remove(ids)
		if len(removed) == 0 {
			return nil, nil
		}
		c.logger.Debug().Strs("applicationIds", removed).Bool("connected", connected).Msg("unsubscribe")
		if !connected {
			return nil, nil
		}
		return EncodeUnsubscribe(removed)
	})
}

// Subscriptions returns the desired set, sorted
func (c *Client) Subscriptions() []string {
	return c.targets.snapshot()
}

// IsSubscribed reports whether id is in the desired set
func (c *Client) IsSubscribed(id string) bool {
	return c.targets.contains(id)
}

// AddHandler registers h and returns its handle. A handler added while a
// message is being dispatched receives messages from the next one on.
func (c *Client) AddHandler(h Handler) Handle {
	return c.handlers.add(h)
}

// AddHandlerFunc registers f and returns its handle
func (c *Client) AddHandlerFunc(f func(msg Message) error) Handle {
	return c.handlers.add(HandlerFunc(f))
}

// RemoveHandler unregisters the handler. It reports false for unknown handles.
// A handler removed during dispatch still receives the message in flight.
func (c *Client) RemoveHandler(handle Handle) bool {
	return c.handlers.remove(handle)
}

// HandlerCount returns the number of registered handlers
func (c *Client) HandlerCount() int {
	return c.handlers.len()
}

// Send writes an arbitrary JSON frame on the live connection
func (c *Client) Send(v interface{}) error {
	var data []byte
	switch msg := v.(type) {
	case []byte:
		data = msg
	case json.RawMessage:
		data = msg
	default:
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal frame: %w", err)
		}
	}
	return c.conn.Send(data)
}

func (c *Client) replayFrames() ([][]byte, error) {
	ids := c.targets.snapshot()
	if len(ids) == 0 {
		return nil, nil
	}
	frame, err := EncodeSubscribe(ids)
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

func (c *Client) handleFrame(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		c.reportError(err)
		return
	}

	switch m := msg.(type) {
	case *ErrorMessage:
		c.logger.Warn().Str("code", m.Code).Str("message", m.Message).Msg("node reported subscription error")
	case *Ack:
		c.logger.Debug().Str("type", m.Type).Strs("applicationIds", m.ApplicationIDs).Msg("subscription acknowledged")
	}
	c.dispatch(msg)
}

// dispatch calls every handler registered when dispatch began, in registration order
func (c *Client) dispatch(msg Message) {
	for _, entry := range c.handlers.snapshot() {
		start := time.Now()
		err := c.invoke(entry, msg)
		if d := time.Since(start); d > slowHandlerThreshold {
			c.logger.Warn().Uint64("handle", uint64(entry.handle)).Dur("handlerDuration", d).Msg("subscription handler slow")
		}
		if err != nil {
			c.reportError(err)
		}
	}
}

func (c *Client) invoke(entry handlerEntry, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CallbackError{Handle: entry.handle, Message: msg, Panic: r, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if herr := entry.handler.HandleMessage(msg); herr != nil {
		return &CallbackError{Handle: entry.handle, Message: msg, Err: herr}
	}
	return nil
}

func (c *Client) reportError(err error) {
	if c.opts.OnError == nil {
		c.logger.Error().Err(err).Msg("subscription dispatch error")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("error hook panic")
		}
	}()
	c.opts.OnError(err)
}
