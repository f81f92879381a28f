package subscription

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const maxMessageSize = 16 << 20

// Transport is a bidirectional message channel to the node.
// ReadMessage is called from a single goroutine; WriteMessage and Close may be
// called concurrently with it.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a Transport. Errors should be *ConnectError so the caller can
// tell an unreachable node from a rejected handshake or a timeout.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Transport, error)
}

// WSDialer dials the node websocket endpoint with gorilla/websocket
type WSDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout bounds the wait for the next frame or pong. Zero disables it.
	ReadTimeout time.Duration
	// PingInterval enables keepalive pings when positive
	PingInterval time.Duration
	Logger       zerolog.Logger
}

// Dial implements Dialer
func (d *WSDialer) Dial(ctx context.Context, url string, header http.Header) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, classifyDialError(ctx, url, resp, err)
	}
	return newWSTransport(conn, d.WriteTimeout, d.ReadTimeout, d.PingInterval, d.Logger), nil
}

func classifyDialError(ctx context.Context, url string, resp *http.Response, err error) error {
	var netErr net.Error
	kind := ErrUnreachable
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = ErrConnectTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = ErrConnectTimeout
	case resp != nil:
		kind = ErrHandshake
		err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
	case errors.Is(err, websocket.ErrBadHandshake):
		kind = ErrHandshake
	}
	return &ConnectError{Kind: kind, URL: url, Err: err}
}

type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	readTimeout  time.Duration
	logger       zerolog.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newWSTransport(conn *websocket.Conn, writeTimeout, readTimeout, pingInterval time.Duration, logger zerolog.Logger) *wsTransport {
	t := &wsTransport{
		conn:         conn,
		writeTimeout: writeTimeout,
		readTimeout:  readTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	if readTimeout > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
	}
	if pingInterval > 0 {
		t.wg.Add(1)
		go t.pingLoop(pingInterval)
	}
	return t
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	if t.readTimeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	}
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame, closes the socket and stops the ping loop
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)

		t.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		t.writeMu.Unlock()

		err = t.conn.Close()
		t.wg.Wait()
	})
	return err
}

func (t *wsTransport) pingLoop(interval time.Duration) {
	defer t.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if t.writeTimeout > 0 {
				deadline = time.Now().Add(t.writeTimeout)
			}
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, []byte{}, deadline)
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug().Err(err).Msg("ping write failed")
				return
			}
		}
	}
}
