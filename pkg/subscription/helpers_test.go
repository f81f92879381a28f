package subscription

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

var errTransportClosed = errors.New("transport closed")

type fakeTransport struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case <-t.closed:
		return nil, errTransportClosed
	default:
	}
	select {
	case data := <-t.inbound:
		return data, nil
	case <-t.closed:
		return nil, errTransportClosed
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	if t.isClosed() {
		return errTransportClosed
	}
	t.written = append(t.written, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// push simulates a frame arriving from the node
func (t *fakeTransport) push(frame string) {
	t.inbound <- []byte(frame)
}

// drop simulates the node closing the connection
func (t *fakeTransport) drop() {
	_ = t.Close()
}

func (t *fakeTransport) failWrites(err error) {
	t.mu.Lock()
	t.writeErr = err
	t.mu.Unlock()
}

func (t *fakeTransport) frames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.written))
	for i, f := range t.written {
		out[i] = string(f)
	}
	return out
}

type fakeDialer struct {
	mu         sync.Mutex
	urls       []string
	headers    []http.Header
	transports []*fakeTransport
	failAlways error

	// gate, when set, holds every Dial until it is closed
	gate    chan struct{}
	started chan struct{}
}

func (d *fakeDialer) Dial(_ context.Context, url string, header http.Header) (Transport, error) {
	d.mu.Lock()
	gate, started := d.gate, d.started
	d.mu.Unlock()
	if gate != nil {
		started <- struct{}{}
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	d.headers = append(d.headers, header)
	if d.failAlways != nil {
		return nil, d.failAlways
	}
	t := newFakeTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

// hold makes the next dials block until the returned release func is called
func (d *fakeDialer) hold() (started <-chan struct{}, release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
	d.started = make(chan struct{}, 8)
	gate := d.gate
	return d.started, func() { close(gate) }
}

func (d *fakeDialer) setFailure(err error) {
	d.mu.Lock()
	d.failAlways = err
	d.mu.Unlock()
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.transports) {
		return nil
	}
	return d.transports[i]
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func newTestClient(t *testing.T, opts Options) (*Client, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{}
	opts.Dialer = d
	c, err := New("ws://localhost:2628", opts, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Disconnect() })
	return c, d
}

// recorder collects messages delivered to a handler
type recorder struct {
	ch chan Message
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Message, 64)}
}

func (r *recorder) HandleMessage(msg Message) error {
	r.ch <- msg
	return nil
}

func (r *recorder) next(t *testing.T) Message {
	t.Helper()
	select {
	case msg := <-r.ch:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func (r *recorder) pending() int {
	return len(r.ch)
}

func errorSink() (func(error), chan error) {
	ch := make(chan error, 64)
	return func(err error) { ch <- err }, ch
}

func nextError(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for error")
		return nil
	}
}

func connect(t *testing.T, c *Client) {
	t.Helper()
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, StateConnected, c.State())
}
