package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// connManager owns the single transport of a Client. All state transitions and
// control-frame writes happen under mu, so the target-set replay and any
// concurrent Subscribe or Unsubscribe are ordered against activation.
type connManager struct {
	url            string
	header         http.Header
	dialer         Dialer
	connectTimeout time.Duration
	queueSize      int
	policy         ReconnectPolicy
	logger         zerolog.Logger

	// replay returns the frames written to a fresh transport before it is published
	replay func() ([][]byte, error)
	// deliver handles one inbound frame on the dispatcher goroutine
	deliver func(data []byte)
	// onDisconnect and onStateChange are invoked through the hook mailbox
	onDisconnect  func(err error)
	onStateChange func(state ConnectionState)

	mu           sync.Mutex
	state        ConnectionState
	transport    Transport
	session      context.Context
	cancel       context.CancelFunc
	generation   uint64
	lastErr      error
	readerDone   chan struct{}
	dispatchDone chan struct{}
	loops        sync.WaitGroup
	// dials tracks Connect calls between session start and activation
	dials sync.WaitGroup

	stateView atomic.Int32

	hookMu      sync.Mutex
	hookQueue   []func()
	hookRunning bool
}

func (m *connManager) State() ConnectionState {
	return ConnectionState(m.stateView.Load())
}

func (m *connManager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *connManager) setStateLocked(s ConnectionState) {
	if m.state == s {
		return
	}
	m.logger.Debug().Stringer("from", m.state).Stringer("to", s).Msg("connection state changed")
	m.state = s
	m.stateView.Store(int32(s))
	if m.onStateChange != nil {
		m.enqueueHook(func() { m.onStateChange(s) })
	}
}

// Connect dials the endpoint, replays the target set and starts the reader and
// dispatcher. It is a no-op when a connection is already active or in progress.
func (m *connManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnecting, StateConnected:
		state := m.state
		m.mu.Unlock()
		m.logger.Debug().Stringer("state", state).Msg("connect ignored, connection already active")
		return nil
	case StateClosing:
		m.mu.Unlock()
		return &ConnectError{Kind: ErrClosing, URL: m.url}
	}
	session, cancel := context.WithCancel(context.Background())
	m.session, m.cancel = session, cancel
	m.setStateLocked(StateConnecting)
	m.dials.Add(1)
	m.mu.Unlock()

	m.logger.Info().Str("url", m.url).Msg("WebSocket connecting")
	err := m.dialAndActivate(ctx, session)
	m.dials.Done()
	if err != nil {
		m.mu.Lock()
		if m.session == session {
			m.endSessionLocked(err)
		}
		m.mu.Unlock()
		m.logger.Warn().Str("url", m.url).Err(err).Msg("WebSocket connect failed")
		return err
	}
	m.logger.Info().Str("url", m.url).Msg("WebSocket connected")
	return nil
}

// endSessionLocked tears down session bookkeeping and records err
func (m *connManager) endSessionLocked(err error) {
	if m.cancel != nil {
		m.cancel()
	}
	m.session, m.cancel = nil, nil
	if err != nil {
		m.lastErr = err
	}
	m.setStateLocked(StateDisconnected)
}

func (m *connManager) dialAndActivate(ctx context.Context, session context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()
	stop := context.AfterFunc(session, cancel)
	defer stop()

	tr, err := m.dialer.Dial(dialCtx, m.url, m.header)
	if err != nil {
		var connErr *ConnectError
		if errors.As(err, &connErr) {
			return err
		}
		kind := ErrUnreachable
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			kind = ErrConnectTimeout
		}
		return &ConnectError{Kind: kind, URL: m.url, Err: err}
	}
	return m.activate(session, tr)
}

// activate replays the target set on tr and publishes it as the live transport
func (m *connManager) activate(session context.Context, tr Transport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.Err() != nil || m.session != session {
		_ = tr.Close()
		return &ConnectError{Kind: ErrUnreachable, URL: m.url, Err: context.Canceled}
	}

	frames, err := m.replay()
	if err != nil {
		_ = tr.Close()
		return &ConnectError{Kind: ErrUnreachable, URL: m.url, Err: err}
	}
	for _, frame := range frames {
		if err := tr.WriteMessage(frame); err != nil {
			_ = tr.Close()
			return &ConnectError{Kind: ErrUnreachable, URL: m.url, Err: &SendError{Kind: ErrTransportFailure, Err: err}}
		}
	}
	if len(frames) > 0 {
		m.logger.Debug().Int("frames", len(frames)).Msg("subscriptions replayed")
	}

	m.generation++
	gen := m.generation
	queue := make(chan []byte, m.queueSize)
	readerDone := make(chan struct{})
	dispatchDone := make(chan struct{})
	prevDispatch := m.dispatchDone

	m.transport = tr
	m.readerDone = readerDone
	m.dispatchDone = dispatchDone
	m.lastErr = nil
	m.setStateLocked(StateConnected)

	go m.readLoop(session, gen, tr, queue, readerDone)
	go m.dispatchWorker(gen, queue, prevDispatch, dispatchDone)
	return nil
}

// live reports whether gen is still the published connection
func (m *connManager) live(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == gen && m.transport != nil
}

func (m *connManager) readLoop(session context.Context, gen uint64, tr Transport, queue chan<- []byte, done chan<- struct{}) {
	defer close(done)
	defer close(queue)

	for {
		data, err := tr.ReadMessage()
		if err != nil {
			if session.Err() != nil {
				m.logger.Debug().Msg("WebSocket reader stopped (shutdown)")
				return
			}
			m.connectionLost(session, gen, err)
			return
		}

		select {
		case queue <- data:
		case <-session.Done():
			return
		}
	}
}

// dispatchWorker delivers frames in arrival order. It waits for the previous
// connection's dispatcher so handlers never run concurrently.
func (m *connManager) dispatchWorker(gen uint64, queue <-chan []byte, prev <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	dropped := 0
	for data := range queue {
		if !m.live(gen) {
			dropped++
			continue
		}
		m.deliver(data)
	}
	if dropped > 0 {
		m.logger.Debug().Int("dropped", dropped).Msg("frames discarded after connection closed")
	}
}

func (m *connManager) connectionLost(session context.Context, gen uint64, cause error) {
	m.mu.Lock()
	if m.session != session || m.generation != gen || m.transport == nil {
		m.mu.Unlock()
		return
	}

	lost := fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	_ = m.transport.Close()
	m.transport = nil
	m.generation++
	m.lastErr = lost
	m.setStateLocked(StateDisconnected)

	retry := m.policy.Enabled()
	if retry {
		m.setStateLocked(StateConnecting)
		m.loops.Add(1)
		go m.reconnectLoop(session)
	} else {
		m.endSessionLocked(nil)
	}
	m.notify(lost)
	m.mu.Unlock()

	m.logger.Warn().Err(cause).Bool("reconnect", retry).Msg("WebSocket connection lost")
}

func (m *connManager) reconnectLoop(session context.Context) {
	defer m.loops.Done()

	b := backoff.WithContext(m.policy.newBackOff(), session)
	attempts := 0
	var lastErr error
	for {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-session.Done():
			timer.Stop()
			m.logger.Info().Msg("WebSocket reconnection stopped (shutdown)")
			return
		case <-timer.C:
		}

		attempts++
		m.logger.Info().Int("attempt", attempts).Dur("interval", wait).Msg("WebSocket reconnection attempt")
		err := m.dialAndActivate(session, session)
		if err == nil {
			m.logger.Info().Int("attempt", attempts).Msg("WebSocket reconnected successfully")
			return
		}
		if session.Err() != nil {
			return
		}
		lastErr = err
		m.logger.Warn().Err(err).Int("attempt", attempts).Msg("WebSocket reconnection failed")
	}

	if session.Err() != nil {
		return
	}
	exhausted := fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, attempts, lastErr)

	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		return
	}
	m.endSessionLocked(exhausted)
	m.notify(exhausted)
	m.mu.Unlock()

	m.logger.Error().Err(lastErr).Int("attempts", attempts).Msg("WebSocket reconnection gave up")
}

// Disconnect closes the transport and stops the reader, any reconnect loop and
// any dial in progress. It may be called from a handler; it does not wait for
// the dispatcher.
func (m *connManager) Disconnect() error {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(StateClosing)
	m.cancel()
	m.session, m.cancel = nil, nil
	tr := m.transport
	m.transport = nil
	m.generation++
	readerDone := m.readerDone
	m.mu.Unlock()

	m.logger.Info().Str("url", m.url).Msg("WebSocket closing")
	var closeErr error
	if tr != nil {
		closeErr = tr.Close()
		<-readerDone
	}
	m.dials.Wait()
	m.loops.Wait()

	m.mu.Lock()
	if m.session == nil {
		m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()

	if closeErr != nil {
		m.logger.Debug().Err(closeErr).Msg("transport close error")
	}
	m.logger.Info().Str("url", m.url).Msg("WebSocket disconnected")
	return nil
}

// Apply runs update under the connection lock. When connected and update
// returns a frame, the frame is written before the lock is released.
func (m *connManager) Apply(update func(connected bool) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	connected := m.state == StateConnected && m.transport != nil
	frame, err := update(connected)
	if err != nil || frame == nil || !connected {
		return err
	}
	return m.writeLocked(frame)
}

// Send writes one frame on the live transport
func (m *connManager) Send(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected || m.transport == nil {
		return &SendError{Kind: ErrNotConnected}
	}
	return m.writeLocked(frame)
}

func (m *connManager) writeLocked(frame []byte) error {
	if err := m.transport.WriteMessage(frame); err != nil {
		return &SendError{Kind: ErrTransportFailure, Err: err}
	}
	return nil
}

// notify queues err for the disconnect hook
func (m *connManager) notify(err error) {
	if m.onDisconnect == nil {
		return
	}
	m.enqueueHook(func() { m.onDisconnect(err) })
}

// enqueueHook adds fn to the hook mailbox. Hooks run one at a time, in the
// order they were queued, on a goroutine that holds no connection locks.
// Callers may hold mu.
func (m *connManager) enqueueHook(fn func()) {
	m.hookMu.Lock()
	m.hookQueue = append(m.hookQueue, fn)
	if m.hookRunning {
		m.hookMu.Unlock()
		return
	}
	m.hookRunning = true
	m.hookMu.Unlock()
	go m.drainHooks()
}

func (m *connManager) drainHooks() {
	for {
		m.hookMu.Lock()
		if len(m.hookQueue) == 0 {
			m.hookRunning = false
			m.hookMu.Unlock()
			return
		}
		fn := m.hookQueue[0]
		m.hookQueue = m.hookQueue[1:]
		m.hookMu.Unlock()

		m.runHook(fn)
	}
}

func (m *connManager) runHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("connection hook panic")
		}
	}()
	fn()
}
