package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sentinel = `{"type":"sync"}`

func TestNew(t *testing.T) {
	t.Run("derives websocket endpoint", func(t *testing.T) {
		c, err := New("http://localhost:2428", Options{}, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, "ws://localhost:2428/ws", c.URL())
		assert.Equal(t, StateDisconnected, c.State())
	})

	t.Run("rejects invalid url", func(t *testing.T) {
		_, err := New("ftp://node", Options{}, zerolog.Nop())
		require.Error(t, err)
	})
}

func TestClient_Connect(t *testing.T) {
	t.Run("dials endpoint once", func(t *testing.T) {
		c, d := newTestClient(t, Options{AuthToken: "secret"})
		connect(t, c)
		require.NoError(t, c.Connect(context.Background()))

		assert.Equal(t, 1, d.dials())
		assert.Equal(t, "ws://localhost:2628/ws", d.urls[0])
		assert.Equal(t, "Bearer secret", d.headers[0].Get("Authorization"))
		assert.Empty(t, d.last().frames())
	})

	t.Run("failure leaves client disconnected", func(t *testing.T) {
		c, d := newTestClient(t, Options{})
		d.setFailure(&ConnectError{Kind: ErrHandshake, URL: "ws://localhost:2628/ws"})

		err := c.Connect(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrHandshake)
		assert.Equal(t, StateDisconnected, c.State())
		assert.ErrorIs(t, c.LastError(), ErrHandshake)
	})

	t.Run("plain dial error is unreachable", func(t *testing.T) {
		c, d := newTestClient(t, Options{})
		d.setFailure(errors.New("connection refused"))

		err := c.Connect(context.Background())
		var connErr *ConnectError
		require.ErrorAs(t, err, &connErr)
		assert.ErrorIs(t, err, ErrUnreachable)
	})

	t.Run("can connect after failure", func(t *testing.T) {
		c, d := newTestClient(t, Options{})
		d.setFailure(errors.New("connection refused"))
		require.Error(t, c.Connect(context.Background()))

		d.setFailure(nil)
		connect(t, c)
		assert.NoError(t, c.LastError())
	})
}

func TestClient_SubscribeBeforeConnect(t *testing.T) {
	c, d := newTestClient(t, Options{})
	require.NoError(t, c.Subscribe("A"))
	require.NoError(t, c.Subscribe("B"))
	require.NoError(t, c.Unsubscribe("A"))
	assert.Equal(t, 0, d.dials())

	connect(t, c)
	frames := d.last().frames()
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"type":"subscribe","application_ids":["B"]}`, frames[0])
}

func TestClient_ReplayHasNoDuplicates(t *testing.T) {
	c, d := newTestClient(t, Options{})
	require.NoError(t, c.Subscribe("b", "a", "b"))
	require.NoError(t, c.Subscribe("a", "c", ""))

	connect(t, c)
	frames := d.last().frames()
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"type":"subscribe","application_ids":["a","b","c"]}`, frames[0])
	assert.Equal(t, []string{"a", "b", "c"}, c.Subscriptions())
}

func TestClient_SubscribeWhileConnected(t *testing.T) {
	c, d := newTestClient(t, Options{})
	connect(t, c)
	tr := d.last()

	require.NoError(t, c.Subscribe("a"))
	require.NoError(t, c.Subscribe("a"))
	require.NoError(t, c.Subscribe("a", "b"))
	require.NoError(t, c.Unsubscribe("missing"))
	require.NoError(t, c.Unsubscribe("a"))

	frames := tr.frames()
	require.Len(t, frames, 3)
	assert.JSONEq(t, `{"type":"subscribe","application_ids":["a"]}`, frames[0])
	assert.JSONEq(t, `{"type":"subscribe","application_ids":["b"]}`, frames[1])
	assert.JSONEq(t, `{"type":"unsubscribe","application_ids":["a"]}`, frames[2])
	assert.True(t, c.IsSubscribed("b"))
	assert.False(t, c.IsSubscribed("a"))
}

func TestClient_SubscribeSendFailureKeepsIntent(t *testing.T) {
	c, d := newTestClient(t, Options{})
	connect(t, c)
	d.last().failWrites(errors.New("broken pipe"))

	err := c.Subscribe("a")
	assert.ErrorIs(t, err, ErrTransportFailure)
	assert.True(t, c.IsSubscribed("a"))
}

func TestClient_EventDelivery(t *testing.T) {
	c, d := newTestClient(t, Options{})
	rec := newRecorder()
	c.AddHandler(rec)
	require.NoError(t, c.Subscribe("app-1"))
	connect(t, c)

	tr := d.last()
	require.Equal(t, []string{`{"type":"subscribe","application_ids":["app-1"]}`}, tr.frames())

	tr.push(`{"type":"event","application_id":"app-1","payload":{"k":"v"}}`)
	tr.push(sentinel)

	msg := rec.next(t)
	ev, ok := msg.(*Event)
	require.True(t, ok, "expected *Event, got %T", msg)
	assert.Equal(t, "app-1", ev.ApplicationID)

	encoded, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"application_id":"app-1","payload":{"k":"v"}}`, string(encoded))

	var payload map[string]string
	require.NoError(t, ev.DecodePayload(&payload))
	assert.Equal(t, "v", payload["k"])

	assert.IsType(t, &Unknown{}, rec.next(t))
	assert.Equal(t, 0, rec.pending())
}

func TestClient_EventsDispatchedInOrder(t *testing.T) {
	c, d := newTestClient(t, Options{})
	rec := newRecorder()
	c.AddHandler(rec)
	connect(t, c)

	tr := d.last()
	for _, id := range []string{"a", "b", "c", "d"} {
		tr.push(`{"type":"event","application_id":"` + id + `","payload":null}`)
	}
	for _, id := range []string{"a", "b", "c", "d"} {
		ev := rec.next(t).(*Event)
		assert.Equal(t, id, ev.ApplicationID)
	}
}

func TestClient_HandlerIsolation(t *testing.T) {
	onError, errs := errorSink()
	c, d := newTestClient(t, Options{OnError: onError})

	var mu sync.Mutex
	var calls []string
	record := func(name string) {
		mu.Lock()
		calls = append(calls, name)
		mu.Unlock()
	}

	c.AddHandlerFunc(func(Message) error { record("first"); return nil })
	failing := c.AddHandlerFunc(func(Message) error { record("failing"); return errors.New("boom") })
	panicking := c.AddHandlerFunc(func(Message) error { record("panicking"); panic("kaboom") })
	last := newRecorder()
	c.AddHandlerFunc(func(msg Message) error { record("last"); return last.HandleMessage(msg) })

	connect(t, c)
	tr := d.last()
	tr.push(`{"type":"event","application_id":"a","payload":1}`)
	last.next(t)

	mu.Lock()
	assert.Equal(t, []string{"first", "failing", "panicking", "last"}, calls)
	mu.Unlock()

	var cbErr *CallbackError
	err := nextError(t, errs)
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, failing, cbErr.Handle)
	assert.Nil(t, cbErr.Panic)

	err = nextError(t, errs)
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, panicking, cbErr.Handle)
	assert.Equal(t, "kaboom", cbErr.Panic)
	assert.ErrorIs(t, err, ErrHandlerFailed)

	tr.push(`{"type":"event","application_id":"a","payload":2}`)
	ev := last.next(t).(*Event)
	assert.JSONEq(t, `2`, string(ev.Payload))
}

func TestClient_HandlerRegistryChangesDuringDispatch(t *testing.T) {
	t.Run("removed handler still receives current event", func(t *testing.T) {
		c, d := newTestClient(t, Options{})
		removed := newRecorder()
		var removedHandle Handle
		c.AddHandlerFunc(func(msg Message) error {
			c.RemoveHandler(removedHandle)
			return nil
		})
		removedHandle = c.AddHandler(removed)
		tail := newRecorder()
		c.AddHandler(tail)

		connect(t, c)
		tr := d.last()
		tr.push(`{"type":"event","application_id":"a","payload":1}`)
		tail.next(t)
		assert.Equal(t, 1, removed.pending())

		tr.push(`{"type":"event","application_id":"a","payload":2}`)
		tail.next(t)
		assert.Equal(t, 1, removed.pending())
		assert.Equal(t, 2, c.HandlerCount())
	})

	t.Run("added handler starts with next event", func(t *testing.T) {
		c, d := newTestClient(t, Options{})
		added := newRecorder()
		var once sync.Once
		c.AddHandlerFunc(func(msg Message) error {
			once.Do(func() { c.AddHandler(added) })
			return nil
		})
		tail := newRecorder()
		c.AddHandler(tail)

		connect(t, c)
		tr := d.last()
		tr.push(`{"type":"event","application_id":"a","payload":1}`)
		tail.next(t)
		assert.Equal(t, 0, added.pending())

		tr.push(`{"type":"event","application_id":"a","payload":2}`)
		ev := added.next(t).(*Event)
		assert.JSONEq(t, `2`, string(ev.Payload))
	})
}

func TestClient_RemoveUnknownHandle(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	h := c.AddHandler(newRecorder())

	assert.False(t, c.RemoveHandler(Handle(42)))
	assert.Equal(t, 1, c.HandlerCount())
	assert.True(t, c.RemoveHandler(h))
	assert.False(t, c.RemoveHandler(h))
	assert.Equal(t, 0, c.HandlerCount())
}

func TestClient_MalformedFrame(t *testing.T) {
	onError, errs := errorSink()
	c, d := newTestClient(t, Options{OnError: onError})
	rec := newRecorder()
	c.AddHandler(rec)
	connect(t, c)

	tr := d.last()
	tr.push(`{not json`)
	tr.push(`{"type":"event","payload":{}}`)
	tr.push(`{"type":"event","application_id":"a","payload":{}}`)

	assert.ErrorIs(t, nextError(t, errs), ErrMalformedFrame)
	assert.ErrorIs(t, nextError(t, errs), ErrMalformedFrame)
	ev := rec.next(t).(*Event)
	assert.Equal(t, "a", ev.ApplicationID)
	assert.Equal(t, StateConnected, c.State())
}

func TestClient_Send(t *testing.T) {
	c, d := newTestClient(t, Options{})

	err := c.Send(map[string]string{"type": "ping"})
	assert.ErrorIs(t, err, ErrNotConnected)
	var sendErr *SendError
	assert.ErrorAs(t, err, &sendErr)

	connect(t, c)
	require.NoError(t, c.Send(map[string]string{"type": "ping"}))
	require.NoError(t, c.Send([]byte(`{"type":"raw"}`)))

	frames := d.last().frames()
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"type":"ping"}`, frames[0])
	assert.Equal(t, `{"type":"raw"}`, frames[1])

	d.last().failWrites(errors.New("broken pipe"))
	assert.ErrorIs(t, c.Send(map[string]string{"type": "ping"}), ErrTransportFailure)
}

func TestClient_Disconnect(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		c, d := newTestClient(t, Options{})
		require.NoError(t, c.Disconnect())
		assert.Equal(t, StateDisconnected, c.State())

		connect(t, c)
		require.NoError(t, c.Disconnect())
		require.NoError(t, c.Disconnect())
		assert.Equal(t, StateDisconnected, c.State())
		assert.True(t, d.last().isClosed())
	})

	t.Run("keeps subscriptions and handlers", func(t *testing.T) {
		c, d := newTestClient(t, Options{})
		rec := newRecorder()
		c.AddHandler(rec)
		require.NoError(t, c.Subscribe("a"))
		connect(t, c)
		require.NoError(t, c.Disconnect())

		connect(t, c)
		assert.Equal(t, 2, d.dials())
		assert.Equal(t, []string{`{"type":"subscribe","application_ids":["a"]}`}, d.last().frames())

		d.last().push(`{"type":"event","application_id":"a","payload":null}`)
		assert.IsType(t, &Event{}, rec.next(t))
	})

	t.Run("from inside a handler", func(t *testing.T) {
		c, d := newTestClient(t, Options{})
		done := make(chan error, 1)
		c.AddHandlerFunc(func(Message) error {
			done <- c.Disconnect()
			return nil
		})
		connect(t, c)
		d.last().push(`{"type":"event","application_id":"a","payload":null}`)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(waitTimeout):
			t.Fatal("disconnect from handler did not return")
		}
		assert.Equal(t, StateDisconnected, c.State())
	})
}

func TestClient_DisconnectDuringDial(t *testing.T) {
	c, d := newTestClient(t, Options{})
	started, release := d.hold()

	connectErr := make(chan error, 1)
	go func() { connectErr <- c.Connect(context.Background()) }()
	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("dial did not start")
	}

	disconnected := make(chan error, 1)
	go func() { disconnected <- c.Disconnect() }()
	require.Eventually(t, func() bool {
		return c.State() == StateClosing
	}, waitTimeout, time.Millisecond)

	select {
	case <-disconnected:
		t.Fatal("disconnect returned while a dial was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case err := <-disconnected:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("disconnect did not return after dial finished")
	}

	assert.Error(t, <-connectErr)
	assert.Equal(t, StateDisconnected, c.State())
	require.Equal(t, 1, d.dials())
	assert.True(t, d.last().isClosed())
	assert.Error(t, c.Send(map[string]string{"type": "ping"}))
}

func TestClient_SubscribeFromHandler(t *testing.T) {
	c, d := newTestClient(t, Options{})
	done := make(chan error, 1)
	c.AddHandlerFunc(func(msg Message) error {
		if _, ok := msg.(*Event); ok {
			done <- c.Subscribe("b")
		}
		return nil
	})
	connect(t, c)
	tr := d.last()
	tr.push(`{"type":"event","application_id":"a","payload":null}`)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("subscribe from handler did not return")
	}
	assert.Equal(t, []string{`{"type":"subscribe","application_ids":["b"]}`}, tr.frames())
}

func TestClient_ConnectionLost(t *testing.T) {
	onDisconnect, lost := errorSink()
	c, d := newTestClient(t, Options{OnDisconnect: onDisconnect})
	rec := newRecorder()
	c.AddHandler(rec)
	require.NoError(t, c.Subscribe("a"))
	connect(t, c)

	first := d.last()
	first.drop()

	err := nextError(t, lost)
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.Equal(t, StateDisconnected, c.State())
	assert.ErrorIs(t, c.LastError(), ErrConnectionLost)
	assert.Equal(t, []string{"a"}, c.Subscriptions())
	assert.Equal(t, 1, d.dials())

	first.inbound <- []byte(`{"type":"event","application_id":"a","payload":"stale"}`)
	assert.ErrorIs(t, c.Send(map[string]string{"type": "ping"}), ErrNotConnected)

	connect(t, c)
	second := d.last()
	assert.Equal(t, []string{`{"type":"subscribe","application_ids":["a"]}`}, second.frames())

	second.push(`{"type":"event","application_id":"a","payload":"fresh"}`)
	ev := rec.next(t).(*Event)
	assert.JSONEq(t, `"fresh"`, string(ev.Payload))
	assert.Equal(t, 0, rec.pending())
}

// stateLog collects OnStateChange and OnDisconnect calls in delivery order
type stateLog struct {
	ch chan string
}

func newStateLog() *stateLog {
	return &stateLog{ch: make(chan string, 64)}
}

func (l *stateLog) state(s ConnectionState) { l.ch <- s.String() }

func (l *stateLog) disconnect(err error) { l.ch <- "lost" }

func (l *stateLog) expect(t *testing.T, want ...string) {
	t.Helper()
	got := make([]string, 0, len(want))
	for range want {
		select {
		case entry := <-l.ch:
			got = append(got, entry)
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for hooks, got %v want %v", got, want)
		}
	}
	assert.Equal(t, want, got)
}

func TestClient_StateChangeHook(t *testing.T) {
	t.Run("connect drop and reconnect", func(t *testing.T) {
		log := newStateLog()
		c, d := newTestClient(t, Options{
			Reconnect:     fastReconnect(3),
			OnStateChange: log.state,
			OnDisconnect:  log.disconnect,
		})
		connect(t, c)
		log.expect(t, StateConnecting.String(), StateConnected.String())

		d.last().drop()
		log.expect(t,
			StateDisconnected.String(),
			StateConnecting.String(),
			"lost",
			StateConnected.String(),
		)

		require.NoError(t, c.Disconnect())
		log.expect(t, StateClosing.String(), StateDisconnected.String())
		assert.Equal(t, 0, len(log.ch))
	})

	t.Run("drop without reconnect", func(t *testing.T) {
		log := newStateLog()
		c, d := newTestClient(t, Options{OnStateChange: log.state, OnDisconnect: log.disconnect})
		connect(t, c)
		log.expect(t, StateConnecting.String(), StateConnected.String())

		d.last().drop()
		log.expect(t, StateDisconnected.String(), "lost")
	})

	t.Run("failed connect", func(t *testing.T) {
		log := newStateLog()
		c, d := newTestClient(t, Options{OnStateChange: log.state})
		d.setFailure(errors.New("connection refused"))

		require.Error(t, c.Connect(context.Background()))
		log.expect(t, StateConnecting.String(), StateDisconnected.String())
	})

	t.Run("panicking hook does not stop delivery", func(t *testing.T) {
		states := make(chan ConnectionState, 8)
		c, _ := newTestClient(t, Options{OnStateChange: func(s ConnectionState) {
			states <- s
			if s == StateConnecting {
				panic("boom")
			}
		}})
		connect(t, c)

		assert.Equal(t, StateConnecting, <-states)
		select {
		case s := <-states:
			assert.Equal(t, StateConnected, s)
		case <-time.After(waitTimeout):
			t.Fatal("state hook stopped after panic")
		}
	})
}

func fastReconnect(attempts int) ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestClient_Reconnect(t *testing.T) {
	t.Run("replays subscriptions on new connection", func(t *testing.T) {
		onDisconnect, lost := errorSink()
		c, d := newTestClient(t, Options{Reconnect: fastReconnect(3), OnDisconnect: onDisconnect})
		rec := newRecorder()
		c.AddHandler(rec)
		require.NoError(t, c.Subscribe("a", "b"))
		connect(t, c)

		d.last().drop()
		assert.ErrorIs(t, nextError(t, lost), ErrConnectionLost)

		require.Eventually(t, func() bool {
			return d.dials() == 2 && c.State() == StateConnected
		}, waitTimeout, 5*time.Millisecond)

		second := d.transport(1)
		assert.Equal(t, []string{`{"type":"subscribe","application_ids":["a","b"]}`}, second.frames())
		second.push(`{"type":"event","application_id":"b","payload":null}`)
		assert.Equal(t, "b", rec.next(t).(*Event).ApplicationID)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		onDisconnect, lost := errorSink()
		c, d := newTestClient(t, Options{Reconnect: fastReconnect(2), OnDisconnect: onDisconnect})
		connect(t, c)

		d.setFailure(&ConnectError{Kind: ErrUnreachable, Err: errors.New("connection refused")})
		d.last().drop()

		assert.ErrorIs(t, nextError(t, lost), ErrConnectionLost)
		err := nextError(t, lost)
		assert.ErrorIs(t, err, ErrReconnectExhausted)
		assert.ErrorIs(t, err, ErrUnreachable)
		assert.Equal(t, StateDisconnected, c.State())
		assert.Equal(t, 3, d.dials())
		assert.ErrorIs(t, c.LastError(), ErrReconnectExhausted)
	})

	t.Run("disconnect stops pending reconnect", func(t *testing.T) {
		policy := ReconnectPolicy{MaxAttempts: 5, InitialInterval: time.Hour, MaxInterval: time.Hour}
		onDisconnect, lost := errorSink()
		c, d := newTestClient(t, Options{Reconnect: policy, OnDisconnect: onDisconnect})
		connect(t, c)

		d.last().drop()
		nextError(t, lost)
		assert.Equal(t, StateConnecting, c.State())

		require.NoError(t, c.Disconnect())
		assert.Equal(t, StateDisconnected, c.State())
		assert.Equal(t, 1, d.dials())
	})
}

func TestClient_ConcurrentUse(t *testing.T) {
	c, d := newTestClient(t, Options{})
	rec := newRecorder()
	c.AddHandler(rec)
	connect(t, c)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			assert.NoError(t, c.Subscribe(id))
			h := c.AddHandlerFunc(func(Message) error { return nil })
			c.RemoveHandler(h)
		}(i)
	}
	wg.Wait()

	assert.Len(t, c.Subscriptions(), 8)
	assert.Len(t, d.last().frames(), 8)
	assert.Equal(t, 1, c.HandlerCount())
}
