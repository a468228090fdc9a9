package libsse

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// newTestStreamClient builds a client over the given scripted connection
// factory with instant reconnects.
func newTestStreamClient(t *testing.T, factory ConnectionFactory, maxAttempts int) *streamClient {
	t.Helper()

	cli, err := NewStreamClient(StreamClientConfig{
		Logger:               newWriterLogger(io.Discard),
		ConnFactory:          factory,
		MaxReconnectAttempts: maxAttempts,
		Backoff:              zeroBackoff,
	})
	require.NoError(t, err)

	return cli.(*streamClient)
}

func collectKind(t *testing.T, cli *streamClient, kind EventKind) <-chan Event {
	t.Helper()

	events := make(chan Event, 32)
	_, ok := cli.On(kind, func(ev Event) { events <- ev })
	require.True(t, ok)
	return events
}

func waitEvent(t *testing.T, events <-chan Event, what string) Event {
	t.Helper()

	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return Event{}
	}
}

func TestStreamClientConnectEmitsConnected(t *testing.T) {
	var opens atomic.Int32
	var conn *mockConnection
	factory := func(recv chan<- []byte) Connection {
		conn = newMockConnection(recv, func(context.Context) error {
			opens.Add(1)
			return nil
		})
		return conn
	}

	cli := newTestStreamClient(t, factory, 3)
	defer cli.Disconnect()

	connected := collectKind(t, cli, EventConnected)

	require.False(t, cli.IsConnected())
	require.NoError(t, cli.Connect(context.Background()))
	require.True(t, cli.IsConnected())

	waitEvent(t, connected, "connected event")
	require.EqualValues(t, 1, opens.Load())
}

func TestStreamClientDuplicateConnectIsNoop(t *testing.T) {
	var opens atomic.Int32
	factory := func(recv chan<- []byte) Connection {
		return newMockConnection(recv, func(context.Context) error {
			opens.Add(1)
			return nil
		})
	}

	cli := newTestStreamClient(t, factory, 3)
	defer cli.Disconnect()

	require.NoError(t, cli.Connect(context.Background()))
	require.NoError(t, cli.Connect(context.Background()))

	require.EqualValues(t, 1, opens.Load(), "a second connect must not open a duplicate stream")
}

func TestStreamClientDisconnectIsIdempotent(t *testing.T) {
	factory := func(recv chan<- []byte) Connection {
		return newMockConnection(recv, nil)
	}

	cli := newTestStreamClient(t, factory, 3)

	var disconnects atomic.Int32
	_, ok := cli.On(EventDisconnected, func(Event) { disconnects.Add(1) })
	require.True(t, ok)

	require.NoError(t, cli.Connect(context.Background()))

	cli.Disconnect()
	cli.Disconnect()

	require.EqualValues(t, 1, disconnects.Load(), "exactly one disconnected emission")
	require.False(t, cli.IsConnected())
	require.Zero(t, cli.emitter.Len(EventDisconnected), "disconnect clears the listener registry")

	// The client is terminal; a new one must be constructed to resume.
	require.ErrorIs(t, cli.Connect(context.Background()), ErrTerminated)
}

func TestStreamClientDisconnectBeforeConnectIsSilent(t *testing.T) {
	factory := func(recv chan<- []byte) Connection {
		return newMockConnection(recv, nil)
	}

	cli := newTestStreamClient(t, factory, 3)

	var disconnects atomic.Int32
	_, ok := cli.On(EventDisconnected, func(Event) { disconnects.Add(1) })
	require.True(t, ok)

	cli.Disconnect()

	require.Zero(t, disconnects.Load(), "a client that never connected has no stream to report down")
}

func TestStreamClientDeliversFramesReceivedBeforeCleanEnd(t *testing.T) {
	conns := make(chan *mockConnection, 4)
	factory := func(recv chan<- []byte) Connection {
		conn := newMockConnection(recv, nil)
		conns <- conn
		return conn
	}

	// A wide-open rate limiter: this test is about delivery, not pacing.
	c, err := NewStreamClient(StreamClientConfig{
		Logger:               newWriterLogger(io.Discard),
		ConnFactory:          factory,
		MaxReconnectAttempts: 3,
		RateMinGap:           time.Nanosecond,
		Backoff:              zeroBackoff,
	})
	require.NoError(t, err)
	cli := c.(*streamClient)
	defer cli.Disconnect()

	connected := collectKind(t, cli, EventConnected)
	stateChanges := collectKind(t, cli, EventStateChange)

	require.NoError(t, cli.Connect(context.Background()))

	// A frame fully received right before the server ends the stream must be
	// dispatched, on every reconnect cycle, no matter how the read loop's
	// select interleaves chunk delivery with the close notification.
	const rounds = 25
	for i := 0; i < rounds; i++ {
		waitEvent(t, connected, "connected")
		conn := <-conns
		conn.Push([]byte("event: arming\ndata: {\"armed\":true}\n\n"))
		conn.End()
	}

	for i := 0; i < rounds; i++ {
		waitEvent(t, stateChanges, "frame received before the stream ended")
	}

	// And no stale chunk of a dead connection replays into a later one.
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, stateChanges, "every frame was delivered exactly once")
}

func TestStreamClientReconnectsOnCleanStreamEnd(t *testing.T) {
	conns := make(chan *mockConnection, 4)
	factory := func(recv chan<- []byte) Connection {
		conn := newMockConnection(recv, nil)
		conns <- conn
		return conn
	}

	cli := newTestStreamClient(t, factory, 3)
	defer cli.Disconnect()

	connected := collectKind(t, cli, EventConnected)
	disconnected := collectKind(t, cli, EventDisconnected)
	errs := collectKind(t, cli, EventError)

	require.NoError(t, cli.Connect(context.Background()))
	waitEvent(t, connected, "initial connected")

	first := <-conns
	first.End()

	// Clean closure reports disconnected, never error.
	waitEvent(t, disconnected, "disconnected after clean end")
	waitEvent(t, connected, "reconnect after clean end")
	require.Empty(t, errs, "a clean stream end is not a fault")
	require.True(t, cli.IsConnected())
}

func TestStreamClientEmitsErrorOnTransportFault(t *testing.T) {
	conns := make(chan *mockConnection, 4)
	factory := func(recv chan<- []byte) Connection {
		conn := newMockConnection(recv, nil)
		conns <- conn
		return conn
	}

	cli := newTestStreamClient(t, factory, 3)
	defer cli.Disconnect()

	connected := collectKind(t, cli, EventConnected)
	errs := collectKind(t, cli, EventError)

	require.NoError(t, cli.Connect(context.Background()))
	waitEvent(t, connected, "initial connected")

	first := <-conns
	first.Fail(errors.Wrap(ErrConnectionClosed, "connection reset by peer"))

	ev := waitEvent(t, errs, "transport error")
	require.ErrorIs(t, ev.Err, ErrConnectionClosed)

	waitEvent(t, connected, "reconnect after fault")
}

func TestStreamClientStopsAfterExhaustedRetries(t *testing.T) {
	var opens atomic.Int32
	factory := func(recv chan<- []byte) Connection {
		return newMockConnection(recv, func(context.Context) error {
			opens.Add(1)
			return errors.Wrap(ErrCannotConnect, "dial refused")
		})
	}

	maxAttempts := 3
	cli := newTestStreamClient(t, factory, maxAttempts)
	defer cli.Disconnect()

	errs := collectKind(t, cli, EventError)

	require.Error(t, cli.Connect(context.Background()))

	var terminal int
	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-errs:
				if errors.Is(ev.Err, ErrRetriesExhausted) {
					terminal++
				}
			default:
				return terminal > 0
			}
		}
	}, 2*time.Second, 10*time.Millisecond, "terminal error never emitted")

	require.Equal(t, 1, terminal, "exactly one terminal error")

	// The initial attempt plus one per allowed retry, then nothing more.
	attempts := opens.Load()
	require.EqualValues(t, maxAttempts+1, attempts)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, attempts, opens.Load(), "no further connection attempts after exhaustion")
	require.False(t, cli.IsConnected())
}

func TestStreamClientDoesNotRetryUnrecoverableErrors(t *testing.T) {
	endpoint, err := url.Parse("http://alarm.local/events")
	require.NoError(t, err)

	var opens atomic.Int32
	factory := func(recv chan<- []byte) Connection {
		return newMockConnection(recv, func(context.Context) error {
			opens.Add(1)
			return WrapErrorUnrecoverableConnection(errors.Wrap(ErrBadStatus, "401: bad key"), *endpoint)
		})
	}

	cli := newTestStreamClient(t, factory, 3)
	defer cli.Disconnect()

	errs := collectKind(t, cli, EventError)

	require.Error(t, cli.Connect(context.Background()))

	ev := waitEvent(t, errs, "unrecoverable error")
	var unrecoverable *ErrUnrecoverableConnection
	require.ErrorAs(t, ev.Err, &unrecoverable)

	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, opens.Load(), "a rejected credential must not be retried")
	require.False(t, cli.IsConnected())
}

func TestStreamClientDispatchesClassifiedFrames(t *testing.T) {
	conns := make(chan *mockConnection, 1)
	factory := func(recv chan<- []byte) Connection {
		conn := newMockConnection(recv, nil)
		conns <- conn
		return conn
	}

	cli := newTestStreamClient(t, factory, 3)
	defer cli.Disconnect()

	confirmed := collectKind(t, cli, EventConnectionConfirmed)
	heartbeats := collectKind(t, cli, EventHeartbeat)
	stateChanges := collectKind(t, cli, EventStateChange)
	security := collectKind(t, cli, EventSecurity)
	unknown := collectKind(t, cli, EventUnknown)

	require.NoError(t, cli.Connect(context.Background()))
	conn := <-conns

	conn.Push([]byte("data: {\"type\":\"connection\",\"status\":\"ok\"}\n\n"))
	ev := waitEvent(t, confirmed, "connection confirmation")
	require.Equal(t, "ok", ev.Payload["status"])
	require.Empty(t, unknown, "a connection confirmation is never a business event")

	// Heartbeats are informative, not exclusive: forwarded onward too.
	conn.Push([]byte("data: {\"type\":\"heartbeat\"}\n\n"))
	waitEvent(t, heartbeats, "heartbeat")
	waitEvent(t, unknown, "forwarded heartbeat")

	conn.Push([]byte("event: arming\ndata: {\"armed\":true}\n\n"))
	ev = waitEvent(t, stateChanges, "state change")
	require.Equal(t, true, ev.Payload["armed"])
	require.Equal(t, "arming", ev.Frame.Event)

	// Malformed JSON drops the frame silently, the connection survives.
	conn.Push([]byte("event: event\ndata: {broken\n\n"))
	conn.Push([]byte("event: event\ndata: {\"zone\":4}\n\n"))
	ev = waitEvent(t, security, "security event")
	require.EqualValues(t, 4, ev.Payload["zone"])
	require.Len(t, security, 0, "the malformed frame must have been dropped")
	require.True(t, cli.IsConnected())
}

func TestStreamClientEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, "data: {\"type\":\"connection\",\"status\":\"ok\"}\n\n")
		flusher.Flush()
		_, _ = io.WriteString(w, "event: arming\ndata: {\"armed\":true}\n\n")
		flusher.Flush()

		<-r.Context().Done()
	}))
	defer srv.Close()

	cli, err := NewStreamClient(StreamClientConfig{
		Endpoint: srv.URL,
		APIKey:   "secret",
		Logger:   newWriterLogger(io.Discard),
	})
	require.NoError(t, err)
	defer cli.Disconnect()

	sc := cli.(*streamClient)
	confirmed := collectKind(t, sc, EventConnectionConfirmed)
	stateChanges := collectKind(t, sc, EventStateChange)

	require.NoError(t, cli.Connect(context.Background()))
	require.True(t, cli.IsConnected())

	waitEvent(t, confirmed, "connection confirmation")
	ev := waitEvent(t, stateChanges, "state change")
	require.Equal(t, true, ev.Payload["armed"])
}

func TestStreamClientTracksLastEventAt(t *testing.T) {
	conns := make(chan *mockConnection, 1)
	factory := func(recv chan<- []byte) Connection {
		conn := newMockConnection(recv, nil)
		conns <- conn
		return conn
	}

	cli := newTestStreamClient(t, factory, 3)
	defer cli.Disconnect()

	heartbeats := collectKind(t, cli, EventHeartbeat)

	require.NoError(t, cli.Connect(context.Background()))
	require.True(t, cli.LastEventAt().IsZero() || cli.LastEventAt().UnixNano() == 0)

	before := time.Now()
	conn := <-conns
	conn.Push([]byte("data: {\"type\":\"heartbeat\"}\n\n"))
	waitEvent(t, heartbeats, "heartbeat")

	require.False(t, cli.LastEventAt().Before(before))
}
