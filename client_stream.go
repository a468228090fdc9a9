package libsse

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// StreamClientConfig configures a stream client. The zero value of every knob
// falls back to a sane default; Endpoint is the only mandatory field when no
// custom ConnFactory is provided. Fields tagged hash:"ignore" do not take part
// in the registry fingerprint.
type StreamClientConfig struct {
	Endpoint       string
	APIKey         string
	WithThumbnails bool

	MaxListeners         int
	MaxReconnectAttempts int
	MaxBackoff           time.Duration
	RateMinGap           time.Duration
	RateBurstLimit       int
	MaxFrameBuffer       int
	MaxFrameData         int

	HTTPClient  *http.Client      `hash:"ignore"`
	Logger      logger            `hash:"ignore"`
	ConnFactory ConnectionFactory `hash:"ignore"`
	Backoff     backoffCalculator `hash:"ignore"`
}

// streamClient owns the single outbound stream: it opens connections through
// the factory, feeds raw chunks to the frame parser, pushes surviving frames
// through the rate limiter into the dispatcher, and lets the reconnect policy
// schedule retries when the stream fails or ends.
type streamClient struct {
	logger      logger
	connFactory ConnectionFactory
	emitter     *EventEmitterCallback[EventKind, Event]
	parser      *FrameParser
	limiter     *RateLimiter
	policy      *ReconnectPolicy

	mu     sync.Mutex
	state  ConnState
	conn   Connection
	cancel context.CancelFunc

	closeOnce   sync.Once
	lastEventAt atomic.Int64
}

// NewStreamClient builds a stream client from the given config. The returned
// client is Idle until Connect is called.
func NewStreamClient(cfg StreamClientConfig) (Client, error) {
	log := cfg.Logger
	if log == nil {
		log = newWriterLogger(io.Discard)
	}
	log = log.WithField("type", "stream_client")

	connFactory := cfg.ConnFactory
	if connFactory == nil {
		endpoint, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return nil, errors.Wrap(err, "invalid stream endpoint")
		}
		paramsRepo := NewStreamParamsRepo(
			log,
			NewAPIKeyStreamParams(*endpoint, cfg.APIKey, cfg.WithThumbnails),
		)
		connFactory = NewSSEConnectionFactory(log, cfg.HTTPClient, paramsRepo)
	}

	return &streamClient{
		logger:      log,
		connFactory: connFactory,
		emitter:     NewEventEmitter[EventKind, Event](log, cfg.MaxListeners),
		parser:      NewFrameParser(log, cfg.MaxFrameBuffer, cfg.MaxFrameData),
		limiter:     NewRateLimiter(cfg.RateMinGap, cfg.RateBurstLimit),
		policy:      NewReconnectPolicy(log, cfg.Backoff, cfg.MaxReconnectAttempts, cfg.MaxBackoff),
		state:       StateIdle,
	}, nil
}

// Connect opens the stream and resolves once the connection is confirmed
// open. A second call while connecting or connected is a no-op; a call after
// Disconnect returns ErrTerminated. When the first attempt fails, the error
// is returned and the reconnect policy keeps retrying in the background.
func (c *streamClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected:
		c.mu.Unlock()
		return nil
	case StateClosed:
		c.mu.Unlock()
		return ErrTerminated
	}
	c.state = StateConnecting
	if c.cancel != nil {
		c.cancel()
	}
	cctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.policy.Cancel()
	c.policy.Reset()

	return c.open(cctx)
}

// Disconnect cancels any in-flight request and pending retry, clears the
// listener registry and transitions to Closed. A single disconnected event is
// emitted when a stream was actually live. Idempotent and synchronous.
func (c *streamClient) Disconnect() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		prev := c.state
		c.state = StateClosed
		cancel := c.cancel
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		c.policy.Cancel()
		if cancel != nil {
			cancel()
		}
		if conn != nil {
			conn.Close()
		}

		// Only a live stream has anything to report going down.
		if prev == StateConnected {
			c.emitter.Emit(EventDisconnected, Event{Kind: EventDisconnected})
		}
		c.emitter.Close()

		c.logger.Infoln("client closed")
	})
}

func (c *streamClient) On(kind EventKind, cb EventCallback) (Subscription, bool) {
	return c.emitter.On(kind, callback[Event](cb))
}

func (c *streamClient) Off(sub Subscription) bool {
	return c.emitter.Off(sub)
}

func (c *streamClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == StateConnected
}

// LastEventAt returns when the most recent frame passed the rate limiter.
func (c *streamClient) LastEventAt() time.Time {
	return time.Unix(0, c.lastEventAt.Load())
}

// open performs one connection attempt. On success it transitions to
// Connected and spawns the read loop; on failure it surfaces the error and
// hands the decision to the reconnect policy.
func (c *streamClient) open(ctx context.Context) error {
	// Each connection gets its own chunk channel so nothing buffered by a
	// dying connection can replay into the next one's parser.
	recv := make(chan []byte, 32)
	conn := c.connFactory(recv)

	if err := conn.Open(ctx); err != nil {
		conn.Close()
		c.setState(StateDisconnected)
		c.emitter.Emit(EventError, Event{Kind: EventError, Err: err})

		var unrecoverable *ErrUnrecoverableConnection
		if errors.As(err, &unrecoverable) {
			c.logger.Errorf("not retrying: %s", err)
			return err
		}

		c.scheduleReconnect(ctx)
		return err
	}

	c.mu.Lock()
	if c.state == StateClosed {
		// Disconnected while the dial was in flight.
		c.mu.Unlock()
		conn.Close()
		return ErrTerminated
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.policy.Reset()
	c.parser.Reset()
	c.emitter.Emit(EventConnected, Event{Kind: EventConnected})
	c.logger.Infoln("stream connected")

	go c.run(ctx, conn, recv)

	return nil
}

// run is the single read loop per live connection. It exits when the client
// context is cancelled or the connection closes, for whatever reason.
func (c *streamClient) run(ctx context.Context, conn Connection, recv chan []byte) {
	connClose := conn.CloseChan()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-recv:
			c.handleChunk(chunk)
		case <-connClose:
			c.handleStreamEnd(ctx, conn, recv)
			return
		}
	}
}

func (c *streamClient) handleStreamEnd(ctx context.Context, conn Connection, recv chan []byte) {
	conn.Close()
	reason := conn.CloseErr()

	if reason == nil || errors.Is(reason, ErrTerminated) {
		// Deliberate cancellation resolves quietly.
		return
	}

	// The transport delivers every chunk before it closes; flush whatever is
	// still buffered so frames preceding the close are not lost.
	c.drain(recv)

	c.setState(StateDisconnected)

	if errors.Is(reason, ErrStreamEnded) {
		// Clean server-initiated end: graceful closure, not a fault.
		c.logger.Infoln("stream ended by server")
	} else {
		c.logger.Errorf("stream closed: %s", reason)
		c.emitter.Emit(EventError, Event{Kind: EventError, Err: reason})
	}
	c.emitter.Emit(EventDisconnected, Event{Kind: EventDisconnected})

	c.scheduleReconnect(ctx)
}

// scheduleReconnect arms the policy's single pending retry. When attempts are
// exhausted the terminal error is emitted exactly once and the client stays
// Disconnected until the caller connects explicitly again.
func (c *streamClient) scheduleReconnect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	scheduled := c.policy.Schedule(func() {
		if err := c.open(ctx); err != nil {
			c.logger.Errorf("reconnect attempt failed: %s", err)
		}
	})

	if !scheduled {
		c.emitter.Emit(EventError, Event{Kind: EventError, Err: ErrRetriesExhausted})
		return
	}

	c.setState(StateConnecting)
}

// drain processes chunks already buffered by a closed connection.
func (c *streamClient) drain(recv chan []byte) {
	for {
		select {
		case chunk := <-recv:
			c.handleChunk(chunk)
		default:
			return
		}
	}
}

func (c *streamClient) handleChunk(chunk []byte) {
	for _, frame := range c.parser.Feed(chunk) {
		if !c.limiter.Admit(time.Now()) {
			c.logger.Debugf("frame dropped by rate limiter: %s", frame.Event)
			continue
		}

		c.lastEventAt.Store(time.Now().UnixNano())
		c.handleFrame(frame)
	}
}

// handleFrame classifies a frame and dispatches it. A payload typed
// "connection" short-circuits and is never a business event; a "heartbeat" is
// informative, not exclusive, so it is forwarded onward as well; everything
// else falls back to the frame's event name.
func (c *streamClient) handleFrame(frame Frame) {
	payload, err := decodePayload(frame.Data)
	if err != nil {
		// Malformed frames cannot be recovered. Dropped, never surfaced.
		c.logger.Debugf("dropping frame with malformed payload: %s", err)
		return
	}

	switch payloadType(payload) {
	case "connection":
		c.emitter.Emit(EventConnectionConfirmed, Event{
			Kind:    EventConnectionConfirmed,
			Frame:   frame,
			Payload: payload,
		})
		return
	case "heartbeat":
		c.emitter.Emit(EventHeartbeat, Event{
			Kind:    EventHeartbeat,
			Frame:   frame,
			Payload: payload,
		})
	}

	kind := classifyName(frame.Event)
	c.emitter.Emit(kind, Event{Kind: kind, Frame: frame, Payload: payload})
}

func (c *streamClient) setState(s ConnState) {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = s
	}
	c.mu.Unlock()
}
