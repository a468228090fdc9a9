package libsse

import (
	"context"
	"time"
)

type (
	// Client is the caller-facing surface of the stream client. A client owns
	// at most one live stream; Connect resolves once the connection is
	// confirmed open, Disconnect is terminal until a new client is built.
	Client interface {
		// Connect opens the stream. Calling it while connecting or connected
		// is a no-op that resolves immediately.
		Connect(ctx context.Context) error
		// Disconnect cancels any in-flight request and pending retry, clears
		// the listener registry and transitions to Closed. Idempotent.
		Disconnect()
		// On registers a listener for an event kind. The boolean is false
		// when the per-kind listener bound was reached.
		On(kind EventKind, cb EventCallback) (Subscription, bool)
		// Off unsubscribes a listener by its handle.
		Off(sub Subscription) bool
		// IsConnected reports whether the stream is currently open.
		IsConnected() bool
		// LastEventAt returns when the most recent frame was admitted, for
		// caller-side liveness checks.
		LastEventAt() time.Time
	}
)

// EnsureConnected connects the client unless it already is. Convenient for
// UI code reacting to visibility or settings changes.
func EnsureConnected(ctx context.Context, c Client) error {
	if c.IsConnected() {
		return nil
	}
	return c.Connect(ctx)
}

// ConnState is the lifecycle state of a stream client.
type ConnState int32

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
