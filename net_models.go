package libsse

import (
	"context"
)

type (
	CloseChan chan struct{}

	// Connection is a single live stream to the server. Open blocks until the
	// stream is confirmed open (validated response), not until it ends; raw
	// chunks are then delivered on the channel the connection was built with.
	Connection interface {
		Open(ctx context.Context) error
		Close()
		CloseErr() error
		CloseChan() CloseChan
	}

	// ConnectionFactory builds a fresh Connection delivering chunks to recv.
	// The reconnect policy creates a new connection per attempt.
	ConnectionFactory func(recv chan<- []byte) Connection
)
