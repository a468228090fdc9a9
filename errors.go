package libsse

import (
	"fmt"
	"net/url"

	"github.com/pkg/errors"
)

var (
	ErrConnectionClosed = errors.New("connection has been closed")
	ErrStreamEnded      = errors.New("stream ended cleanly")
	ErrCannotConnect    = errors.New("connection cannot be established")
	ErrTerminated       = errors.New("client terminated")
	ErrRateLimit        = errors.New("rate limit exceeded")
	ErrBadStatus        = errors.New("unexpected response status")
	ErrNotEventStream   = errors.New("response is not an event stream")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// ErrUnrecoverableConnection marks a connection failure that no amount of
// retrying will fix, such as a rejected API key.
type ErrUnrecoverableConnection struct {
	err error
	url url.URL
}

func (e ErrUnrecoverableConnection) Error() string {
	return fmt.Sprintf("Unrecoverable connection error: %s to %s", e.err, e.url.String())
}

func (e ErrUnrecoverableConnection) Unwrap() error { return e.err }

func WrapErrorUnrecoverableConnection(err error, url url.URL) *ErrUnrecoverableConnection {
	if err == nil {
		return nil
	}
	return &ErrUnrecoverableConnection{
		err: err,
		url: url,
	}
}
