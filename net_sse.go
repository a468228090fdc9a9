package libsse

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const readChunkSize = 4 << 10

// SSEConnection is one long-lived streaming GET against an event-stream
// endpoint. It implements the Connection interface: Open validates the
// response and spawns a single read loop that delivers raw chunks to recv
// until the stream ends, fails or is cancelled.
type SSEConnection struct {
	httpClient *http.Client
	paramsRepo StreamParamsRepo
	logger     logger
	recv       chan<- []byte
	closeChan  CloseChan
	closeOnce  sync.Once

	reasonMu    sync.Mutex
	closeReason error

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

func NewSSEConnection(
	httpClient *http.Client,
	paramsRepo StreamParamsRepo,
	logger logger,
	recvChan chan<- []byte,
) *SSEConnection {
	if httpClient == nil {
		// No global timeout: the stream is expected to stay open for hours.
		httpClient = &http.Client{}
	}
	return &SSEConnection{
		httpClient: httpClient,
		paramsRepo: paramsRepo,
		recv:       recvChan,
		closeChan:  make(CloseChan),
		logger:     logger.WithField("net", "sse_connection"),
	}
}

func NewSSEConnectionFactory(
	logger logger,
	httpClient *http.Client,
	paramsRepo StreamParamsRepo,
) ConnectionFactory {
	return func(recv chan<- []byte) Connection {
		return NewSSEConnection(httpClient, paramsRepo, logger, recv)
	}
}

// Open issues the streaming GET and validates status and content type. It
// returns once the stream is confirmed open, never once it ends.
func (c *SSEConnection) Open(ctx context.Context) error {
	p, err := c.paramsRepo.Get(ctx)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithCancel(ctx)
	c.cancelMu.Lock()
	c.cancel = cancel
	c.cancelMu.Unlock()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, p.URL.String(), nil)
	if err != nil {
		cancel()
		return errors.Wrap(ErrCannotConnect, err.Error())
	}

	for h, vs := range p.Header {
		for _, v := range vs {
			req.Header.Add(h, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		c.logger.Errorf("connection err to %s: %s", p.URL.String(), err)
		return errors.Wrap(ErrCannotConnect, err.Error())
	}

	if err := validateStreamResponse(resp); err != nil {
		_ = resp.Body.Close()
		cancel()
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			// Retrying with the same rejected key cannot succeed.
			err = WrapErrorUnrecoverableConnection(err, p.URL)
		}
		c.logger.Errorf("connection rejected by %s: %s", p.URL.String(), err)
		return err
	}

	c.logger.Debugf("success opening stream to %s", p.URL.String())

	go c.read(rctx, resp.Body)

	return nil
}

// Close terminates the connection. It ensures that all resources related to
// the connection are cleaned up.
func (c *SSEConnection) Close() {
	c.safeClose()
}

// CloseChan returns a channel that will be closed when the connection is closed.
func (c *SSEConnection) CloseChan() CloseChan {
	return c.closeChan
}

// CloseErr explains why the connection closed: ErrStreamEnded on clean server
// EOF, ErrTerminated on deliberate cancellation, a wrapped ErrConnectionClosed
// on transport faults.
func (c *SSEConnection) CloseErr() error {
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	return c.closeReason
}

func (c *SSEConnection) read(ctx context.Context, body io.ReadCloser) {
	defer c.safeClose()
	defer body.Close()

	buf := make([]byte, readChunkSize)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			select {
			case c.recv <- chunk:
			case <-ctx.Done():
				c.setCloseReason(ErrTerminated)
				return
			case <-c.closeChan:
				c.setCloseReason(ErrTerminated)
				return
			}
		}

		if err != nil {
			switch {
			case ctx.Err() != nil:
				c.setCloseReason(ErrTerminated)
			case errors.Is(err, io.EOF):
				// The server completed the stream without a fault.
				c.setCloseReason(ErrStreamEnded)
			default:
				c.logger.Errorf("error occurred on stream read: %s", err)
				c.setCloseReason(errors.Wrap(ErrConnectionClosed, err.Error()))
			}
			return
		}
	}
}

func (c *SSEConnection) safeClose() {
	c.closeOnce.Do(c.close)
}

func (c *SSEConnection) close() {
	c.cancelMu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancelMu.Unlock()

	close(c.closeChan)
}

func (c *SSEConnection) setCloseReason(err error) {
	c.reasonMu.Lock()
	if c.closeReason == nil {
		c.closeReason = err
	}
	c.reasonMu.Unlock()
}

func validateStreamResponse(resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		var msg string
		if resp.Body != nil {
			bts, err := io.ReadAll(io.LimitReader(resp.Body, 512))
			if err == nil {
				msg = string(bts)
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return errors.Wrap(ErrRateLimit, msg)
		}
		return errors.Wrapf(ErrBadStatus, "%d: %s", resp.StatusCode, msg)
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		return errors.Wrap(ErrNotEventStream, ct)
	}

	return nil
}
