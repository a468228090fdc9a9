package libsse

import (
	"context"
	"sync"
)

// mockConnection is a scriptable Connection for exercising the stream client
// without a live server. OpenFunc decides the dial outcome; Push delivers
// chunks as if read from the wire; Fail and End close the connection with a
// transport fault or a clean stream end.
type mockConnection struct {
	OpenFunc func(ctx context.Context) error

	recv chan<- []byte

	closeC    CloseChan
	closeOnce sync.Once

	mu     sync.Mutex
	reason error
}

func newMockConnection(recv chan<- []byte, openFunc func(ctx context.Context) error) *mockConnection {
	return &mockConnection{
		OpenFunc: openFunc,
		recv:     recv,
		closeC:   make(CloseChan),
	}
}

func (m *mockConnection) Open(ctx context.Context) error {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx)
	}
	return nil
}

func (m *mockConnection) Close() {
	m.closeOnce.Do(func() {
		m.setReason(ErrTerminated)
		close(m.closeC)
	})
}

func (m *mockConnection) CloseChan() CloseChan {
	return m.closeC
}

func (m *mockConnection) CloseErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// Push delivers a raw chunk to the client's read loop.
func (m *mockConnection) Push(chunk []byte) {
	select {
	case m.recv <- chunk:
	case <-m.closeC:
	}
}

// Fail closes the connection with a transport fault.
func (m *mockConnection) Fail(err error) {
	m.closeOnce.Do(func() {
		m.setReason(err)
		close(m.closeC)
	})
}

// End closes the connection as a clean server-initiated stream end.
func (m *mockConnection) End() {
	m.Fail(ErrStreamEnded)
}

func (m *mockConnection) setReason(err error) {
	m.mu.Lock()
	if m.reason == nil {
		m.reason = err
	}
	m.mu.Unlock()
}
