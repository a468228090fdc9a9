package libsse

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type mockClient struct {
	mock.Mock

	tapConnect func()
}

func (m *mockClient) Connect(ctx context.Context) error {
	if m.tapConnect != nil {
		m.tapConnect()
	}
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockClient) Disconnect() {
	m.Called()
}

func (m *mockClient) On(kind EventKind, cb EventCallback) (Subscription, bool) {
	args := m.Called(kind, cb)
	return args.Get(0).(Subscription), args.Bool(1)
}

func (m *mockClient) Off(sub Subscription) bool {
	args := m.Called(sub)
	return args.Bool(0)
}

func (m *mockClient) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *mockClient) LastEventAt() time.Time {
	args := m.Called()
	return args.Get(0).(time.Time)
}
