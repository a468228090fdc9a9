package libsse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureConnected(t *testing.T) {
	cli := &mockClient{}
	// The Client interface shadows mock.Mock's On; call it explicitly.
	cli.Mock.On("IsConnected").Return(false).Once()
	cli.Mock.On("Connect", context.Background()).Return(nil).Once()

	require.NoError(t, EnsureConnected(context.Background(), cli))
	cli.AssertExpectations(t)
}

func TestEnsureConnectedSkipsLiveClient(t *testing.T) {
	var connects int
	cli := &mockClient{tapConnect: func() { connects++ }}
	cli.Mock.On("IsConnected").Return(true).Once()

	require.NoError(t, EnsureConnected(context.Background(), cli))
	require.Zero(t, connects, "an already connected client must not reconnect")
	cli.AssertExpectations(t)
}

func TestConnStateString(t *testing.T) {
	cases := map[ConnState]string{
		StateIdle:         "idle",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateDisconnected: "disconnected",
		StateClosed:       "closed",
		ConnState(99):     "unknown",
	}

	for state, want := range cases {
		require.Equal(t, want, state.String())
	}
}
