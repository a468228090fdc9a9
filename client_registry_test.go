package libsse

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientRegistryCachesByConfigFingerprint(t *testing.T) {
	reg := NewClientRegistry(newWriterLogger(io.Discard))
	defer reg.CloseAll()

	cfg := StreamClientConfig{Endpoint: "http://alarm.local/events", APIKey: "k1"}

	first, err := reg.Acquire(cfg)
	require.NoError(t, err)

	second, err := reg.Acquire(cfg)
	require.NoError(t, err)
	require.Same(t, first, second, "same config must yield the same client")

	other, err := reg.Acquire(StreamClientConfig{Endpoint: "http://alarm.local/events", APIKey: "k2"})
	require.NoError(t, err)
	require.NotSame(t, first, other, "a different config is a different client")
}

func TestClientRegistryFingerprintIgnoresRuntimeFields(t *testing.T) {
	reg := NewClientRegistry(newWriterLogger(io.Discard))
	defer reg.CloseAll()

	cfg := StreamClientConfig{Endpoint: "http://alarm.local/events"}
	withRuntime := cfg
	withRuntime.Logger = newWriterLogger(io.Discard)
	withRuntime.HTTPClient = &http.Client{}

	first, err := reg.Acquire(cfg)
	require.NoError(t, err)

	second, err := reg.Acquire(withRuntime)
	require.NoError(t, err)
	require.Same(t, first, second, "logger and http client are not part of the identity")
}

func TestClientRegistryDropAllowsFreshAcquire(t *testing.T) {
	reg := NewClientRegistry(newWriterLogger(io.Discard))
	defer reg.CloseAll()

	cfg := StreamClientConfig{Endpoint: "http://alarm.local/events"}

	first, err := reg.Acquire(cfg)
	require.NoError(t, err)

	require.NoError(t, reg.Drop(cfg))

	// The dropped client is closed and terminal; Acquire builds a new one.
	second, err := reg.Acquire(cfg)
	require.NoError(t, err)
	require.NotSame(t, first, second)
}
