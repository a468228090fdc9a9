package libsse

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func zeroBackoff(int) time.Duration { return 0 }

func TestExponentialBackoffGrowsAndOnlyGrows(t *testing.T) {
	prev := time.Duration(-1)
	for attempts := 1; attempts <= 8; attempts++ {
		ttw := ExponentialBackoffSeconds(attempts)
		require.GreaterOrEqual(t, ttw, prev)
		prev = ttw
	}
	require.Equal(t, 3*time.Second, ExponentialBackoffSeconds(3))
}

func TestReconnectPolicyExhaustsAfterMaxAttempts(t *testing.T) {
	policy := NewReconnectPolicy(newWriterLogger(io.Discard), zeroBackoff, 3, time.Second)

	fired := make(chan struct{}, 8)
	fn := func() { fired <- struct{}{} }

	for i := 1; i <= 3; i++ {
		require.Truef(t, policy.Schedule(fn), "attempt %d should be scheduled", i)
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("scheduled retry never fired")
		}
	}

	require.False(t, policy.Schedule(fn), "attempts beyond the maximum must be refused")
	require.Equal(t, 4, policy.Attempts())
}

func TestReconnectPolicyResetRestoresBudget(t *testing.T) {
	policy := NewReconnectPolicy(newWriterLogger(io.Discard), zeroBackoff, 1, time.Second)

	require.True(t, policy.Schedule(func() {}))
	require.False(t, policy.Schedule(func() {}))

	policy.Reset()
	require.Equal(t, 0, policy.Attempts())
	require.True(t, policy.Schedule(func() {}))

	policy.Cancel()
}

func TestReconnectPolicyCancelStopsPendingRetry(t *testing.T) {
	policy := NewReconnectPolicy(
		newWriterLogger(io.Discard),
		func(int) time.Duration { return 20 * time.Millisecond },
		5,
		time.Second,
	)

	fired := make(chan struct{}, 1)
	require.True(t, policy.Schedule(func() { fired <- struct{}{} }))
	policy.Cancel()

	select {
	case <-fired:
		t.Fatal("cancelled retry must not fire")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestReconnectPolicyClampsDelay(t *testing.T) {
	var got time.Duration
	policy := NewReconnectPolicy(
		newWriterLogger(io.Discard),
		func(attempts int) time.Duration {
			d := time.Duration(attempts) * time.Hour
			got = d
			return d
		},
		5,
		time.Millisecond,
	)

	fired := make(chan struct{}, 1)
	require.True(t, policy.Schedule(func() { fired <- struct{}{} }))
	require.Equal(t, time.Hour, got)

	// The calculator asked for an hour; the ceiling brings it down to 1ms.
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("clamped retry never fired")
	}
}
