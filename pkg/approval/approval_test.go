package approval

import (
	"context"
	"testing"
	"time"

	"github.com/grovetools/bridge/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDeliversDecision(t *testing.T) {
	b := NewBroker(time.Minute)
	require.NoError(t, b.Register("sess-1"))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = b.Resolve("sess-1", true, "looks good")
	}()

	decision, err := b.Wait(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.Equal(t, "looks good", decision.Feedback)

	// Request is purged after resolution.
	_, pending := b.Pending("sess-1")
	assert.False(t, pending)
}

func TestWaitTimesOut(t *testing.T) {
	b := NewBroker(20 * time.Millisecond)
	require.NoError(t, b.Register("sess-1"))

	_, err := b.Wait(context.Background(), "sess-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeApprovalTimeout))
}

func TestExplicitRejectionBeatsTimeout(t *testing.T) {
	b := NewBroker(time.Minute)
	require.NoError(t, b.Register("sess-1"))

	reason := errors.New(errors.ErrCodeApprovalRejected, "changes requested")
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = b.Reject("sess-1", reason)
	}()

	_, err := b.Wait(context.Background(), "sess-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeApprovalRejected))
	assert.Contains(t, err.Error(), "changes requested")
}

func TestShutdownRejectsAllPending(t *testing.T) {
	b := NewBroker(time.Minute)
	require.NoError(t, b.Register("sess-1"))
	require.NoError(t, b.Register("sess-2"))

	results := make(chan error, 2)
	for _, id := range []string{"sess-1", "sess-2"} {
		go func(id string) {
			_, err := b.Wait(context.Background(), id)
			results <- err
		}(id)
	}

	time.Sleep(10 * time.Millisecond)
	b.Shutdown()

	for i := 0; i < 2; i++ {
		err := <-results
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCodeApprovalShutdown))
	}

	// New registrations are refused after shutdown.
	err := b.Register("sess-3")
	assert.True(t, errors.Is(err, errors.ErrCodeApprovalShutdown))
}

func TestResolveUnknownSession(t *testing.T) {
	b := NewBroker(time.Minute)
	err := b.Resolve("nope", true, "")
	assert.True(t, errors.Is(err, errors.ErrCodeSessionNotFound))
}

func TestResolveBeforeWaitStillDelivers(t *testing.T) {
	b := NewBroker(time.Minute)
	require.NoError(t, b.Register("sess-1"))

	// The HTTP resolution can land before the workflow starts waiting;
	// the decision is buffered until the wait drains it.
	require.NoError(t, b.Resolve("sess-1", true, "go ahead"))

	decision, err := b.Wait(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.Equal(t, "go ahead", decision.Feedback)
}

func TestDoubleResolveFails(t *testing.T) {
	b := NewBroker(time.Minute)
	require.NoError(t, b.Register("sess-1"))

	require.NoError(t, b.Resolve("sess-1", true, ""))
	err := b.Resolve("sess-1", false, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestShutdownAfterUnconsumedResolution(t *testing.T) {
	b := NewBroker(time.Minute)
	require.NoError(t, b.Register("sess-1"))
	require.NoError(t, b.Resolve("sess-1", true, ""))

	// A resolved request nobody drained must not wedge shutdown.
	done := make(chan struct{})
	go func() {
		b.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown blocked on a resolved but undrained request")
	}
}

func TestPurgeExpiredAfterResolution(t *testing.T) {
	b := NewBroker(10 * time.Millisecond)
	require.NoError(t, b.Register("sess-1"))
	require.NoError(t, b.Resolve("sess-1", true, ""))

	time.Sleep(20 * time.Millisecond)

	done := make(chan int, 1)
	go func() { done <- b.PurgeExpired() }()

	select {
	case purged := <-done:
		assert.Equal(t, 1, purged)
	case <-time.After(2 * time.Second):
		t.Fatal("PurgeExpired blocked on a resolved but undrained request")
	}
}

func TestPurgeExpired(t *testing.T) {
	b := NewBroker(10 * time.Millisecond)
	require.NoError(t, b.Register("sess-1"))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, b.PurgeExpired())
	_, pending := b.Pending("sess-1")
	assert.False(t, pending)
}
