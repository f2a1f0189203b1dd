package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wagate/gateway/internal/models"
)

func waitCode(t *testing.T, hs *Handshake) (string, error) {
	t.Helper()

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		code, err := hs.Wait(context.Background())
		done <- result{code, err}
	}()

	select {
	case r := <-done:
		return r.code, r.err
	case <-time.After(2 * time.Second):
		t.Fatal("handshake did not resolve")
		return "", nil
	}
}

func TestHandshakes_Deliver(t *testing.T) {
	h := NewHandshakes(time.Second, time.Minute)

	hs := h.Register("t1")
	assert.True(t, h.Pending("t1"))

	assert.True(t, h.Deliver("t1", "XYZ"))
	assert.False(t, h.Pending("t1"))

	code, err := waitCode(t, hs)
	require.NoError(t, err)
	assert.Equal(t, "XYZ", code)
}

func TestHandshakes_DeliverWithoutWaiterIsCached(t *testing.T) {
	h := NewHandshakes(time.Second, time.Minute)

	assert.False(t, h.Deliver("t1", "first"))
	assert.False(t, h.Deliver("t1", "second"))

	code, err := waitCode(t, h.Register("t1"))
	require.NoError(t, err)
	assert.Equal(t, "second", code)
	assert.False(t, h.Pending("t1"))
}

func TestHandshakes_CachedCodeExpires(t *testing.T) {
	h := NewHandshakes(50*time.Millisecond, time.Minute)
	now := time.Now()
	h.now = func() time.Time { return now }

	h.Deliver("t1", "old")
	now = now.Add(2 * time.Minute)

	_, err := waitCode(t, h.Register("t1"))
	assert.ErrorIs(t, err, models.ErrHandshakeTimeout)
}

func TestHandshakes_Timeout(t *testing.T) {
	h := NewHandshakes(30*time.Millisecond, time.Minute)

	_, err := waitCode(t, h.Register("t1"))
	assert.ErrorIs(t, err, models.ErrHandshakeTimeout)
	assert.False(t, h.Pending("t1"))
}

func TestHandshakes_ReplacedWaiterTimesOutOnItsOwn(t *testing.T) {
	h := NewHandshakes(100*time.Millisecond, time.Minute)

	first := h.Register("t1")
	time.Sleep(50 * time.Millisecond)
	second := h.Register("t1")

	_, err := waitCode(t, first)
	assert.ErrorIs(t, err, models.ErrHandshakeTimeout)

	// The first waiter expiring must not clear the second.
	assert.True(t, h.Pending("t1"))
	assert.True(t, h.Deliver("t1", "XYZ"))

	code, err := waitCode(t, second)
	require.NoError(t, err)
	assert.Equal(t, "XYZ", code)
}

func TestHandshakes_Supersede(t *testing.T) {
	h := NewHandshakes(time.Second, time.Minute)

	h.Deliver("t1", "cached")
	hs := h.Register("t1")
	_, _ = waitCode(t, hs)

	hs = h.Register("t2")
	h.Supersede("t2", models.ErrAlreadyAuthenticated)
	_, err := waitCode(t, hs)
	assert.ErrorIs(t, err, models.ErrAlreadyAuthenticated)

	// Superseding also forgets the cached code.
	h.Supersede("t1", models.ErrSessionDisconnected)
	h.timeout = 20 * time.Millisecond
	_, err = waitCode(t, h.Register("t1"))
	assert.ErrorIs(t, err, models.ErrHandshakeTimeout)

	// Delivering after the waiter resolved is a no-op.
	assert.False(t, h.Deliver("t2", "late"))
}

func TestHandshakes_ContextCancel(t *testing.T) {
	h := NewHandshakes(time.Second, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	hs := h.Register("t1")
	cancel()

	_, err := hs.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, h.Pending("t1"))
}

func TestHandshakes_Cancel(t *testing.T) {
	h := NewHandshakes(time.Second, time.Minute)

	hs := h.Register("t1")
	hs.Cancel(models.ErrSessionDisconnected)

	_, err := waitCode(t, hs)
	assert.ErrorIs(t, err, models.ErrSessionDisconnected)
	assert.False(t, h.Pending("t1"))
}
