package sessions

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wagate/gateway/internal/models"
)

func TestStore_UpsertCreatesAndCommits(t *testing.T) {
	s := NewStore()

	info, err := s.Upsert("t1", func(sess *Session, created bool) error {
		assert.True(t, created)
		assert.Equal(t, models.SessionStateAbsent, sess.State)
		sess.State = models.SessionStateInitializing
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateInitializing, info.State)
	assert.False(t, info.CreatedAt.IsZero())

	got, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, info, got)
}

func TestStore_FailedMutationCommitsNothing(t *testing.T) {
	s := NewStore()
	boom := errors.New("boom")

	_, err := s.Upsert("t1", func(sess *Session, created bool) error {
		sess.State = models.SessionStateReady
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := s.Get("t1")
	assert.False(t, ok)

	_, err = s.Upsert("t1", func(sess *Session, created bool) error {
		sess.State = models.SessionStateInitializing
		return nil
	})
	require.NoError(t, err)

	info, err := s.Upsert("t1", func(sess *Session, created bool) error {
		assert.False(t, created)
		sess.State = models.SessionStateReady
		sess.LastError = "partial"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, models.SessionStateInitializing, info.State)

	got, _ := s.Get("t1")
	assert.Equal(t, models.SessionStateInitializing, got.State)
	assert.Empty(t, got.LastError)
}

func TestStore_TransitionTimestamp(t *testing.T) {
	s := NewStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.Upsert("t1", func(sess *Session, created bool) error {
		sess.State = models.SessionStateInitializing
		return nil
	})
	require.NoError(t, err)

	now = now.Add(time.Minute)
	info, err := s.Upsert("t1", func(sess *Session, created bool) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, now.Add(-time.Minute), info.LastTransitionAt)

	info, err = s.Upsert("t1", func(sess *Session, created bool) error {
		sess.State = models.SessionStateAwaitingScan
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, now, info.LastTransitionAt)
	assert.Equal(t, now.Add(-time.Minute), info.CreatedAt)
}

func TestStore_ListAndCount(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"c", "a", "b"} {
		_, err := s.Upsert(id, func(sess *Session, created bool) error {
			sess.State = models.SessionStateInitializing
			return nil
		})
		require.NoError(t, err)
	}
	_, err := s.Upsert("b", func(sess *Session, created bool) error {
		sess.State = models.SessionStateReady
		return nil
	})
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, "c", list[2].ID)

	counts := s.Count()
	assert.Equal(t, 2, counts[models.SessionStateInitializing])
	assert.Equal(t, 1, counts[models.SessionStateReady])
	assert.Equal(t, 3, s.Len())
}

func TestStore_RemoveIf(t *testing.T) {
	s := NewStore()
	a := newAttempt(1, 1)

	_, err := s.Upsert("t1", func(sess *Session, created bool) error {
		sess.attempt = a
		sess.State = models.SessionStateInitializing
		return nil
	})
	require.NoError(t, err)

	_, ok := s.removeIf("t1", func(sess *Session) bool { return sess.attempt != a })
	assert.False(t, ok)

	removed, ok := s.removeIf("t1", func(sess *Session) bool { return sess.attempt == a })
	require.True(t, ok)
	assert.Equal(t, a, removed.attempt)

	_, ok = s.Get("t1")
	assert.False(t, ok)

	s.Remove("missing")
}
