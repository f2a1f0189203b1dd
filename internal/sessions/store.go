package sessions

import (
	"sort"
	"sync"
	"time"

	"github.com/wagate/gateway/internal/client"
	"github.com/wagate/gateway/internal/models"
)

// Session is the resident record of one tenant. Only the Store hands out
// pointers to it, and only inside an Upsert mutator.
type Session struct {
	ID               string
	State            models.SessionState
	CreatedAt        time.Time
	LastTransitionAt time.Time
	LastError        string

	attempt *attempt
	client  client.Client
}

func (s *Session) snapshot() models.SessionInfo {
	info := models.SessionInfo{
		ID:               s.ID,
		State:            s.State,
		CreatedAt:        s.CreatedAt,
		LastTransitionAt: s.LastTransitionAt,
		LastError:        s.LastError,
	}
	if s.attempt != nil {
		info.Attempt = s.attempt.number
	}
	return info
}

// Store is the registry of resident sessions keyed by session id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a snapshot of the session, if resident.
func (s *Store) Get(id string) (models.SessionInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return models.SessionInfo{ID: id, State: models.SessionStateAbsent}, false
	}
	return sess.snapshot(), true
}

// Upsert applies mutate to the session with the given id, creating an Absent
// entry when none is resident. The mutation runs on a copy and is committed
// only if mutate returns nil; a failed mutation of a new entry leaves nothing
// behind.
func (s *Store) Upsert(id string, mutate func(sess *Session, created bool) error) (models.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, ok := s.sessions[id]

	var candidate Session
	if ok {
		candidate = *existing
	} else {
		candidate = Session{
			ID:               id,
			State:            models.SessionStateAbsent,
			CreatedAt:        now,
			LastTransitionAt: now,
		}
	}

	if err := mutate(&candidate, !ok); err != nil {
		if ok {
			return existing.snapshot(), err
		}
		return candidate.snapshot(), err
	}

	if ok && candidate.State != existing.State {
		candidate.LastTransitionAt = now
	}

	if ok {
		*existing = candidate
	} else {
		s.sessions[id] = &candidate
	}

	return candidate.snapshot(), nil
}

// Remove drops the session unconditionally.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// List returns snapshots of every resident session ordered by id.
func (s *Store) List() []models.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, sess.snapshot())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result
}

// Count returns the number of resident sessions per state.
func (s *Store) Count() map[models.SessionState]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.SessionState]int)
	for _, sess := range s.sessions {
		counts[sess.State]++
	}
	return counts
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// lookup returns the live handle and attempt together with the snapshot.
func (s *Store) lookup(id string) (client.Client, *attempt, models.SessionInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil, models.SessionInfo{ID: id, State: models.SessionStateAbsent}, false
	}
	return sess.client, sess.attempt, sess.snapshot(), true
}

// removeIf evicts the session when match holds and hands the removed record,
// handle included, to the caller.
func (s *Store) removeIf(id string, match func(sess *Session) bool) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || !match(sess) {
		return nil, false
	}
	delete(s.sessions, id)
	return sess, true
}
