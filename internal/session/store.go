package session

import (
	"sync"
	"time"
)

type lockRef struct {
	mu   sync.Mutex
	refs int
}

// Store holds at most one session per participant. Callers serialize work
// on a participant with Lock; the store's own mutex only guards the maps.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	locks    map[int64]*lockRef
	ttl      time.Duration
	now      func() time.Time
}

// New returns a Store evicting sessions idle for longer than ttl on Sweep.
// A zero ttl disables eviction.
func New(ttl time.Duration) *Store {
	return &Store{
		sessions: map[int64]*Session{},
		locks:    map[int64]*lockRef{},
		ttl:      ttl,
		now:      time.Now,
	}
}

// Lock blocks until the caller owns participantID's session and returns the
// release func. Locks of different participants are independent.
func (s *Store) Lock(participantID int64) (unlock func()) {
	s.mu.Lock()
	ref, ok := s.locks[participantID]
	if !ok {
		ref = &lockRef{}
		s.locks[participantID] = ref
	}
	ref.refs++
	s.mu.Unlock()

	ref.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			ref.mu.Unlock()
			s.mu.Lock()
			ref.refs--
			if ref.refs == 0 {
				delete(s.locks, participantID)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Store) Get(participantID int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[participantID]
	return sess, ok
}

func (s *Store) GetOrCreate(participantID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[participantID]; ok {
		return sess
	}
	now := s.now()
	sess := &Session{
		ParticipantID: participantID,
		Step:          StepNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.sessions[participantID] = sess
	return sess
}

// Touch marks the session as active now.
func (s *Store) Touch(sess *Session) {
	s.mu.Lock()
	sess.UpdatedAt = s.now()
	s.mu.Unlock()
}

func (s *Store) Clear(participantID int64) {
	s.mu.Lock()
	delete(s.sessions, participantID)
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions idle since before now-ttl and returns them.
// Sessions whose participant lock is held are left alone.
func (s *Store) Sweep(now time.Time) []*Session {
	if s.ttl <= 0 {
		return nil
	}
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []*Session
	for id, sess := range s.sessions {
		if _, busy := s.locks[id]; busy {
			continue
		}
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			evicted = append(evicted, sess)
		}
	}
	return evicted
}
