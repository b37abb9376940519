package wizard

import (
	"sync"

	"github.com/google/uuid"
)

type session struct {
	mu sync.Mutex
	w  *Wizard
}

// Sessions keeps one in-progress wizard per user. Wizards are not persisted:
// a restart discards unsaved drafts.
type Sessions struct {
	mu sync.Mutex
	m  map[uuid.UUID]*session
}

func NewSessions() *Sessions {
	return &Sessions{m: make(map[uuid.UUID]*session)}
}

func (s *Sessions) get(userID uuid.UUID) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[userID]
	if !ok {
		sess = &session{w: New()}
		s.m[userID] = sess
	}
	return sess
}

// Do runs fn against the user's wizard, creating it on first use. Calls for
// the same user are serialized; different users do not block each other.
func (s *Sessions) Do(userID uuid.UUID, fn func(w *Wizard) error) error {
	sess := s.get(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess.w)
}

// Discard drops the user's wizard.
func (s *Sessions) Discard(userID uuid.UUID) {
	s.mu.Lock()
	delete(s.m, userID)
	s.mu.Unlock()
}
