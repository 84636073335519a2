package controller

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github/itish2003/convrag/models"
)

// Session is one server-side conversation. Its history is only touched while
// the session is leased.
type Session struct {
	mu       sync.Mutex
	history  *models.ConversationHistory
	// lastUsed is guarded by the store's mutex.
	lastUsed time.Time
}

// SessionStore owns the conversation histories of HTTP clients. Sessions
// idle for longer than ttl expire, and beyond limit sessions the least
// recently used one is dropped.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	limit    int
	now      func() time.Time
}

// NewSessionStore returns an empty store. A ttl or limit of zero disables that
// limit.
func NewSessionStore(ttl time.Duration, limit int) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		limit:    limit,
		now:      time.Now,
	}
}

// Lease is exclusive use of one session's history for a single query.
type Lease struct {
	store *SessionStore
	id    string
	sess  *Session
}

// Acquire locks the session with the given id. An empty, unknown or expired
// id gets a fresh history that is only stored once Commit is called, so
// failed queries leave nothing behind.
func (s *SessionStore) Acquire(id string) *Lease {
	s.mu.Lock()
	sess, ok := s.lookup(id)
	if ok {
		sess.lastUsed = s.now()
	} else {
		id = ""
		sess = &Session{history: models.NewConversationHistory()}
	}
	s.mu.Unlock()

	sess.mu.Lock()
	return &Lease{store: s, id: id, sess: sess}
}

// History returns the leased history.
func (l *Lease) History() *models.ConversationHistory { return l.sess.history }

// Commit appends a turn and returns the session id, storing the session
// under a new id if it was fresh.
func (l *Lease) Commit(question, answer string) string {
	l.sess.history.Append(question, answer)

	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()
	l.sess.lastUsed = s.now()
	if l.id == "" {
		l.id = uuid.New().String()
	}
	if s.sessions[l.id] != l.sess {
		s.sessions[l.id] = l.sess
		s.evict()
	}
	return l.id
}

// Release unlocks the session.
func (l *Lease) Release() { l.sess.mu.Unlock() }

// Turns returns a copy of the session's turns.
func (s *SessionStore) Turns(id string) ([]models.Turn, bool) {
	s.mu.Lock()
	sess, ok := s.lookup(id)
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.history.Turns(), true
}

// Clear empties the session's history and reports whether it existed.
func (s *SessionStore) Clear(id string) bool {
	s.mu.Lock()
	sess, ok := s.lookup(id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.mu.Lock()
	sess.history.Clear()
	sess.mu.Unlock()
	return true
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// lookup returns a live session, dropping it if it expired. Callers hold
// s.mu.
func (s *SessionStore) lookup(id string) (*Session, bool) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expired(sess) {
		delete(s.sessions, id)
		return nil, false
	}
	return sess, true
}

func (s *SessionStore) expired(sess *Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.lastUsed) > s.ttl
}

// evict drops expired sessions, then the least recently used ones while the
// store is over capacity. Callers hold s.mu.
func (s *SessionStore) evict() {
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
		}
	}
	for s.limit > 0 && len(s.sessions) > s.limit {
		var oldest string
		var oldestAt time.Time
		for id, sess := range s.sessions {
			if oldest == "" || sess.lastUsed.Before(oldestAt) {
				oldest, oldestAt = id, sess.lastUsed
			}
		}
		delete(s.sessions, oldest)
	}
}
