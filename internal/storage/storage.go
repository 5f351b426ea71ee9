package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/facekiosk/internal/kiosk"
	"github.com/lehigh-university-libraries/facekiosk/internal/models"
)

// MaxNotices is how many notices a session keeps for its renderer
const MaxNotices = 20

// Session is a live kiosk controller and the notices it has posted
type Session struct {
	Controller *kiosk.Controller

	mu       sync.Mutex
	notices  []models.Notice
	lastSeen time.Time
}

// Touch marks the session as used now
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

// LastSeen is the last time the session was stored or touched
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// AddNotice keeps n, dropping the oldest notice once MaxNotices is reached
func (s *Session) AddNotice(n models.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	if len(s.notices) > MaxNotices {
		s.notices = s.notices[len(s.notices)-MaxNotices:]
	}
}

// Notices returns a copy of the kept notices, oldest first
func (s *Session) Notices() []models.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notice, len(s.notices))
	copy(out, s.notices)
	return out
}

type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

func (s *SessionStore) Get(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

// Set stores session, closing any controller previously held under sessionID
func (s *SessionStore) Set(sessionID string, session *Session) {
	session.Touch()

	s.mu.Lock()
	prev := s.sessions[sessionID]
	s.sessions[sessionID] = session
	s.mu.Unlock()

	if prev != nil && prev != session {
		prev.Controller.Close()
	}
}

// IDs returns the stored session ids in sorted order
func (s *SessionStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Delete removes the session and closes its controller. It reports whether
// the session existed.
func (s *SessionStore) Delete(sessionID string) bool {
	s.mu.Lock()
	session, exists := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if exists {
		session.Controller.Close()
	}
	return exists
}

// Expire removes and closes every session last seen before cutoff. It
// returns the removed ids in sorted order.
func (s *SessionStore) Expire(cutoff time.Time) []string {
	var expired []*Session
	var ids []string

	s.mu.Lock()
	for id, session := range s.sessions {
		if session.LastSeen().Before(cutoff) {
			expired = append(expired, session)
			ids = append(ids, id)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		session.Controller.Close()
	}
	sort.Strings(ids)
	return ids
}

// CloseAll closes every controller and empties the store
func (s *SessionStore) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Controller.Close()
	}
}
