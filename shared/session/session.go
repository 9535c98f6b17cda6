// Package session maps browser cookies to operator sessions.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dracory/insightpilot/internal/querysession"
	"github.com/dracory/insightpilot/shared/constants"
)

// Session represents a browser session and owns its chat history.
type Session struct {
	ID        string
	CreatedAt time.Time
	Query     *querysession.Session

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns when the session last served a request.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Factory creates the query session of a new browser session.
type Factory func() *querysession.Session

// Manager holds the in-memory sessions.
type Manager struct {
	key     []byte
	secure  bool
	factory Factory
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. secret seals the cookie value.
func NewManager(secret string, secureCookies bool, factory Factory) *Manager {
	return &Manager{
		key:      deriveKey(secret),
		secure:   secureCookies,
		factory:  factory,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

// Ensure returns the session named by the request cookie, creating a new
// one and setting the cookie when there is none or it is not recognised.
func (m *Manager) Ensure(w http.ResponseWriter, r *http.Request) *Session {
	if s, ok := m.FromRequest(r); ok {
		return s
	}

	s := &Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		CreatedAt: m.now(),
		Query:     m.factory(),
	}
	s.touch(s.CreatedAt)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if value, err := sealID(s.ID, m.key); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     constants.SessionCookieName,
			Value:    value,
			Path:     "/",
			HttpOnly: true,
			Secure:   m.secure || r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return s
}

// FromRequest looks up the session of the request cookie without creating one.
func (m *Manager) FromRequest(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(constants.SessionCookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}
	id, err := openID(c.Value, m.key)
	if err != nil {
		return nil, false
	}
	s, ok := m.Get(id)
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

// Get retrieves an existing session by ID
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes a session
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than maxIdle and returns how many went.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}
