package connector

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session is one registered connector plus its activity bookkeeping.
type Session struct {
	ID        string
	Connector *Connector
	CreatedAt time.Time

	mu         sync.Mutex
	lastActive time.Time
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Registry tracks live harness sessions by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(c *Connector) *Session {
	now := time.Now()
	session := &Session{
		ID:         uuid.NewString(),
		Connector:  c,
		CreatedAt:  now,
		lastActive: now,
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()
	return session
}

func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

func (r *Registry) Remove(id string) *Session {
	r.mu.Lock()
	session := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if session != nil {
		session.Connector.Clean()
	}
	return session
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ReapIdle removes sessions inactive for longer than ttl and returns
// how many were dropped.
func (r *Registry) ReapIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	var expired []*Session
	for id, session := range r.sessions {
		if session.IdleSince().Before(cutoff) {
			expired = append(expired, session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, session := range expired {
		session.Connector.Clean()
		log.Info().Str("session_id", session.ID).Msg("reaped idle session")
	}
	return len(expired)
}
