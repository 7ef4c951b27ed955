// ABOUTME: In-memory session store for the Streamable HTTP transport.
// ABOUTME: Sessions are minted on initialize and removed on DELETE; a closed stream keeps its session.

package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// session tracks one active MCP client conversation. The events channel
// feeds the session's GET stream; done is closed when the session ends so
// an attached stream unblocks.
type session struct {
	id              string
	protocolVersion string
	createdAt       time.Time

	events chan []byte
	done   chan struct{}
}

// push queues an event for the session's SSE stream without blocking; a
// slow or absent stream consumer drops the event.
func (s *session) push(event []byte) bool {
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

// sessionStore manages active MCP sessions (in-memory).
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (s *sessionStore) create(protocolVersion string) *session {
	sess := &session{
		id:              uuid.New().String(),
		protocolVersion: protocolVersion,
		createdAt:       time.Now(),
		events:          make(chan []byte, 16),
		done:            make(chan struct{}),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *sessionStore) get(id string) (*session, bool) {
	if id == "" {
		return nil, false
	}
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	return sess, ok
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	sess, existed := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if existed {
		close(sess.done)
	}
	return existed
}

func (s *sessionStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
