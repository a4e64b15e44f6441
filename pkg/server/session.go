package server

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/NicolasHaas/rendezvous/pkg/model"
)

// Session is the server side of one accepted client connection.
// It implements directory.Handle so relayed messages can be routed to it.
type Session struct {
	id        string
	transport string
	conn      lineConn
	remoteIP  string
	limiter   *rate.Limiter // nil = unlimited relaying

	writeMu sync.Mutex // one line at a time on the wire

	mu       sync.RWMutex
	username string
	state    model.SessionState
}

func newSession(conn lineConn, transport string, limiter *rate.Limiter) *Session {
	return &Session{
		id:        uuid.NewString(),
		transport: transport,
		conn:      conn,
		remoteIP:  conn.RemoteIP(),
		limiter:   limiter,
		state:     model.StateConnected,
	}
}

// ID returns the session's unique connection handle.
func (s *Session) ID() string { return s.id }

// RemoteIP returns the IP observed on the transport.
func (s *Session) RemoteIP() string { return s.remoteIP }

// Transport returns "tcp" or "websocket".
func (s *Session) Transport() string { return s.transport }

// Deliver writes one line to the client. Concurrent callers never interleave.
func (s *Session) Deliver(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteLine(line)
}

// Username returns the bound username, or "" before the first REGISTER.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// State returns the lifecycle state.
func (s *Session) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// bind sets the username and moves to Registered. It returns the previously
// bound name.
func (s *Session) bind(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.username
	s.username = username
	s.state = model.StateRegistered
	return prev
}

// markClosed moves the session to Closed and returns the bound username.
func (s *Session) markClosed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = model.StateClosed
	return s.username
}

// allowRelay consumes one token from the relay limiter.
func (s *Session) allowRelay() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// SessionManager tracks live sessions so shutdown can close them.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // sessionID -> session
	closed   bool
	live     sync.WaitGroup
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// Add tracks sess. It returns false once CloseAll has run.
func (sm *SessionManager) Add(sess *Session) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.closed {
		return false
	}
	sm.sessions[sess.ID()] = sess
	sm.live.Add(1)
	return true
}

// Get retrieves a session by ID.
func (sm *SessionManager) Get(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Remove stops tracking a session.
func (sm *SessionManager) Remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[id]; ok {
		delete(sm.sessions, id)
		sm.live.Done()
	}
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// All returns all live sessions (snapshot).
func (sm *SessionManager) All() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	result := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		result = append(result, s)
	}
	return result
}

// CloseAll closes every live connection and refuses new sessions. Each
// session's own goroutine still runs its cleanup.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	sm.closed = true
	live := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		live = append(live, s)
	}
	sm.mu.Unlock()

	for _, s := range live {
		_ = s.conn.Close()
	}
}

// Wait blocks until every session added before CloseAll has been removed.
func (sm *SessionManager) Wait() {
	sm.live.Wait()
}
