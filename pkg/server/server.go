// Package server implements the rendezvous relay server: the user directory,
// the line-protocol sessions, and message relaying between them.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/NicolasHaas/rendezvous/pkg/datastore"
	"github.com/NicolasHaas/rendezvous/pkg/directory"
	"github.com/NicolasHaas/rendezvous/pkg/model"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store datastore.PresenceStore // optional presence log
}

// Server is the rendezvous relay server.
type Server struct {
	cfg      Config
	dir      *directory.Directory
	sessions *SessionManager
	metrics  *Metrics
	store    datastore.PresenceStore
	slots    *semaphore.Weighted // nil = unbounded sessions
	upgrader websocket.Upgrader

	mu          sync.Mutex
	listener    net.Listener
	wsListener  net.Listener
	httpServers []*http.Server
	started     bool

	wg           sync.WaitGroup // accept loop
	shutdownOnce sync.Once
	ctx          context.Context
	cancel       context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.RelayRate > 0 && cfg.RelayBurst == 0 {
		cfg.RelayBurst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		dir:      directory.New(),
		sessions: NewSessionManager(),
		metrics:  NewMetrics(),
		store:    deps.Store,
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.MaxSessions > 0 {
		s.slots = semaphore.NewWeighted(int64(cfg.MaxSessions))
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.WebSocketOrigins),
	}
	return s
}

// Directory returns the user directory.
func (s *Server) Directory() *directory.Directory {
	return s.dir
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// admit reserves a session slot. The returned release func must be called
// exactly once when the session ends.
func (s *Server) admit() (release func(), ok bool) {
	if s.slots == nil {
		return func() {}, true
	}
	if !s.slots.TryAcquire(1) {
		s.metrics.RejectedSessions.Add(1)
		return nil, false
	}
	return func() { s.slots.Release(1) }, true
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.cfg.RelayRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(s.cfg.RelayRate), s.cfg.RelayBurst)
}

// recordPresence appends to the presence log if one is configured. Failures
// are logged and never affect the session.
func (s *Server) recordPresence(kind model.EventKind, username string, sess *Session, port string) {
	if s.store == nil {
		return
	}
	ev := &model.PresenceEvent{
		Kind:      kind,
		Username:  username,
		SessionID: sess.ID(),
		IP:        sess.RemoteIP(),
		Port:      port,
	}
	if err := s.store.RecordPresence(ev); err != nil {
		slog.Warn("presence log write failed", "user", username, "kind", kind, "err", err)
	}
}
