package server

import (
	"errors"
	"log/slog"
	"net"

	"github.com/NicolasHaas/rendezvous/pkg/directory"
	"github.com/NicolasHaas/rendezvous/pkg/model"
	"github.com/NicolasHaas/rendezvous/pkg/policy"
	"github.com/NicolasHaas/rendezvous/pkg/protocol"
)

// acceptLoop spawns one session goroutine per accepted connection. There is
// no pooling; MaxSessions is the only admission control.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accept error", "err", err)
			continue
		}

		release, ok := s.admit()
		if !ok {
			slog.Warn("session limit reached, rejecting connection",
				"remote", conn.RemoteAddr().String(), "max", s.cfg.MaxSessions)
			_ = conn.Close()
			continue
		}
		go s.serveSession(newTCPLineConn(conn), "tcp", release)
	}
}

// serveSession runs the per-connection command loop until EOF, a transport
// error or QUIT. Cleanup runs on every exit path.
func (s *Server) serveSession(conn lineConn, transport string, release func()) {
	sess := newSession(conn, transport, s.newLimiter())
	if !s.sessions.Add(sess) {
		_ = conn.Close()
		release()
		return
	}

	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveSessions.Add(1)
	logger := slog.With("session", sess.ID(), "remote", sess.RemoteIP(), "transport", transport)
	logger.Debug("new relay connection")

	defer s.cleanupSession(sess, release, logger)

	for {
		line, err := conn.ReadLine()
		if err != nil {
			if !isClosedErr(err) {
				logger.Debug("relay read failed", "err", err)
			}
			return
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			s.metrics.MalformedCommands.Add(1)
			logger.Debug("ignoring malformed command", "err", err)
			continue
		}
		if cmd.Verb == protocol.VerbQuit {
			logger.Debug("client quit")
			return
		}

		if err := s.dispatch(sess, cmd, logger); err != nil {
			logger.Debug("relay write failed", "err", err)
			return
		}
	}
}

// cleanupSession releases the session's directory entry (only if it still owns
// it) and its admission slot, then closes the connection.
func (s *Server) cleanupSession(sess *Session, release func(), logger *slog.Logger) {
	username := sess.markClosed()
	if username != "" && s.dir.Release(username, sess.ID()) {
		s.recordPresence(model.EventUnregister, username, sess, "")
		logger.Info("client disconnected", "user", username)
	} else {
		logger.Debug("connection closed", "user", username)
	}

	_ = sess.conn.Close()
	release()
	s.sessions.Remove(sess.ID())
	s.metrics.ActiveSessions.Add(-1)
	s.metrics.TotalDisconnects.Add(1)
}

// dispatch executes one parsed command. A returned error means the session's
// own connection failed and the loop must end.
func (s *Server) dispatch(sess *Session, cmd protocol.Command, logger *slog.Logger) error {
	if err := policy.Require(sess.State(), cmd.Verb); err != nil {
		s.metrics.MessagesRejected.Add(1)
		logger.Debug("command rejected", "err", err)
		return sess.Deliver(protocol.Err())
	}

	switch cmd.Verb {
	case protocol.VerbRegister:
		return s.handleRegister(sess, cmd, logger)
	case protocol.VerbList:
		return sess.Deliver(protocol.Users(s.dir.List()))
	case protocol.VerbGetAddr:
		return s.handleGetAddr(sess, cmd)
	case protocol.VerbMsg:
		return s.handleMsg(sess, cmd, logger)
	default:
		return nil
	}
}

func (s *Server) handleRegister(sess *Session, cmd protocol.Command, logger *slog.Logger) error {
	if err := model.ValidateUsername(cmd.Name); err != nil {
		s.metrics.RejectedRegistrations.Add(1)
		logger.Debug("register rejected", "user", cmd.Name, "err", err)
		return sess.Deliver(protocol.Err())
	}

	prevName := sess.bind(cmd.Name)
	if prevName != "" && prevName != cmd.Name && s.dir.Release(prevName, sess.ID()) {
		s.recordPresence(model.EventUnregister, prevName, sess, "")
		logger.Info("client renamed", "from", prevName, "to", cmd.Name)
	}

	prev, replaced := s.dir.Register(cmd.Name, sess, sess.RemoteIP(), cmd.Port)
	s.metrics.Registrations.Add(1)
	if replaced {
		// The displaced session keeps running but no longer owns the name.
		s.metrics.Replacements.Add(1)
		s.recordPresence(model.EventReplace, cmd.Name, sess, cmd.Port)
		logger.Info("client registered, replacing previous session",
			"user", cmd.Name, "port", cmd.Port, "displaced", prev.Handle.ID())
	} else {
		s.recordPresence(model.EventRegister, cmd.Name, sess, cmd.Port)
		logger.Info("client registered", "user", cmd.Name, "port", cmd.Port)
	}

	return sess.Deliver(protocol.OK())
}

func (s *Server) handleGetAddr(sess *Session, cmd protocol.Command) error {
	s.metrics.Lookups.Add(1)
	entry, err := s.dir.Lookup(cmd.Name)
	if errors.Is(err, directory.ErrNotFound) {
		s.metrics.LookupMisses.Add(1)
		return sess.Deliver(protocol.Err())
	}
	return sess.Deliver(protocol.Addr(entry.IP, entry.Port))
}

// handleMsg relays text to the target's connection. Misses, rate-limited
// messages and failed writes to the target are silent drops.
func (s *Server) handleMsg(sess *Session, cmd protocol.Command, logger *slog.Logger) error {
	sender := sess.Username()
	if !sess.allowRelay() {
		s.metrics.MessagesDropped.Add(1)
		logger.Debug("relay rate limited", "user", sender, "to", cmd.Name)
		return nil
	}

	target, err := s.dir.Resolve(cmd.Name)
	if err != nil {
		s.metrics.MessagesDropped.Add(1)
		logger.Debug("relay target not registered", "user", sender, "to", cmd.Name)
		return nil
	}

	if err := target.Deliver(protocol.From(sender, cmd.Text)); err != nil {
		s.metrics.MessagesDropped.Add(1)
		logger.Debug("relay delivery failed", "user", sender, "to", cmd.Name, "err", err)
		return nil
	}
	s.metrics.MessagesRelayed.Add(1)
	return nil
}
