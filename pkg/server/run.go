package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
)

// Start binds every configured listener and starts the accept loops. Failing
// to bind the relay listener is the only fatal server error.
func (s *Server) Start() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("server: already started")
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen relay: %w", err)
	}
	s.listener = ln

	if s.cfg.WebSocketAddr != "" {
		wsLn, err := net.Listen("tcp", s.cfg.WebSocketAddr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("server: listen websocket: %w", err)
		}
		s.wsListener = wsLn
		s.serveHTTP(wsLn, s.webSocketHandler(), "websocket")
	}

	if s.cfg.MetricsAddr != "" {
		mLn, err := net.Listen("tcp", s.cfg.MetricsAddr)
		if err != nil {
			// Metrics are optional; the relay keeps running without them.
			slog.Error("metrics HTTP listen failed", "addr", s.cfg.MetricsAddr, "err", err)
		} else {
			s.serveHTTP(mLn, s.MetricsHandler(), "metrics")
		}
	}

	s.started = true
	slog.Info("relay listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()

	if s.cfg.MetricsLogInterval > 0 {
		s.metrics.StartPeriodicLog(s.cfg.MetricsLogInterval, s.ctx.Done(), s.dir.Len)
	}
	return nil
}

func (s *Server) serveHTTP(ln net.Listener, h http.Handler, name string) {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpServers = append(s.httpServers, srv)

	go func() {
		slog.Info(name+" HTTP listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(name+" HTTP error", "err", err)
		}
	}()
}

// Addr returns the bound relay address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// WebSocketAddr returns the bound /ws bridge address, or nil if disabled.
func (s *Server) WebSocketAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wsListener == nil {
		return nil
	}
	return s.wsListener.Addr()
}

// Run starts the server and blocks until SIGINT/SIGTERM.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down...")
	return s.Shutdown()
}

// Shutdown stops accepting, closes every live session and the presence log.
// It waits for every session to finish its cleanup. Calling it again is a
// no-op.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() { err = s.shutdown() })
	return err
}

func (s *Server) shutdown() error {
	s.cancel()

	s.mu.Lock()
	var err error
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	for _, srv := range s.httpServers {
		err = multierr.Append(err, srv.Close())
	}
	s.httpServers = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.sessions.CloseAll()
	s.sessions.Wait()

	if s.store != nil {
		err = multierr.Append(err, s.store.Close())
	}
	return err
}
