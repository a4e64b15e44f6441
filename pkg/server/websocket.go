package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/rendezvous/pkg/protocol"
)

// wsLineConn carries protocol lines over a WebSocket. Each inbound text frame
// may hold several '\n'-separated lines; each outbound line is one frame.
type wsLineConn struct {
	conn     *websocket.Conn
	remoteIP string
	pending  []string
}

func newWSLineConn(conn *websocket.Conn, remoteIP string) *wsLineConn {
	conn.SetReadLimit(protocol.MaxLineLength)
	return &wsLineConn{conn: conn, remoteIP: remoteIP}
}

func (c *wsLineConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if mt != websocket.TextMessage {
			continue
		}
		text := strings.TrimSuffix(string(data), "\n")
		c.pending = strings.Split(text, "\n")
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

func (c *wsLineConn) WriteLine(line string) error {
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsLineConn) RemoteIP() string { return c.remoteIP }

func (c *wsLineConn) Close() error { return c.conn.Close() }

// webSocketHandler serves GET /ws. WebSocket sessions share the directory with
// TCP sessions, so both kinds can message each other.
func (s *Server) webSocketHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	release, ok := s.admit()
	if !ok {
		slog.Warn("session limit reached, rejecting websocket", "remote", r.RemoteAddr, "max", s.cfg.MaxSessions)
		http.Error(w, "session limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		release()
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	// The IP comes from the TCP peer, never from forwarding headers.
	s.serveSession(newWSLineConn(conn, hostOfString(r.RemoteAddr)), "websocket", release)
}

// originChecker allows any origin when none are configured.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients
		}
		_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}
