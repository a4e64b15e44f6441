package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections atomic.Int64 // lifetime sessions accepted (TCP + WebSocket)
	ActiveSessions   atomic.Int64 // current live sessions
	RejectedSessions atomic.Int64 // turned away by MaxSessions
	TotalDisconnects atomic.Int64 // sessions ended for any reason

	// Directory counters
	Registrations         atomic.Int64 // REGISTER commands applied
	Replacements          atomic.Int64 // registrations that displaced another session
	RejectedRegistrations atomic.Int64 // REGISTER answered with ERR (unusable name)
	Lookups               atomic.Int64 // GETADDR commands
	LookupMisses          atomic.Int64 // GETADDR answered with ERR

	// Relay counters
	MessagesRelayed  atomic.Int64 // FROM lines delivered
	MessagesDropped  atomic.Int64 // missing target, rate limited or failed write
	MessagesRejected atomic.Int64 // commands the session state does not permit

	MalformedCommands atomic.Int64 // lines ignored as malformed
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	TotalConnections int64 `json:"total_connections"`
	ActiveSessions   int64 `json:"active_sessions"`
	RejectedSessions int64 `json:"rejected_sessions"`
	TotalDisconnects int64 `json:"total_disconnects"`

	Registrations         int64 `json:"registrations"`
	Replacements          int64 `json:"replacements"`
	RejectedRegistrations int64 `json:"rejected_registrations"`
	Lookups               int64 `json:"lookups"`
	LookupMisses          int64 `json:"lookup_misses"`

	MessagesRelayed  int64 `json:"messages_relayed"`
	MessagesDropped  int64 `json:"messages_dropped"`
	MessagesRejected int64 `json:"messages_rejected"`

	MalformedCommands int64 `json:"malformed_commands"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:                uptime.Truncate(time.Second).String(),
		UptimeSeconds:         int64(uptime.Seconds()),
		TotalConnections:      m.TotalConnections.Load(),
		ActiveSessions:        m.ActiveSessions.Load(),
		RejectedSessions:      m.RejectedSessions.Load(),
		TotalDisconnects:      m.TotalDisconnects.Load(),
		Registrations:         m.Registrations.Load(),
		Replacements:          m.Replacements.Load(),
		RejectedRegistrations: m.RejectedRegistrations.Load(),
		Lookups:               m.Lookups.Load(),
		LookupMisses:          m.LookupMisses.Load(),
		MessagesRelayed:       m.MessagesRelayed.Load(),
		MessagesDropped:       m.MessagesDropped.Load(),
		MessagesRejected:      m.MessagesRejected.Load(),
		MalformedCommands:     m.MalformedCommands.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary(users int) {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"sessions", s.ActiveSessions,
		"users", users,
		"total_connections", s.TotalConnections,
		"relayed", s.MessagesRelayed,
		"dropped", s.MessagesDropped,
		"lookup_misses", s.LookupMisses,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}, users func() int) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary(users())
			}
		}
	}()
}
