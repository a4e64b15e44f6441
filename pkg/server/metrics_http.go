package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "rendezvous"

// DirectoryEntryView is the JSON shape of one entry on /directory.
type DirectoryEntryView struct {
	Username     string    `json:"username"`
	SessionID    string    `json:"session_id"`
	IP           string    `json:"ip"`
	Port         string    `json:"port"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Registry builds a Prometheus registry exposing the server's counters,
// the directory size, and the Go runtime/process collectors.
func (s *Server) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	m := s.metrics

	counter := func(name, help string, v *atomic.Int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v.Load()) })
	}
	gauge := func(name, help string, f func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		}, f)
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

		gauge("uptime_seconds", "Server uptime in seconds.",
			func() float64 { return time.Since(m.startTime).Seconds() }),
		gauge("sessions_active", "Current live relay sessions.",
			func() float64 { return float64(m.ActiveSessions.Load()) }),
		gauge("directory_users", "Usernames currently registered.",
			func() float64 { return float64(s.dir.Len()) }),

		counter("connections_total", "Lifetime relay sessions accepted.", &m.TotalConnections),
		counter("sessions_rejected_total", "Connections refused by the session limit.", &m.RejectedSessions),
		counter("disconnects_total", "Relay sessions ended.", &m.TotalDisconnects),
		counter("registrations_total", "REGISTER commands applied.", &m.Registrations),
		counter("registration_replacements_total", "Registrations that displaced another session.", &m.Replacements),
		counter("registrations_rejected_total", "REGISTER commands refused for an unusable name.", &m.RejectedRegistrations),
		counter("lookups_total", "GETADDR commands.", &m.Lookups),
		counter("lookup_misses_total", "GETADDR commands for unknown users.", &m.LookupMisses),
		counter("messages_relayed_total", "Messages delivered to their target.", &m.MessagesRelayed),
		counter("messages_dropped_total", "Messages silently dropped.", &m.MessagesDropped),
		counter("messages_rejected_total", "Commands refused in the session's current state.", &m.MessagesRejected),
		counter("malformed_commands_total", "Command lines ignored as malformed.", &m.MalformedCommands),
	)
	return reg
}

// MetricsHandler serves /metrics (Prometheus), /healthz and /directory.
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/directory", s.handleDirectory)
	return mux
}

func (s *Server) handleDirectory(w http.ResponseWriter, _ *http.Request) {
	entries := s.dir.Snapshot()
	views := make([]DirectoryEntryView, 0, len(entries))
	for _, e := range entries {
		v := DirectoryEntryView{
			Username:     e.Username,
			IP:           e.IP,
			Port:         e.Port,
			RegisteredAt: e.RegisteredAt,
		}
		if e.Handle != nil {
			v.SessionID = e.Handle.ID()
		}
		views = append(views, v)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}
