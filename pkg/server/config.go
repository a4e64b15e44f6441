package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/rendezvous/pkg/datastore"
	"github.com/NicolasHaas/rendezvous/pkg/model"
)

// Config holds server configuration. Every field can come from a YAML file
// and be overridden by a command-line flag.
type Config struct {
	ListenAddr    string `yaml:"listen_addr"`    // TCP relay bind address (e.g. ":9001")
	MetricsAddr   string `yaml:"metrics_addr"`   // HTTP bind address for /metrics (empty = disabled)
	WebSocketAddr string `yaml:"websocket_addr"` // HTTP bind address for the /ws bridge (empty = disabled)
	DBPath        string `yaml:"db_path"`        // SQLite presence log (empty = disabled)

	// WebSocketOrigins restricts browser origins allowed on /ws (empty = any).
	WebSocketOrigins []string `yaml:"websocket_origins,omitempty"`

	MaxSessions int     `yaml:"max_sessions"` // concurrent sessions, 0 = unbounded
	RelayRate   float64 `yaml:"relay_rate"`   // MSGs per second per session, 0 = unlimited
	RelayBurst  int     `yaml:"relay_burst"`  // burst for RelayRate (defaults to 1)

	MetricsLogInterval time.Duration `yaml:"metrics_log_interval"` // periodic slog summary, 0 = off

	// CLI-only actions (run and exit)
	ExportPresence bool `yaml:"-"` // print the presence log as YAML and exit
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:         ":9001",
		MetricsAddr:        "127.0.0.1:9602",
		MetricsLogInterval: 60 * time.Second,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("server: config: listen_addr must not be empty")
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("server: config: max_sessions must be >= 0, got %d", c.MaxSessions)
	}
	if c.RelayRate < 0 {
		return fmt.Errorf("server: config: relay_rate must be >= 0, got %v", c.RelayRate)
	}
	if c.RelayBurst < 0 {
		return fmt.Errorf("server: config: relay_burst must be >= 0, got %d", c.RelayBurst)
	}
	if c.MetricsLogInterval < 0 {
		return fmt.Errorf("server: config: metrics_log_interval must be >= 0, got %s", c.MetricsLogInterval)
	}
	return nil
}

// LoadConfigFile reads a YAML config file on top of DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return Config{}, fmt.Errorf("server: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig. Unknown keys are errors.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("server: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PresenceExport is the top-level YAML for presence log export.
type PresenceExport struct {
	Events []model.PresenceEvent `yaml:"events"`
}

const exportPageSize = 500

// ExportPresenceYAML exports the whole presence log as YAML, oldest first.
func ExportPresenceYAML(st datastore.PresenceReadProvider) ([]byte, error) {
	export := PresenceExport{Events: []model.PresenceEvent{}}

	pageSize := int64(exportPageSize)
	var offset int64
	for {
		off := offset
		page, err := st.ListPresence(model.PresenceFilters{PageSize: &pageSize, Offset: &off})
		if err != nil {
			return nil, fmt.Errorf("server: export presence: %w", err)
		}
		export.Events = append(export.Events, page...)
		if int64(len(page)) < pageSize {
			break
		}
		offset += pageSize
	}
	return yaml.Marshal(&export)
}
