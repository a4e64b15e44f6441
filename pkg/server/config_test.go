package server

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/rendezvous/pkg/datastore"
	"github.com/NicolasHaas/rendezvous/pkg/model"
)

func TestParseConfigOverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
listen_addr: "127.0.0.1:7000"
metrics_addr: ""
websocket_addr: ":7080"
websocket_origins: ["https://chat.example.com"]
max_sessions: 50
relay_rate: 2.5
relay_burst: 5
metrics_log_interval: 30s
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.ListenAddr)
	assert.Equal(t, "", cfg.MetricsAddr)
	assert.Equal(t, ":7080", cfg.WebSocketAddr)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.WebSocketOrigins)
	assert.Equal(t, 50, cfg.MaxSessions)
	assert.InDelta(t, 2.5, cfg.RelayRate, 1e-9)
	assert.Equal(t, 5, cfg.RelayBurst)
	assert.Equal(t, 30*time.Second, cfg.MetricsLogInterval)
}

func TestParseConfigEmptyKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestDefaultMetricsAddrIsLoopback(t *testing.T) {
	host, _, err := net.SplitHostPort(DefaultConfig().MetricsAddr)
	require.NoError(t, err)
	assert.True(t, net.ParseIP(host).IsLoopback(), "metrics default host %q", host)
}

func TestParseConfigRejectsUnknownKeys(t *testing.T) {
	_, err := ParseConfig([]byte("listen_adr: \":9001\"\n"))
	require.Error(t, err)
}

func TestParseConfigValidates(t *testing.T) {
	for _, doc := range []string{
		"listen_addr: \"\"\n",
		"max_sessions: -1\n",
		"relay_rate: -0.5\n",
		"relay_burst: -2\n",
		"metrics_log_interval: -1s\n",
	} {
		_, err := ParseConfig([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":9100\"\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:9602", cfg.MetricsAddr)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestExportPresenceYAML(t *testing.T) {
	st := datastore.NewMemory()
	for i := 0; i < exportPageSize+3; i++ {
		require.NoError(t, st.RecordPresence(&model.PresenceEvent{
			Kind:      model.EventRegister,
			Username:  "alice",
			SessionID: "s1",
			IP:        "127.0.0.1",
			Port:      "5001",
		}))
	}

	data, err := ExportPresenceYAML(st)
	require.NoError(t, err)

	var export PresenceExport
	require.NoError(t, yaml.Unmarshal(data, &export))
	require.Len(t, export.Events, exportPageSize+3)
	assert.EqualValues(t, 1, export.Events[0].ID)
	assert.Equal(t, model.EventRegister, export.Events[0].Kind)
	assert.Equal(t, "5001", export.Events[len(export.Events)-1].Port)
}

func TestExportPresenceYAMLEmpty(t *testing.T) {
	data, err := ExportPresenceYAML(datastore.NewMemory())
	require.NoError(t, err)
	assert.Equal(t, "events: []\n", string(data))
}
