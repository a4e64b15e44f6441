package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMetricsHandler(t *testing.T) {
	srv := startServer(t, testConfig(), Dependencies{})
	alice := dial(t, srv)
	alice.register("alice", "5001")
	alice.send("GETADDR nobody")
	alice.expect("ERR")

	ts := httptest.NewServer(srv.MetricsHandler())
	defer ts.Close()

	code, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, body = get(t, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "rendezvous_registrations_total 1")
	assert.Contains(t, body, "rendezvous_lookup_misses_total 1")
	assert.Contains(t, body, "rendezvous_directory_users 1")
	assert.Contains(t, body, "rendezvous_sessions_active 1")
	assert.Contains(t, body, "go_goroutines")

	code, body = get(t, ts.URL+"/directory")
	require.Equal(t, http.StatusOK, code)
	var entries []DirectoryEntryView
	require.NoError(t, json.Unmarshal([]byte(body), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, "127.0.0.1", entries[0].IP)
	assert.Equal(t, "5001", entries[0].Port)
	assert.NotEmpty(t, entries[0].SessionID)
	assert.False(t, entries[0].RegisteredAt.IsZero())
}

func TestMetricsSnapshotJSON(t *testing.T) {
	m := NewMetrics()
	m.MessagesRelayed.Add(3)
	m.TotalConnections.Add(2)

	var snap MetricsSnapshot
	require.NoError(t, json.Unmarshal([]byte(m.JSON()), &snap))
	assert.EqualValues(t, 3, snap.MessagesRelayed)
	assert.EqualValues(t, 2, snap.TotalConnections)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, int64(0))
}
