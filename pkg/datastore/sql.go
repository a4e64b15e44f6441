package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/rendezvous/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05.000"

// Store is the SQLite-backed presence log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open db: %w", err)
	}

	ctx := context.Background()

	// WAL lets exports read while the server keeps appending.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS presence_events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind       TEXT    NOT NULL CHECK(kind IN ('register', 'replace', 'unregister')),
		username   TEXT    NOT NULL CHECK(length(username) > 0 AND length(username) <= 32),
		session_id TEXT    NOT NULL DEFAULT '',
		ip         TEXT    NOT NULL DEFAULT '',
		port       TEXT    NOT NULL DEFAULT '',
		created_at TEXT    NOT NULL
	);
	`
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_presence_username ON presence_events(username)",
			},
		},
		{
			// v3 drops the username length cap; any name the relay accepts is logged.
			version: 3,
			statements: []string{
				`CREATE TABLE presence_events_v3 (
					id         INTEGER PRIMARY KEY AUTOINCREMENT,
					kind       TEXT    NOT NULL CHECK(kind IN ('register', 'replace', 'unregister')),
					username   TEXT    NOT NULL CHECK(length(username) > 0),
					session_id TEXT    NOT NULL DEFAULT '',
					ip         TEXT    NOT NULL DEFAULT '',
					port       TEXT    NOT NULL DEFAULT '',
					created_at TEXT    NOT NULL
				)`,
				`INSERT INTO presence_events_v3 (id, kind, username, session_id, ip, port, created_at)
					SELECT id, kind, username, session_id, ip, port, created_at FROM presence_events`,
				"DROP TABLE presence_events",
				"ALTER TABLE presence_events_v3 RENAME TO presence_events",
				"CREATE INDEX IF NOT EXISTS idx_presence_username ON presence_events(username)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("datastore: migrate v%d: %w", m.version, err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// RecordPresence appends ev to the log.
func (s *Store) RecordPresence(ev *model.PresenceEvent) error {
	if err := validateEvent(ev); err != nil {
		return fmt.Errorf("datastore: presence event failed validation: %w", err)
	}

	createdAt := s.now()
	res, err := s.db.ExecContext(
		context.Background(),
		"INSERT INTO presence_events (kind, username, session_id, ip, port, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		string(ev.Kind), ev.Username, ev.SessionID, ev.IP, ev.Port, formatDBTime(createdAt))
	if err != nil {
		return fmt.Errorf("datastore: record presence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("datastore: record presence id: %w", err)
	}
	ev.ID = id
	ev.CreatedAt = createdAt.Truncate(time.Millisecond)
	return nil
}

// ListPresence returns events oldest first.
func (s *Store) ListPresence(filters model.PresenceFilters) ([]model.PresenceEvent, error) {
	query := `
		SELECT id, kind, username, session_id, ip, port, created_at
		FROM presence_events
		WHERE (? IS NULL OR username = ?)
		AND (? IS NULL OR kind = ?)
		ORDER BY id ASC
		LIMIT COALESCE(?, 100)
		OFFSET COALESCE(?, 0)
	`

	var kind *string
	if filters.Kind != nil {
		k := string(*filters.Kind)
		kind = &k
	}

	rows, err := s.db.QueryContext(
		context.Background(),
		query,
		filters.Username, filters.Username,
		kind, kind,
		filters.PageSize,
		filters.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("datastore: list presence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.PresenceEvent
	for rows.Next() {
		var ev model.PresenceEvent
		var kindStr, createdAt string
		if err := rows.Scan(&ev.ID, &kindStr, &ev.Username, &ev.SessionID, &ev.IP, &ev.Port, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan presence: %w", err)
		}
		ev.Kind = model.EventKind(kindStr)
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan presence: %w", err)
		}
		ev.CreatedAt = parsed
		events = append(events, ev)
	}
	return events, rows.Err()
}
