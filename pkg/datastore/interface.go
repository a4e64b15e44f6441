// Package datastore provides the optional presence log: an append-only audit
// trail of directory changes (register, replace, unregister).
//
// The log is never read back into the live directory. A restarted server
// always starts with an empty directory.
package datastore

import "github.com/NicolasHaas/rendezvous/pkg/model"

// PresenceStore defines the persistence interface for presence events.
// Implementations include the SQLite store and an in-memory store for tests.
type PresenceStore interface {
	PresenceReadProvider
	PresenceWriteProvider

	// Close closes the underlying storage connection.
	Close() error
}

type PresenceReadProvider interface {
	// ListPresence returns events oldest first, narrowed by filters.
	ListPresence(filters model.PresenceFilters) ([]model.PresenceEvent, error)
}

type PresenceWriteProvider interface {
	// RecordPresence stores ev and fills in its ID and CreatedAt.
	RecordPresence(ev *model.PresenceEvent) error
}

// Compile-time checks.
var (
	_ PresenceStore = (*Store)(nil)
	_ PresenceStore = (*MemoryStore)(nil)
)
