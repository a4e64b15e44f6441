// Package directory is the in-memory registry of online users: who is
// connected, where their relay session lives, and where they accept direct
// peer connections.
//
// A Directory is safe for concurrent use. Every operation holds one mutex for
// its whole duration, so no caller can observe a half-applied register or
// unregister.
package directory

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a username has no entry.
var ErrNotFound = errors.New("directory: user not found")

// Handle is the relay-side connection an entry routes to.
type Handle interface {
	// ID uniquely identifies the owning session.
	ID() string
	// Deliver writes one line to the session's connection.
	Deliver(line string) error
}

// Entry is the location record for one username.
type Entry struct {
	Username     string
	Handle       Handle
	IP           string // observed from the transport
	Port         string // declared by the client, unvalidated
	RegisteredAt time.Time
}

// Directory maps usernames to entries. Last registration wins.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// New creates an empty directory.
func New() *Directory {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty directory with a custom clock.
func NewWithClock(now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{
		entries: make(map[string]Entry),
		now:     now,
	}
}

// Register inserts or replaces the entry for username. When an entry owned by
// a different handle is displaced it is returned with ok=true; the displaced
// session is not notified.
func (d *Directory) Register(username string, h Handle, ip, port string) (prev Entry, replaced bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	old, exists := d.entries[username]
	d.entries[username] = Entry{
		Username:     username,
		Handle:       h,
		IP:           ip,
		Port:         port,
		RegisteredAt: d.now(),
	}
	if exists && old.Handle != nil && h != nil && old.Handle.ID() != h.ID() {
		return old, true
	}
	return Entry{}, false
}

// Unregister removes username if present.
func (d *Directory) Unregister(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, username)
}

// Release removes username only while it is still owned by handleID.
// It reports whether an entry was removed.
func (d *Directory) Release(username, handleID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[username]
	if !ok || e.Handle == nil || e.Handle.ID() != handleID {
		return false
	}
	delete(d.entries, username)
	return true
}

// List returns a sorted snapshot of registered usernames. The snapshot may be
// stale by the time the caller uses it.
func (d *Directory) List() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the entry for username.
func (d *Directory) Lookup(username string) (Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[username]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Resolve returns the connection handle that messages for username go to.
func (d *Directory) Resolve(username string) (Handle, error) {
	e, err := d.Lookup(username)
	if err != nil {
		return nil, err
	}
	return e.Handle, nil
}

// Len returns the number of registered usernames.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Snapshot returns all entries sorted by username.
func (d *Directory) Snapshot() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result
}
