package datastore

import (
	"fmt"
	"sync"
	"time"

	"github.com/NicolasHaas/rendezvous/pkg/model"
)

// MemoryStore provides an in-memory PresenceStore for tests.
// It mirrors SQLite behavior for validation and ordering.
type MemoryStore struct {
	mu     sync.RWMutex
	now    func() time.Time
	nextID int64
	events []model.PresenceEvent
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{now: now, nextID: 1}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// RecordPresence appends ev to the log.
func (s *MemoryStore) RecordPresence(ev *model.PresenceEvent) error {
	if err := validateEvent(ev); err != nil {
		return fmt.Errorf("datastore: presence event failed validation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = s.nextID
	ev.CreatedAt = s.now().UTC()
	s.nextID++
	s.events = append(s.events, *ev)
	return nil
}

// ListPresence returns events oldest first.
func (s *MemoryStore) ListPresence(filters model.PresenceFilters) ([]model.PresenceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := int64(defaultPageSize)
	if filters.PageSize != nil {
		limit = *filters.PageSize
	}
	var offset int64
	if filters.Offset != nil {
		offset = *filters.Offset
	}

	var result []model.PresenceEvent
	var skipped int64
	for _, ev := range s.events {
		if filters.Username != nil && ev.Username != *filters.Username {
			continue
		}
		if filters.Kind != nil && ev.Kind != *filters.Kind {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if int64(len(result)) >= limit {
			break
		}
		result = append(result, ev)
	}
	return result, nil
}
