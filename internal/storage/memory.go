package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"cruise-drop-alerts/internal/offering"
)

// MemoryStore keeps slots and drops in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]offering.Snapshot
	drops []offering.PriceDropEvent
}

// NewMemoryStore returns an empty in-memory backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]offering.Snapshot)}
}

// ReadSlot returns a copy of the snapshot stored under slot.
func (m *MemoryStore) ReadSlot(_ context.Context, slot string) (offering.Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.slots[slot]
	if !ok {
		return offering.Snapshot{}, false, nil
	}
	return offering.NewSnapshot(snap.Offerings, snap.UpdatedAt), true, nil
}

// WriteSlot replaces the snapshot stored under slot.
func (m *MemoryStore) WriteSlot(_ context.Context, slot string, snapshot offering.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots[slot] = offering.NewSnapshot(snapshot.Offerings, snapshot.UpdatedAt)
	return nil
}

// InsertDrops appends events to the log.
func (m *MemoryStore) InsertDrops(_ context.Context, events []offering.PriceDropEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.drops = append(m.drops, events...)
	return nil
}

// ListRecentDrops returns up to limit drops, newest first.
func (m *MemoryStore) ListRecentDrops(_ context.Context, limit int) ([]offering.PriceDropEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]offering.PriceDropEvent, 0, len(m.drops))
	for i := len(m.drops) - 1; i >= 0; i-- {
		out = append(out, m.drops[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListDropsBetween returns drops detected in [from, to), oldest first.
func (m *MemoryStore) ListDropsBetween(_ context.Context, from, to time.Time) ([]offering.PriceDropEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]offering.PriceDropEvent, 0)
	for _, ev := range m.drops {
		if ev.DetectedAt.Before(from) || !ev.DetectedAt.Before(to) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() {}

var _ Backend = (*MemoryStore)(nil)
