package storage

import (
	"context"
	"errors"
	"time"

	"cruise-drop-alerts/internal/offering"
)

// Fixed snapshot slots.
const (
	SlotLatest   = "latest"
	SlotPrevious = "previous"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// SnapshotStore persists the two most recent snapshots by slot name.
type SnapshotStore interface {
	ReadSlot(ctx context.Context, slot string) (offering.Snapshot, bool, error)
	WriteSlot(ctx context.Context, slot string, snapshot offering.Snapshot) error
}

// DropLog is the append-only history of detected price drops.
type DropLog interface {
	InsertDrops(ctx context.Context, events []offering.PriceDropEvent) error
	ListRecentDrops(ctx context.Context, limit int) ([]offering.PriceDropEvent, error)
	ListDropsBetween(ctx context.Context, from, to time.Time) ([]offering.PriceDropEvent, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Backend bundles everything a run needs from storage.
type Backend interface {
	SnapshotStore
	DropLog
	Close()
}
