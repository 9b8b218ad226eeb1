package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"cruise-drop-alerts/internal/offering"
)

//go:embed schema.sql
var schemaSQL string

const (
	readSlotSQL = `SELECT offerings, updated_at FROM snapshots WHERE slot = $1;`

	writeSlotSQL = `INSERT INTO snapshots (slot, offerings, updated_at)
    VALUES ($1, $2, $3)
    ON CONFLICT (slot) DO UPDATE
    SET offerings  = EXCLUDED.offerings,
        updated_at = EXCLUDED.updated_at;`

	insertDropSQL = `INSERT INTO price_drops (
        identity_key,
        vendor_id,
        ship_name,
        sail_date,
        deal_code,
        deal_name,
        grade_code,
        grade_name,
        price_from,
        price_to,
        detected_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    );`

	selectDropColumns = `SELECT
        identity_key,
        vendor_id,
        ship_name,
        sail_date,
        deal_code,
        deal_name,
        grade_code,
        grade_name,
        price_from::text,
        price_to::text,
        detected_at
    FROM price_drops`

	listRecentDropsSQL = selectDropColumns + `
    ORDER BY detected_at DESC, id DESC
    LIMIT $1;`

	listDropsBetweenSQL = selectDropColumns + `
    WHERE detected_at >= $1
      AND detected_at < $2
    ORDER BY detected_at, id;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store keeps snapshot slots and the drop log in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Migrate creates the tables used by the store when missing.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session lock dies with the connection if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// ReadSlot loads the snapshot stored under slot.
func (s *Store) ReadSlot(ctx context.Context, slot string) (offering.Snapshot, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return offering.Snapshot{}, false, err
	}

	var (
		raw       []byte
		updatedAt time.Time
	)
	if err := pool.QueryRow(ctx, readSlotSQL, slot).Scan(&raw, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return offering.Snapshot{}, false, nil
		}
		return offering.Snapshot{}, false, fmt.Errorf("read slot %s: %w", slot, err)
	}

	var offerings []offering.Offering
	if err := json.Unmarshal(raw, &offerings); err != nil {
		return offering.Snapshot{}, false, fmt.Errorf("decode slot %s: %w", slot, err)
	}
	return offering.Snapshot{Offerings: offerings, UpdatedAt: updatedAt.UTC()}, true, nil
}

// WriteSlot replaces the snapshot stored under slot.
func (s *Store) WriteSlot(ctx context.Context, slot string, snapshot offering.Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	offerings := snapshot.Offerings
	if offerings == nil {
		offerings = []offering.Offering{}
	}
	raw, err := json.Marshal(offerings)
	if err != nil {
		return fmt.Errorf("encode slot %s: %w", slot, err)
	}

	if _, err := pool.Exec(ctx, writeSlotSQL, slot, raw, snapshot.UpdatedAt); err != nil {
		return fmt.Errorf("write slot %s: %w", slot, err)
	}
	return nil
}

// InsertDrops appends events to the drop log in one transaction.
func (s *Store) InsertDrops(ctx context.Context, events []offering.PriceDropEvent) error {
	if len(events) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert drops: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(insertDropSQL,
			ev.Key,
			ev.VendorID,
			ev.ShipName,
			ev.SailDate,
			ev.DealCode,
			ev.DealName,
			ev.GradeCode,
			ev.GradeName,
			ev.PriceFrom.String(),
			ev.PriceTo.String(),
			ev.DetectedAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range events {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert drop: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close drop batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit drops: %w", err)
	}
	return nil
}

// ListRecentDrops lists the most recent drops, newest first.
func (s *Store) ListRecentDrops(ctx context.Context, limit int) ([]offering.PriceDropEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDropsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent drops: %w", queryErr)
	}
	return collectDrops(rows)
}

// ListDropsBetween lists drops detected in [from, to), oldest first.
func (s *Store) ListDropsBetween(ctx context.Context, from, to time.Time) ([]offering.PriceDropEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDropsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list drops between: %w", queryErr)
	}
	return collectDrops(rows)
}

func collectDrops(rows pgx.Rows) ([]offering.PriceDropEvent, error) {
	defer rows.Close()

	events := make([]offering.PriceDropEvent, 0)
	for rows.Next() {
		ev, err := scanDrop(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

func scanDrop(rows pgx.Rows) (offering.PriceDropEvent, error) {
	var (
		ev      offering.PriceDropEvent
		fromStr string
		toStr   string
	)
	if err := rows.Scan(
		&ev.Key,
		&ev.VendorID,
		&ev.ShipName,
		&ev.SailDate,
		&ev.DealCode,
		&ev.DealName,
		&ev.GradeCode,
		&ev.GradeName,
		&fromStr,
		&toStr,
		&ev.DetectedAt,
	); err != nil {
		return offering.PriceDropEvent{}, err
	}

	var err error
	ev.PriceFrom, err = decimal.NewFromString(fromStr)
	if err != nil {
		return offering.PriceDropEvent{}, fmt.Errorf("parse price from: %w", err)
	}
	ev.PriceTo, err = decimal.NewFromString(toStr)
	if err != nil {
		return offering.PriceDropEvent{}, fmt.Errorf("parse price to: %w", err)
	}
	ev.DetectedAt = ev.DetectedAt.UTC()
	return ev, nil
}

var (
	_ Backend        = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
