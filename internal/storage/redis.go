package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"cruise-drop-alerts/internal/offering"
)

const (
	dropEventField  = "event"
	defaultKeyScope = "cruisewatch"

	// dropIDSlack widens the stream id range around a window. Stream ids carry
	// the server's insertion time, which trails detection and may be skewed.
	dropIDSlack = 24 * time.Hour
)

// RedisStore keeps each slot as a JSON value and the drop log as a stream.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps a connected client. Keys are namespaced by prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyScope
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) slotKey(slot string) string {
	return r.prefix + ":snapshot:" + slot
}

func (r *RedisStore) dropStream() string {
	return r.prefix + ":drops"
}

func (r *RedisStore) getClient() (*redis.Client, error) {
	if r == nil || r.client == nil {
		return nil, ErrNotConfigured
	}
	return r.client, nil
}

// ReadSlot loads the snapshot stored under slot.
func (r *RedisStore) ReadSlot(ctx context.Context, slot string) (offering.Snapshot, bool, error) {
	client, err := r.getClient()
	if err != nil {
		return offering.Snapshot{}, false, err
	}

	raw, err := client.Get(ctx, r.slotKey(slot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return offering.Snapshot{}, false, nil
	}
	if err != nil {
		return offering.Snapshot{}, false, fmt.Errorf("read slot %s: %w", slot, err)
	}

	var snap offering.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return offering.Snapshot{}, false, fmt.Errorf("decode slot %s: %w", slot, err)
	}
	snap.UpdatedAt = snap.UpdatedAt.UTC()
	return snap, true, nil
}

// WriteSlot replaces the snapshot stored under slot.
func (r *RedisStore) WriteSlot(ctx context.Context, slot string, snapshot offering.Snapshot) error {
	client, err := r.getClient()
	if err != nil {
		return err
	}

	if snapshot.Offerings == nil {
		snapshot.Offerings = []offering.Offering{}
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode slot %s: %w", slot, err)
	}
	if err := client.Set(ctx, r.slotKey(slot), raw, 0).Err(); err != nil {
		return fmt.Errorf("write slot %s: %w", slot, err)
	}
	return nil
}

// InsertDrops appends each event to the drop stream in one pipeline.
func (r *RedisStore) InsertDrops(ctx context.Context, events []offering.PriceDropEvent) error {
	if len(events) == 0 {
		return nil
	}
	client, err := r.getClient()
	if err != nil {
		return err
	}

	pipe := client.TxPipeline()
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode drop %s: %w", ev.Key, err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: r.dropStream(),
			Values: map[string]interface{}{dropEventField: string(payload)},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert drops: %w", err)
	}
	return nil
}

// ListRecentDrops lists the most recent drops, newest first.
func (r *RedisStore) ListRecentDrops(ctx context.Context, limit int) ([]offering.PriceDropEvent, error) {
	client, err := r.getClient()
	if err != nil {
		return nil, err
	}

	var msgs []redis.XMessage
	if limit > 0 {
		msgs, err = client.XRevRangeN(ctx, r.dropStream(), "+", "-", int64(limit)).Result()
	} else {
		msgs, err = client.XRevRange(ctx, r.dropStream(), "+", "-").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("list recent drops: %w", err)
	}
	return decodeDrops(msgs)
}

// ListDropsBetween lists drops detected in [from, to), oldest first.
func (r *RedisStore) ListDropsBetween(ctx context.Context, from, to time.Time) ([]offering.PriceDropEvent, error) {
	client, err := r.getClient()
	if err != nil {
		return nil, err
	}

	start, stop := dropRangeIDs(from, to)
	msgs, err := client.XRange(ctx, r.dropStream(), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list drops between: %w", err)
	}
	all, err := decodeDrops(msgs)
	if err != nil {
		return nil, err
	}

	out := make([]offering.PriceDropEvent, 0, len(all))
	for _, ev := range all {
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

// dropRangeIDs bounds an XRANGE scan by millisecond stream ids around [from, to).
func dropRangeIDs(from, to time.Time) (string, string) {
	start := "-"
	if !from.IsZero() {
		if ms := from.Add(-dropIDSlack).UnixMilli(); ms > 0 {
			start = strconv.FormatInt(ms, 10)
		}
	}
	stop := "+"
	if !to.IsZero() {
		stop = strconv.FormatInt(to.Add(dropIDSlack).UnixMilli(), 10)
	}
	return start, stop
}

// Close closes the Redis connection.
func (r *RedisStore) Close() {
	if r == nil || r.client == nil {
		return
	}
	_ = r.client.Close()
}

func decodeDrops(msgs []redis.XMessage) ([]offering.PriceDropEvent, error) {
	events := make([]offering.PriceDropEvent, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values[dropEventField].(string)
		if !ok {
			return nil, fmt.Errorf("drop stream entry %s has no %q field", msg.ID, dropEventField)
		}
		var ev offering.PriceDropEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode drop stream entry %s: %w", msg.ID, err)
		}
		ev.DetectedAt = ev.DetectedAt.UTC()
		events = append(events, ev)
	}
	return events, nil
}

var _ Backend = (*RedisStore)(nil)
