package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStreamNotifier publishes every digest as one stream entry so other
// services can consume drops.
type RedisStreamNotifier struct {
	client    *redis.Client
	stream    string
	maxLength int64
	logger    zerolog.Logger
}

// NewRedisStreamNotifier creates a stream publisher. maxLength <= 0 disables trimming.
func NewRedisStreamNotifier(client *redis.Client, stream string, maxLength int64, logger zerolog.Logger) *RedisStreamNotifier {
	return &RedisStreamNotifier{
		client:    client,
		stream:    stream,
		maxLength: maxLength,
		logger:    logger.With().Str("component", "alert_redis_stream").Str("stream", stream).Logger(),
	}
}

// Notify appends the digest to the stream.
func (n *RedisStreamNotifier) Notify(ctx context.Context, digest Digest) error {
	events, err := json.Marshal(digest.Events)
	if err != nil {
		return fmt.Errorf("marshal digest events: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"run_id":      digest.RunID,
			"recipient":   digest.Recipient,
			"detected_at": digest.DetectedAt.UTC().Format(time.RFC3339Nano),
			"count":       len(digest.Events),
			"events":      string(events),
		},
	}
	if n.maxLength > 0 {
		args.MaxLen = n.maxLength
		args.Approx = true
	}

	id, err := n.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("publish digest to %s: %w", n.stream, err)
	}

	n.logger.Info().Str("run_id", digest.RunID).Str("entry", id).Int("events", len(digest.Events)).Msg("digest published (redis stream)")
	return nil
}

var _ Notifier = (*RedisStreamNotifier)(nil)
