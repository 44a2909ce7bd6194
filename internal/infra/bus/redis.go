// Package bus publishes recovery lifecycle events to Redis Streams so
// external consumers (dashboards, alerting) can follow recoveries without
// coupling to the engine.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stepguard/stepguard/internal/core/domain"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

const (
	defaultStream = "recovery:events"
	defaultMaxLen = 10000
)

// Publisher is an event observer that appends every event to a Redis
// Stream. The stream is capped so an idle consumer can't grow it
// unbounded.
type Publisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	log    *slog.Logger
}

// NewPublisher creates a stream publisher and verifies the connection.
func NewPublisher(cfg Config, log *slog.Logger) (*Publisher, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	stream := cfg.Stream
	if stream == "" {
		stream = defaultStream
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	if log == nil {
		log = slog.Default()
	}

	return &Publisher{rdb: rdb, stream: stream, maxLen: maxLen, log: log}, nil
}

// OnEvent appends the event to the stream. Publishing is best-effort: a
// broken stream must never fail a recovery, so errors are logged and
// dropped.
func (p *Publisher) OnEvent(ctx context.Context, ev domain.Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		p.log.Warn("Failed to encode event payload",
			"event", string(ev.Type), "error", err)
		return
	}

	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":      string(ev.Type),
			"timestamp": ev.Timestamp.UnixMilli(),
			"data":      payload,
		},
	}).Err()
	if err != nil {
		p.log.Warn("Failed to publish event",
			"event", string(ev.Type), "stream", p.stream, "error", err)
	}
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
