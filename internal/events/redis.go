package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// streamMaxLen is the approximate cap for the event stream, enforced via
// XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// RedisPublisher fans events out over Redis: PUBLISH on a channel for live
// subscribers and XADD on a stream for consumers that need replay.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	stream  string
}

// NewRedisPublisher creates a sink. An empty stream disables XADD.
func NewRedisPublisher(rdb *redis.Client, channel, stream string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel, stream: stream}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", e.Name, err)
	}

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", p.channel, err)
	}

	if p.stream == "" {
		return nil
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"name":    e.Name,
			"payload": payload,
		},
	}
	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", p.stream, err)
	}
	return nil
}
