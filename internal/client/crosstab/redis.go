package crosstab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/geopresence/internal/logging"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier broadcasts signals over a Redis pub/sub channel as JSON.
// The redis client is owned by the caller.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	log     logging.Logger
}

func NewRedisNotifier(client *redis.Client, channel string, log logging.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, log: log}
}

func (n *RedisNotifier) Publish(ctx context.Context, s Signal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed by the server, so
// signals published afterwards are not lost.
func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan Signal, error) {
	ps := n.client.Subscribe(ctx, n.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}

	msgs := ps.Channel()
	out := make(chan Signal, defaultBuffer)

	go func() {
		defer close(out)
		defer ps.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var s Signal
				if err := json.Unmarshal([]byte(msg.Payload), &s); err != nil {
					n.log.Warn(ctx, "dropping malformed signal", "channel", n.channel, "error", err)
					continue
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (n *RedisNotifier) Close() error { return nil }
