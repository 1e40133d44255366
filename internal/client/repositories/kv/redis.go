package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRepository stores the scope as fields of one Redis hash, so every
// client pointed at the same key shares it.
type RedisRepository struct {
	client *redis.Client
	key    string
}

// NewRedisRepository uses the hash at key.
func NewRedisRepository(client *redis.Client, key string) *RedisRepository {
	return &RedisRepository{client: client, key: key}
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (r *RedisRepository) List(ctx context.Context) (map[string][]byte, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.key, err)
	}

	out := make(map[string][]byte, len(values))
	for k, v := range values {
		out[k] = []byte(v)
	}
	return out, nil
}

// watchRetries bounds optimistic transactions that lost a race with another
// writer of the hash.
const watchRetries = 5

func hashFields(values map[string][]byte) map[string]any {
	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[k] = v
	}
	return fields
}

func (r *RedisRepository) SetMany(ctx context.Context, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}

	// A single HSET is atomic for all fields.
	if err := r.client.HSet(ctx, r.key, hashFields(values)).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", r.key, err)
	}
	return nil
}

// SetIfPresent watches the hash, checks guard and writes in MULTI/EXEC, so a
// concurrent HDEL of the guard aborts the write. Aborted attempts are retried.
func (r *RedisRepository) SetIfPresent(ctx context.Context, guard string, values map[string][]byte) (bool, error) {
	var wrote bool
	txf := func(tx *redis.Tx) error {
		wrote = false
		ok, err := tx.HExists(ctx, r.key, guard).Result()
		if err != nil || !ok {
			return err
		}
		if len(values) > 0 {
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, r.key, hashFields(values))
				return nil
			})
			if err != nil {
				return err
			}
		}
		wrote = true
		return nil
	}

	for i := 0; i < watchRetries; i++ {
		err := r.client.Watch(ctx, txf, r.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to update %s: %w", r.key, err)
		}
		return wrote, nil
	}
	return false, fmt.Errorf("failed to update %s: %w", r.key, redis.TxFailedErr)
}

func (r *RedisRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.key, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", r.key, err)
	}
	return nil
}
