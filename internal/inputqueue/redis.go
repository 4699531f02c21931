// Package inputqueue reads still-image references for reconstruction from a
// Redis list, so stills can be queued by other processes while a trained
// run is waiting for input.
package inputqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// listClient is the subset of the Redis client the queue uses.
type listClient interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	Close() error
}

// RedisSource pops still-image paths or s3:// URIs from a Redis list.
type RedisSource struct {
	client  listClient
	queue   string
	timeout time.Duration
}

// Connect opens a Redis connection and verifies it with PING.
func Connect(ctx context.Context, addr, queue string, timeout time.Duration) (*RedisSource, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	log.Info().Str("addr", addr).Str("queue", queue).Msg("Connected to Redis input queue")
	return newRedisSource(client, queue, timeout), nil
}

func newRedisSource(client listClient, queue string, timeout time.Duration) *RedisSource {
	return &RedisSource{client: client, queue: queue, timeout: timeout}
}

// Next blocks for up to the configured timeout waiting for the next entry.
// An empty queue at the end of the wait is reported as io.EOF.
func (r *RedisSource) Next(ctx context.Context) (string, error) {
	res, err := r.client.BLPop(ctx, r.timeout, r.queue).Result()
	if errors.Is(err, redis.Nil) {
		log.Info().Str("queue", r.queue).Dur("timeout", r.timeout).Msg("Input queue idle, stopping")
		return "", io.EOF
	}
	if err != nil {
		return "", fmt.Errorf("error reading queue %s: %w", r.queue, err)
	}
	// BLPOP replies with [key, value].
	if len(res) != 2 {
		return "", fmt.Errorf("unexpected BLPOP reply from %s: %v", r.queue, res)
	}
	return res[1], nil
}

// Enqueue appends entries to the queue and returns its new length.
func (r *RedisSource) Enqueue(ctx context.Context, entries ...string) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	values := make([]any, len(entries))
	for i, e := range entries {
		values[i] = e
	}
	n, err := r.client.RPush(ctx, r.queue, values...).Result()
	if err != nil {
		return 0, fmt.Errorf("error adding to queue %s: %w", r.queue, err)
	}
	return n, nil
}

// Close closes the Redis connection.
func (r *RedisSource) Close() error {
	return r.client.Close()
}
