// Package queue carries keys discovered outside the authoritative object
// store toward the migration engine. Enqueueing is best-effort and
// duplicate-tolerant; the engine deduplicates against the ledger and the
// destination's own existence checks.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/townsquare/mediastore/interfaces"
)

// DefaultListKey is the Redis list the migration queue lives on.
const DefaultListKey = "mediastore:migration-queue"

// RedisQueue implements interfaces.MigrationQueue on a Redis list, so
// lazily-discovered work survives process restarts and is shared between
// the server and migration runs.
type RedisQueue struct {
	client  *redis.Client
	listKey string
	log     *slog.Logger
}

// NewRedisQueue creates a queue on the given Redis address.
func NewRedisQueue(ctx context.Context, addr, listKey string, log *slog.Logger) (*RedisQueue, error) {
	if listKey == "" {
		listKey = DefaultListKey
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return &RedisQueue{client: client, listKey: listKey, log: log}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, key interfaces.CanonicalKey) error {
	if err := q.client.LPush(ctx, q.listKey, key.FileID()).Err(); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", key.FileID(), err)
	}
	q.log.Debug("Enqueued file for migration", slog.String("fileID", key.FileID()))
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (interfaces.CanonicalKey, bool, error) {
	fileID, err := q.client.RPop(ctx, q.listKey).Result()
	if errors.Is(err, redis.Nil) {
		return interfaces.CanonicalKey{}, false, nil
	}
	if err != nil {
		return interfaces.CanonicalKey{}, false, fmt.Errorf("failed to dequeue: %w", err)
	}

	key, err := interfaces.ParseFileID(fileID)
	if err != nil {
		// Drop the malformed entry rather than wedging the queue.
		q.log.Warn("Dropping malformed queue entry", slog.String("fileID", fileID), "err", err)
		return interfaces.CanonicalKey{}, false, nil
	}
	return key, true, nil
}

// Len returns the number of queued files.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.listKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

func (q *RedisQueue) Name() string {
	return "redis-queue"
}

// Close releases the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
