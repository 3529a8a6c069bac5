package queue

import (
	"context"
	"log/slog"

	"github.com/townsquare/mediastore/interfaces"
)

const memoryQueueDepth = 1024

// MemoryQueue is an in-process migration queue for tests and
// single-process runs. When full, Enqueue drops the key with a warning;
// lazy self-healing work is rediscovered on the next resolve.
type MemoryQueue struct {
	ch  chan interfaces.CanonicalKey
	log *slog.Logger
}

// NewMemoryQueue creates a bounded in-memory queue.
func NewMemoryQueue(log *slog.Logger) *MemoryQueue {
	return &MemoryQueue{
		ch:  make(chan interfaces.CanonicalKey, memoryQueueDepth),
		log: log,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, key interfaces.CanonicalKey) error {
	select {
	case q.ch <- key:
	default:
		q.log.Warn("Migration queue full, dropping key", slog.String("fileID", key.FileID()))
	}
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (interfaces.CanonicalKey, bool, error) {
	select {
	case key := <-q.ch:
		return key, true, nil
	default:
		return interfaces.CanonicalKey{}, false, nil
	}
}

func (q *MemoryQueue) Name() string {
	return "memory-queue"
}

// Len returns the number of queued files.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}
