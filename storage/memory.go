package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/townsquare/mediastore/interfaces"
)

// MemoryBackend is an in-process storage backend for tests and
// single-process development runs.
type MemoryBackend struct {
	mu      sync.RWMutex
	name    string
	objects map[string]*interfaces.StorageObject
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(name string) *MemoryBackend {
	if name == "" {
		name = "memory"
	}
	return &MemoryBackend{
		name:    name,
		objects: make(map[string]*interfaces.StorageObject),
	}
}

func (b *MemoryBackend) Exists(ctx context.Context, key interfaces.CanonicalKey) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[key.FileID()]
	return ok, nil
}

func (b *MemoryBackend) Read(ctx context.Context, key interfaces.CanonicalKey) (*interfaces.StorageObject, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key.FileID()]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	out := *obj
	out.Data = append([]byte(nil), obj.Data...)
	return &out, nil
}

func (b *MemoryBackend) Write(ctx context.Context, key interfaces.CanonicalKey, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key.FileID()] = &interfaces.StorageObject{
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Backend:     b.name,
		Key:         key,
	}
	return nil
}

func (b *MemoryBackend) List(ctx context.Context, bucket interfaces.Bucket, fn interfaces.ListFunc) error {
	b.mu.RLock()
	keys := make([]interfaces.CanonicalKey, 0, len(b.objects))
	for _, obj := range b.objects {
		if obj.Key.Bucket == bucket {
			keys = append(keys, obj.Key)
		}
	}
	b.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].Path < keys[j].Path })
	for _, key := range keys {
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key interfaces.CanonicalKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key.FileID())
	return nil
}

func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

func (b *MemoryBackend) Name() string {
	return b.name
}

func (b *MemoryBackend) LocationURI() string {
	return "memory://" + b.name
}

// Len returns the number of stored objects.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
