package kv

import (
	"context"
	"sync"
)

// MemoryRepository keeps pairs in process memory. It backs the ephemeral
// scope and stands in for a durable scope shared by tabs of one process.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[string][]byte)}
}

func (r *MemoryRepository) List(_ context.Context) (map[string][]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]byte, len(r.data))
	for k, v := range r.data {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (r *MemoryRepository) SetMany(_ context.Context, values map[string][]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range values {
		r.data[k] = append([]byte{}, v...)
	}
	return nil
}

func (r *MemoryRepository) SetIfPresent(_ context.Context, guard string, values map[string][]byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[guard]; !ok {
		return false, nil
	}
	for k, v := range values {
		r.data[k] = append([]byte{}, v...)
	}
	return true, nil
}

func (r *MemoryRepository) Delete(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range keys {
		delete(r.data, k)
	}
	return nil
}
