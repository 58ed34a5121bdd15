package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory. It backs the "memory"
// backend for local development and is the store used by handler tests.
type MemoryStore struct {
	mu         sync.Mutex
	objects    map[string]memoryObject
	storeError error
	storeCalls int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
	}
}

func (m *MemoryStore) Store(ctx context.Context, key string, content io.Reader, size int64, contentType string) error {
	m.mu.Lock()
	m.storeCalls++
	storeErr := m.storeError
	m.mu.Unlock()

	if storeErr != nil {
		return newObjectError("store", "memory", key, storeErr)
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return newObjectError("store", "memory", key, err)
	}
	if err := ctx.Err(); err != nil {
		return newObjectError("store", "memory", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	return nil
}

func (m *MemoryStore) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, newObjectError("fetch", "memory", key, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// Object returns the stored bytes and content type for key.
func (m *MemoryStore) Object(key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj.data, obj.contentType, ok
}

// Keys returns every stored key in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// StoreCalls reports how many times Store was invoked, including failures.
func (m *MemoryStore) StoreCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeCalls
}

// SetStoreError makes every following Store call fail with err.
func (m *MemoryStore) SetStoreError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeError = err
}
