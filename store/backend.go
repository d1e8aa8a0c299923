package store

import (
	"sync"
)

// Backend is the durable key/value storage behind a Store. Every Load
// reads through to the underlying medium so stores opened by other
// processes observe each other's writes.
type Backend interface {
	// Load returns the record for key, or nil, nil if none exists
	Load(key string) ([]byte, error)

	// Save replaces the record for key
	Save(key string, data []byte) error

	// Delete removes the record for key
	Delete(key string) error

	// Close releases any resources held by the backend
	Close() error
}

// MemoryBackend is an in-process Backend for tests. Two stores opened on the
// same MemoryBackend behave like two tabs sharing one storage origin.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string][]byte)}
}

func (m *MemoryBackend) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBackend) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
