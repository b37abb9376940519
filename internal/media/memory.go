package media

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps uploads in process memory. The server uses it when no
// bucket is configured; tests use it in place of S3.
type MemoryStore struct {
	mu      sync.RWMutex
	files   map[string][]byte
	baseURL string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte), baseURL: baseURL}
}

func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	content, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	m.mu.Lock()
	m.files[key] = content
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) URL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	m.mu.RLock()
	_, ok := m.files[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("media %s not found", key)
	}
	return fmt.Sprintf("%s/%s", m.baseURL, key), nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.files, key)
	m.mu.Unlock()
	return nil
}

// Exists reports whether key has been stored.
func (m *MemoryStore) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[key]
	return ok
}
