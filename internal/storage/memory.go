package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Memory keeps uploads in process.  Used for local runs
// (UPLOAD_BACKEND=memory) and tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemory() *Memory { return &Memory{objects: make(map[string][]byte)} }

func (m *Memory) Upload(_ context.Context, folder string, f File) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f.Body); err != nil {
		return "", err
	}
	key := objectKey(folder, f.Name)
	m.mu.Lock()
	m.objects[key] = buf.Bytes()
	m.mu.Unlock()
	return "memory://" + key, nil
}

// Get returns the stored bytes for a URL produced by Upload.
func (m *Memory) Get(url string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[url[len("memory://"):]]
	return b, ok
}

// Len reports how many objects are stored.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
