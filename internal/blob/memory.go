package blob

import (
	"context"
	"sync"
)

type object struct {
	data        []byte
	contentType string
}

// Memory is an in-process Store used when no NATS server is configured.
// Its contents are lost on restart.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]object)}
}

func (m *Memory) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = defaultContentType
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.objects[key] = object{data: buf, contentType: contentType}
	m.mu.Unlock()

	return key, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, string, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()

	if !ok {
		return nil, "", ErrNotFound
	}
	return obj.data, obj.contentType, nil
}
