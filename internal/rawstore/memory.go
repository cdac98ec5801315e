package rawstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Memory stores artifacts in-memory. Used in tests and dry runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Put keeps a copy of the content and returns a mem:// URI.
func (s *Memory) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	return "mem://" + path, nil
}

// Get returns the stored content for a mem:// URI.
func (s *Memory) Get(_ context.Context, uri string) ([]byte, error) {
	path, ok := strings.CutPrefix(uri, "mem://")
	if !ok {
		return nil, fmt.Errorf("not a memory URI: %s", uri)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", uri)
	}
	return append([]byte(nil), data...), nil
}

// Len reports how many blobs are stored.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
