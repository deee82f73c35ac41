package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory only.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string][]byte
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, unavailable("get", ErrClosed)
	}
	v, ok := s.items[key]
	return cloneBytes(v), ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("put", ErrClosed)
	}
	s.items[key] = cloneBytes(value)
	return nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, key string, value []byte) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, unavailable("put_if_absent", ErrClosed)
	}
	if existing, ok := s.items[key]; ok {
		return cloneBytes(existing), false, nil
	}
	s.items[key] = cloneBytes(value)
	return cloneBytes(value), true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("delete", ErrClosed)
	}
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = nil
	return nil
}
