package complaint

import (
	"context"
	"sync"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// Its contents live for the lifetime of the process.
// The zero value is ready to use.
type MemStore struct {
	mu        sync.RWMutex
	addresses map[string]string
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{addresses: make(map[string]string)}
}

// Exists implements [Store.Exists].
func (s *MemStore) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.addresses[name]
	return ok, nil
}

// Put implements [Store.Put].
func (s *MemStore) Put(_ context.Context, name, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addresses == nil {
		s.addresses = make(map[string]string)
	}
	s.addresses[name] = address
	return nil
}

// Address implements [Store.Address].
func (s *MemStore) Address(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.addresses[name]
	if !ok {
		return "", ErrNotFound
	}
	return addr, nil
}

// Len returns the number of stored complaints.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.addresses)
}

// Ping implements [Store.Ping]. It always succeeds.
func (s *MemStore) Ping(context.Context) error { return nil }

// Close implements [Store.Close]. It is a no-op.
func (s *MemStore) Close() error { return nil }
