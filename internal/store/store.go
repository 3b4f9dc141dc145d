// Package store holds the in-memory result store a batch run collects
// into. Workers write concurrently, so every access is lock-guarded.
package store

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("no entry for key")

// Store is a mutex-guarded map. Keys are expected to be written exactly
// once per run; a second write for the same key overwrites the first,
// which keeps requeued work units idempotent.
type Store[K comparable, T any] struct {
	lock    sync.RWMutex
	entries map[K]T
}

func New[K comparable, T any]() *Store[K, T] {
	return &Store[K, T]{entries: make(map[K]T)}
}

func (s *Store[K, T]) Set(k K, t T) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.entries[k] = t
}

func (s *Store[K, T]) Get(k K) (T, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	t, ok := s.entries[k]
	if !ok {
		return t, errors.Wrapf(ErrNotFound, "%v", k)
	}
	return t, nil
}

func (s *Store[K, T]) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.entries)
}

// Snapshot copies the current entries into a plain map, detached from
// the lock.
func (s *Store[K, T]) Snapshot() map[K]T {
	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make(map[K]T, len(s.entries))
	for k, t := range s.entries {
		out[k] = t
	}
	return out
}

// SortedKeys returns the stored keys in the order given by less.
func (s *Store[K, T]) SortedKeys(less func(a, b K) bool) []K {
	s.lock.RLock()
	defer s.lock.RUnlock()

	keys := make([]K, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}
