package companion

import (
	"sort"
	"strings"
	"sync"
)

// MemoryStore is the pluggable key-ordered storage backend for the core.
//
// All data is organized by namespace (typically a user ID, or a shared
// bucket like "reminders") and key. Implementations must keep ScanPrefix
// results sorted by key so that time-prefixed keys come back in order.
type MemoryStore interface {
	// KV operations
	Get(namespace, key string) (string, error)
	Set(namespace, key, value string) error
	Delete(namespace, key string) error
	// ScanPrefix returns all keys in the namespace with the given prefix,
	// sorted ascending. An empty prefix returns every key.
	ScanPrefix(namespace, prefix string) ([]string, error)

	// List operations (ordered sequences for chat history, memos)
	Append(namespace, key, value string) error
	GetList(namespace, key string, limit int) ([]string, error)
	TrimList(namespace, key string, maxSize int) error
	ListLength(namespace, key string) (int, error)
}

// InMemoryMemoryStore is a thread-safe in-memory MemoryStore for development
// and tests. Data is lost on restart.
type InMemoryMemoryStore struct {
	mu    sync.RWMutex
	kv    map[string]map[string]string
	lists map[string]map[string][]string
}

// NewInMemoryMemoryStore creates a new in-memory store.
func NewInMemoryMemoryStore() *InMemoryMemoryStore {
	return &InMemoryMemoryStore{
		kv:    make(map[string]map[string]string),
		lists: make(map[string]map[string][]string),
	}
}

func (s *InMemoryMemoryStore) Get(namespace, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ns, ok := s.kv[namespace]; ok {
		return ns[key], nil
	}
	return "", nil
}

func (s *InMemoryMemoryStore) Set(namespace, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kv[namespace] == nil {
		s.kv[namespace] = make(map[string]string)
	}
	s.kv[namespace][key] = value
	return nil
}

func (s *InMemoryMemoryStore) Delete(namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.kv[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

func (s *InMemoryMemoryStore) ScanPrefix(namespace, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	if ns, ok := s.kv[namespace]; ok {
		for k := range ns {
			if prefix == "" || strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *InMemoryMemoryStore) Append(namespace, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lists[namespace] == nil {
		s.lists[namespace] = make(map[string][]string)
	}
	s.lists[namespace][key] = append(s.lists[namespace][key], value)
	return nil
}

// GetList returns the last `limit` items in insertion order (oldest first).
// limit <= 0 returns everything.
func (s *InMemoryMemoryStore) GetList(namespace, key string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []string
	if ns, ok := s.lists[namespace]; ok {
		items = ns[key]
	}
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	result := make([]string, len(items))
	copy(result, items)
	return result, nil
}

func (s *InMemoryMemoryStore) TrimList(namespace, key string, maxSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.lists[namespace]; ok {
		if lst, ok := ns[key]; ok && len(lst) > maxSize {
			trimmed := make([]string, maxSize)
			copy(trimmed, lst[len(lst)-maxSize:])
			ns[key] = trimmed
		}
	}
	return nil
}

func (s *InMemoryMemoryStore) ListLength(namespace, key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ns, ok := s.lists[namespace]; ok {
		return len(ns[key]), nil
	}
	return 0, nil
}
