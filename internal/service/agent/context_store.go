package agent

import (
	"sort"
	"sync"
)

// ContextStore is a per-session key/value map. Keys collide by overwrite; there is no expiry.
type ContextStore struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewContextStore() *ContextStore {
	return &ContextStore{values: make(map[string]any)}
}

func (s *ContextStore) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

func (s *ContextStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

// Keys 返回排序后的键列表。
func (s *ContextStore) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}
