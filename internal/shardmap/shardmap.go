// Package shardmap provides a string-keyed concurrent map split across a
// fixed number of mutex-guarded shards. Operations on different keys only
// contend when the keys hash to the same shard; there is no map-wide lock.
package shardmap

import (
	"hash/fnv"
	"sync"
)

const defaultShardCount = 32

type Map[V any] struct {
	shards []*shard[V]
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

func New[V any]() *Map[V] {
	m := &Map[V]{shards: make([]*shard[V], defaultShardCount)}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.items[key]
	return value, ok
}

func (m *Map[V]) Set(key string, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

func (m *Map[V]) Delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Update applies fn to the current value of key under the shard lock. fn
// receives the value and whether it exists, and returns the replacement and
// whether the key should remain in the map. All read-modify-write sequences
// for a key serialize here.
func (m *Map[V]) Update(key string, fn func(value V, ok bool) (V, bool)) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	next, keep := fn(s.items[key], containsKey(s.items, key))
	if keep {
		s.items[key] = next
	} else {
		delete(s.items, key)
	}
}

// Range calls fn for every entry until fn returns false. Each shard is
// locked only while its own entries are visited; entries added or removed
// concurrently in other shards may or may not be seen.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for key, value := range s.items {
			if !fn(key, value) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Purge deletes every entry for which fn returns true and reports how many
// were removed.
func (m *Map[V]) Purge(fn func(key string, value V) bool) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for key, value := range s.items {
			if fn(key, value) {
				delete(s.items, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (m *Map[V]) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Keys returns a snapshot of all keys. The snapshot is consistent per shard,
// not across shards.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Len())
	m.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

func containsKey[V any](items map[string]V, key string) bool {
	_, ok := items[key]
	return ok
}
