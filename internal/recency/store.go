// Package recency provides a bounded key/value container ordered by last access.
package recency

import "container/list"

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Store is a fixed-capacity map that evicts the least recently touched key
// when a new key would exceed its capacity.
//
// The list front holds the oldest entry and the back the newest. Every
// operation is O(1). Store is not safe for concurrent use.
type Store[K comparable, V any] struct {
	capacity int
	order    *list.List
	index    map[K]*list.Element
}

// New creates a store holding at most capacity keys. A capacity below 1 is treated as 1.
func New[K comparable, V any](capacity int) *Store[K, V] {
	if capacity < 1 {
		capacity = 1
	}

	return &Store[K, V]{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[K]*list.Element, capacity),
	}
}

// Get returns the value for key and marks it as the most recently used.
func (s *Store[K, V]) Get(key K) (V, bool) {
	el, ok := s.index[key]
	if !ok {
		var zero V

		return zero, false
	}

	s.order.MoveToBack(el)

	return el.Value.(*entry[K, V]).value, true
}

// Set stores value under key as the most recently used entry, evicting the
// oldest entry first when key is new and the store is full.
func (s *Store[K, V]) Set(key K, value V) {
	if el, ok := s.index[key]; ok {
		el.Value.(*entry[K, V]).value = value
		s.order.MoveToBack(el)

		return
	}

	if s.order.Len() >= s.capacity {
		s.EvictOldest()
	}

	s.index[key] = s.order.PushBack(&entry[K, V]{key: key, value: value})
}

// EvictOldest removes the least recently used entry. It does nothing on an empty store.
func (s *Store[K, V]) EvictOldest() {
	el := s.order.Front()
	if el == nil {
		return
	}

	s.order.Remove(el)
	delete(s.index, el.Value.(*entry[K, V]).key)
}

// Clear removes all entries.
func (s *Store[K, V]) Clear() {
	s.order.Init()
	clear(s.index)
}

// Len returns the number of stored keys.
func (s *Store[K, V]) Len() int {
	return s.order.Len()
}

// Cap returns the maximum number of keys the store retains.
func (s *Store[K, V]) Cap() int {
	return s.capacity
}

// Keys returns the stored keys from least to most recently used.
func (s *Store[K, V]) Keys() []K {
	keys := make([]K, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}

	return keys
}
