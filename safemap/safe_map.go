// Package safemap provides a generic concurrent map on top of sync.Map.
package safemap

import "sync"

// SafeMap is a type-safe wrapper around sync.Map. The zero value is ready to
// use and it must not be copied after first use.
type SafeMap[K comparable, V any] struct {
	m sync.Map
}

// NewSafeMap returns an empty SafeMap.
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{}
}

// Store sets the value for k, replacing any previous value.
func (m *SafeMap[K, V]) Store(k K, v V) {
	m.m.Store(k, v)
}

// Load returns the value stored for k.
//
// Returns:
//   - The value, or the zero value of V if k is absent
//   - true if k was present
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	v, found := m.m.Load(k)
	if !found {
		var empty V
		return empty, false
	}

	return v.(V), true
}

// Delete removes k. Deleting a missing key is a no-op.
func (m *SafeMap[K, V]) Delete(k K) {
	m.m.Delete(k)
}

// Range calls f for each entry until f returns false. Entries stored or
// deleted concurrently may or may not be visited.
func (m *SafeMap[K, V]) Range(f func(k K, v V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

// Len counts the entries. It walks the whole map.
func (m *SafeMap[K, V]) Len() int {
	length := 0
	m.Range(func(K, V) bool {
		length++
		return true
	})

	return length
}

// Values returns the stored values in unspecified order.
func (m *SafeMap[K, V]) Values() []V {
	values := make([]V, 0)
	m.Range(func(_ K, v V) bool {
		values = append(values, v)
		return true
	})

	return values
}
