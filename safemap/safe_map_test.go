package safemap

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSafeMap(t *testing.T) {
	m := NewSafeMap[uint32, string]()
	require.NotNil(t, m)
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Values())
}

func TestSafeMap_Store_Load_Delete(t *testing.T) {
	m := NewSafeMap[uint32, string]()

	t.Run("load after store", func(t *testing.T) {
		m.Store(1, "10.0.0.2:5000")
		v, ok := m.Load(1)
		assert.True(t, ok)
		assert.Equal(t, "10.0.0.2:5000", v)
	})

	t.Run("store overwrites", func(t *testing.T) {
		m.Store(1, "10.0.0.3:5000")
		v, _ := m.Load(1)
		assert.Equal(t, "10.0.0.3:5000", v)
	})

	t.Run("missing key returns zero value", func(t *testing.T) {
		v, ok := m.Load(99)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("delete removes key and tolerates missing keys", func(t *testing.T) {
		m.Delete(1)
		m.Delete(42)
		_, ok := m.Load(1)
		assert.False(t, ok)
		assert.Equal(t, 0, m.Len())
	})
}

func TestSafeMap_Range_Values(t *testing.T) {
	m := NewSafeMap[uint32, int]()
	for i := uint32(1); i <= 3; i++ {
		m.Store(i, int(i)*10)
	}

	t.Run("values returns every entry", func(t *testing.T) {
		values := m.Values()
		sort.Ints(values)
		assert.Equal(t, []int{10, 20, 30}, values)
	})

	t.Run("range stops when f returns false", func(t *testing.T) {
		calls := 0
		m.Range(func(uint32, int) bool {
			calls++
			return false
		})
		assert.Equal(t, 1, calls)
	})
}

func TestSafeMap_Concurrent(t *testing.T) {
	m := NewSafeMap[int, int]()
	const goroutines = 50
	const ops = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < ops; i++ {
				key := id*ops + i
				m.Store(key, key)
				m.Load(key)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, goroutines*ops, m.Len())
	assert.Len(t, m.Values(), goroutines*ops)
}
