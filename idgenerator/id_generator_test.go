package idgenerator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdGenerator(t *testing.T) {
	t.Run("first id follows the start value", func(t *testing.T) {
		gen := NewIdGenerator(100)
		require.NotNil(t, gen)
		assert.Equal(t, uint32(100), gen.Last())
		assert.Equal(t, uint32(101), gen.Id())
	})

	t.Run("zero start reserves zero", func(t *testing.T) {
		gen := NewIdGenerator(0)
		assert.Equal(t, uint32(1), gen.Id())
	})

	t.Run("wraps at max uint32", func(t *testing.T) {
		gen := NewIdGenerator(^uint32(0))
		assert.Equal(t, uint32(0), gen.Id())
	})
}

func TestIdGenerator_Last(t *testing.T) {
	gen := NewIdGenerator(0)
	for want := uint32(1); want <= 5; want++ {
		assert.Equal(t, want, gen.Id())
		assert.Equal(t, want, gen.Last())
	}
}

func TestIdGenerator_Concurrent(t *testing.T) {
	gen := NewIdGenerator(0)
	const n = 500

	ids := make([]uint32, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			ids[idx] = gen.Id()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint32]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		assert.GreaterOrEqual(t, id, uint32(1))
		assert.LessOrEqual(t, id, uint32(n))
		seen[id] = true
	}

	assert.Len(t, seen, n)
	assert.Equal(t, uint32(n), gen.Last())
}
