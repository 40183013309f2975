// Package idgenerator issues sequential session identifiers.
package idgenerator

import "sync/atomic"

// IdGenerator hands out increasing uint32 ids and is safe for concurrent use.
// Zero is never issued by a generator started at 0, so callers can use it to
// mean "no session".
type IdGenerator struct {
	id atomic.Uint32
}

// NewIdGenerator returns a generator whose first Id is startValue+1.
//
// Parameters:
//   - startValue: The value preceding the first issued id
//
// Returns:
//   - A new IdGenerator
func NewIdGenerator(startValue uint32) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id issues the next id.
func (g *IdGenerator) Id() uint32 {
	return g.id.Add(1)
}

// Last returns the most recently issued id, or the start value if Id has not
// been called yet.
func (g *IdGenerator) Last() uint32 {
	return g.id.Load()
}
