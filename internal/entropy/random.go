// Package entropy provides the random source behind activity durations and
// processing outcomes. Seeded sources are reproducible; unseeded ones read
// crypto/rand.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	mrand "math/rand"
	"sync"
)

// Source yields uniform floats in [0, 1). Safe for concurrent use.
type Source struct {
	mu  sync.Mutex
	rng *mrand.Rand // nil = crypto/rand
}

// New returns a source backed by crypto/rand.
func New() *Source {
	return &Source{}
}

// NewSeeded returns a deterministic source.
func NewSeeded(seed int64) *Source {
	return &Source{rng: mrand.New(mrand.NewSource(seed))}
}

// FromSeed returns NewSeeded(seed), or New() when seed is zero.
func FromSeed(seed int64) *Source {
	if seed == 0 {
		return New()
	}
	return NewSeeded(seed)
}

// Float returns a random float64 in [0, 1).
func (s *Source) Float() float64 {
	if s == nil || s.rng == nil {
		return cryptoRandFloat()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Uniform returns a value in [lo, hi) rounded to one decimal place,
// matching how activity durations are quoted.
func (s *Source) Uniform(lo, hi float64) float64 {
	v := lo + s.Float()*(hi-lo)
	return math.Round(v*10) / 10
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}
