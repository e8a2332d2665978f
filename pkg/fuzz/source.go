package fuzz

import (
	"encoding/binary"
	"math/rand/v2"
)

// Source is the seeded pseudorandom stream every generation decision draws
// from. Two sources built from the same seed yield the same sequence.
type Source struct {
	seed uint64
	rng  *rand.Rand
}

func NewSource(seed uint64) *Source {
	return &Source{
		seed: seed,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *Source) Seed() uint64 {
	return s.seed
}

func (s *Source) Uint64() uint64 {
	return s.rng.Uint64()
}

func (s *Source) Int64() int64 {
	return int64(s.rng.Uint64())
}

func (s *Source) Float64() float64 {
	return s.rng.Float64()
}

// Intn returns a value in [0, n). It returns 0 when n <= 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return s.rng.IntN(n)
}

// Between returns a value in [lo, hi], swapping the bounds if needed.
func (s *Source) Between(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + s.Intn(hi-lo+1)
}

// Chance reports true with probability p.
func (s *Source) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return s.rng.Float64() < p
}

// Read fills p from the stream so the source can feed io.Reader based
// constructors.
func (s *Source) Read(p []byte) (int, error) {
	var buf [8]byte
	for i := 0; i < len(p); i += 8 {
		binary.LittleEndian.PutUint64(buf[:], s.rng.Uint64())
		copy(p[i:], buf[:])
	}
	return len(p), nil
}
