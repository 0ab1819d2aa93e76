// Package pattern produces the block offsets an I/O workload targets.
// Each generator yields a lazy sequence of integers in [0, nblocks);
// the caller multiplies by the block size. Generators are deliberately
// cheap and deterministic: they sit on the per-I/O hot path, and a
// seeded run must replay the same offset sequence.
//
// Generators are not safe for concurrent use; each worker owns its own.
package pattern

import (
	"fmt"
	"math/rand"
)

// Generator produces the offset of the next I/O.
type Generator interface {
	// Next returns an offset in [0, nblocks).
	Next() uint64
	// Reset rewinds the generator to the start of its seeded sequence.
	Reset()
}

// New builds a generator by name. theta is the Zipf skew parameter and
// h the Pareto shape; each is consulted only by its own kind.
func New(kind string, nblocks uint64, theta, h float64, seed int64) (Generator, error) {
	switch kind {
	case "", "random":
		return NewUniform(nblocks, seed)
	case "sequential":
		return NewSequential(nblocks)
	case "zipf":
		return NewZipf(nblocks, theta, seed)
	case "pareto":
		return NewPareto(nblocks, h, seed)
	}
	return nil, fmt.Errorf("pattern: unknown access pattern %q", kind)
}

// Sequential walks the range in order and wraps.
type Sequential struct {
	nblocks uint64
	next    uint64
}

func NewSequential(nblocks uint64) (*Sequential, error) {
	if nblocks == 0 {
		return nil, fmt.Errorf("pattern: sequential range must be >= 1 block")
	}
	return &Sequential{nblocks: nblocks}, nil
}

func (s *Sequential) Next() uint64 {
	off := s.next
	s.next++
	if s.next == s.nblocks {
		s.next = 0
	}
	return off
}

func (s *Sequential) Reset() { s.next = 0 }

// Uniform draws offsets uniformly from the range, reproducibly for a
// given seed.
type Uniform struct {
	nblocks uint64
	seed    int64
	rng     *rand.Rand
}

func NewUniform(nblocks uint64, seed int64) (*Uniform, error) {
	if nblocks == 0 {
		return nil, fmt.Errorf("pattern: uniform range must be >= 1 block")
	}
	return &Uniform{nblocks: nblocks, seed: seed, rng: rand.New(rand.NewSource(seed))}, nil
}

func (u *Uniform) Next() uint64 {
	if u.nblocks == 1 {
		return 0
	}
	// Int63n rejects rather than taking a biased modulo.
	return uint64(u.rng.Int63n(int64(u.nblocks)))
}

func (u *Uniform) Reset() { u.rng = rand.New(rand.NewSource(u.seed)) }
