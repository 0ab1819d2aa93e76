package pattern

import (
	"fmt"
	"math"
	"math/rand"
)

// Pareto approximates a bounded power-law distribution over the
// range: a single uniform draw raised to a fixed exponent derived from
// the shape parameter h, concentrating accesses near offset 0.
type Pareto struct {
	nblocks uint64
	pow     float64
	seed    int64
	rng     *rand.Rand
}

// NewPareto requires 0 < h < 1; the exponent log(h)/log(1-h) is
// undefined outside that interval.
func NewPareto(nblocks uint64, h float64, seed int64) (*Pareto, error) {
	if nblocks == 0 {
		return nil, fmt.Errorf("pattern: pareto range must be >= 1 block")
	}
	if math.IsNaN(h) || h <= 0 || h >= 1 {
		return nil, fmt.Errorf("pattern: pareto shape must be in (0, 1), got %v", h)
	}
	return &Pareto{
		nblocks: nblocks,
		pow:     math.Log(h) / math.Log(1.0-h),
		seed:    seed,
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

func (p *Pareto) Next() uint64 {
	if p.nblocks == 1 {
		return 0
	}
	u := p.rng.Float64()
	off := uint64(float64(p.nblocks) * math.Pow(u, p.pow))
	if off >= p.nblocks {
		off = p.nblocks - 1
	}
	return off
}

func (p *Pareto) Reset() { p.rng = rand.New(rand.NewSource(p.seed)) }
