package pattern

import (
	"fmt"
	"math"
	"math/rand"
)

// Zipf draws offsets following a Zipf law: offset 0 is the most
// popular, with popularity falling off as 1/rank^theta. theta == 0 is
// uniform; larger theta concentrates harder on the low offsets.
//
// Sampling uses rejection-inversion over the precomputed partial zeta
// sums, so no CDF table is materialized no matter how large the range
// is. Initialization is O(nblocks) for the zeta sum; for very large
// ranges combined with theta near 1 the sum converges slowly and the
// realized skew can drift from the ideal law.
type Zipf struct {
	nblocks uint64
	theta   float64
	zetan   float64
	zeta2   float64
	// Derived constants for the inversion step.
	alpha, eta, halfPow float64

	seed int64
	rng  *rand.Rand
}

// NewZipf validates the parameter domain up front so a misconfigured
// generator fails at setup, not mid-run. theta must be >= 0 and != 1
// (the inversion exponent 1/(1-theta) is singular at 1).
func NewZipf(nblocks uint64, theta float64, seed int64) (*Zipf, error) {
	if nblocks == 0 {
		return nil, fmt.Errorf("pattern: zipf range must be >= 1 block")
	}
	if math.IsNaN(theta) || math.IsInf(theta, 0) || theta < 0 {
		return nil, fmt.Errorf("pattern: zipf theta must be a finite value >= 0, got %v", theta)
	}
	if theta == 1.0 {
		return nil, fmt.Errorf("pattern: zipf theta must be different from 1.0")
	}

	z := &Zipf{
		nblocks: nblocks,
		theta:   theta,
		seed:    seed,
		rng:     rand.New(rand.NewSource(seed)),
	}
	z.zetan = zeta(nblocks, theta)
	z.zeta2 = zeta(2, theta)
	z.alpha = 1.0 / (1.0 - theta)
	z.eta = (1.0 - math.Pow(2.0/float64(nblocks), 1.0-theta)) / (1.0 - z.zeta2/z.zetan)
	z.halfPow = 1.0 + math.Pow(0.5, theta)
	return z, nil
}

// zeta computes the partial sum of 1/i^theta for i in [1, n].
func zeta(n uint64, theta float64) float64 {
	var sum float64
	for i := uint64(1); i <= n; i++ {
		sum += math.Pow(1.0/float64(i), theta)
	}
	return sum
}

func (z *Zipf) Next() uint64 {
	if z.nblocks == 1 {
		return 0
	}
	if z.theta == 0 {
		return uint64(z.rng.Int63n(int64(z.nblocks)))
	}

	u := z.rng.Float64()
	uz := u * z.zetan

	var val uint64
	switch {
	case uz < 1.0:
		val = 1
	case uz < z.halfPow:
		val = 2
	default:
		val = 1 + uint64(float64(z.nblocks)*math.Pow(z.eta*u-z.eta+1.0, z.alpha))
	}
	return (val - 1) % z.nblocks
}

func (z *Zipf) Reset() { z.rng = rand.New(rand.NewSource(z.seed)) }
