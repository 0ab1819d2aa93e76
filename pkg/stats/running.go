package stats

import "math"

// Running accumulates a mean and standard deviation incrementally
// using Welford's update, so it stays numerically stable even when
// samples are large and close together (e.g. cycle counts).
type Running struct {
	n    int64
	mean float64
	m2   float64
}

func (r *Running) Add(x float64) {
	r.n++
	delta := x - r.mean
	r.mean += delta / float64(r.n)
	r.m2 += delta * (x - r.mean)
}

func (r *Running) Count() int64 { return r.n }

func (r *Running) Mean() float64 { return r.mean }

func (r *Running) StdDev() float64 {
	if r.n < 2 {
		return 0
	}
	return math.Sqrt(r.m2 / float64(r.n-1))
}

// StdErr is the standard error of the mean.
func (r *Running) StdErr() float64 {
	if r.n < 1 {
		return 0
	}
	return r.StdDev() / math.Sqrt(float64(r.n))
}

// RelErr is StdErr relative to the mean, used as a convergence
// signal by the engine monitor loops. Returns 0 for a zero mean.
func (r *Running) RelErr() float64 {
	if r.mean == 0 {
		return 0
	}
	return r.StdErr() / r.mean
}
