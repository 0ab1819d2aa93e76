package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunning(t *testing.T) {
	var r Running
	for _, x := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		r.Add(x)
	}
	assert.Equal(t, int64(8), r.Count())
	assert.InDelta(t, 5.0, r.Mean(), 1e-9)
	assert.InDelta(t, 2.13809, r.StdDev(), 1e-4)
	assert.InDelta(t, 2.13809/2.828427, r.StdErr(), 1e-4)
}

func TestRunningDegenerate(t *testing.T) {
	var r Running
	assert.Zero(t, r.Mean())
	assert.Zero(t, r.StdDev())
	assert.Zero(t, r.RelErr())

	r.Add(3)
	assert.InDelta(t, 3.0, r.Mean(), 1e-9)
	assert.Zero(t, r.StdDev())
}

func TestRunningConstantSamples(t *testing.T) {
	var r Running
	for i := 0; i < 100; i++ {
		r.Add(42)
	}
	assert.InDelta(t, 42.0, r.Mean(), 1e-9)
	assert.InDelta(t, 0.0, r.StdDev(), 1e-9)
	assert.Zero(t, r.RelErr())
}

func TestLatencyRecordAndQuantile(t *testing.T) {
	l := NewLatency()
	for us := int64(1); us <= 1000; us++ {
		l.Record(us)
	}
	assert.Equal(t, int64(1000), l.Count())

	p50 := l.Quantile(0.50)
	assert.InDelta(t, 500, float64(p50/time.Microsecond), 10)
	p99 := l.Quantile(0.99)
	assert.InDelta(t, 990, float64(p99/time.Microsecond), 10)
	assert.GreaterOrEqual(t, l.Max(), p99)
}

func TestLatencyMerge(t *testing.T) {
	a := NewLatency()
	b := NewLatency()
	for i := 0; i < 100; i++ {
		a.Record(100)
		b.Record(900)
	}

	a.Merge(b)
	assert.Equal(t, int64(200), a.Count())
	mean := a.Mean()
	assert.InDelta(t, 500, float64(mean/time.Microsecond), 10)

	// Merging an empty histogram is a no-op.
	before := a.Count()
	a.Merge(NewLatency())
	a.Merge(nil)
	assert.Equal(t, before, a.Count())
}

func TestLatencyClampsLowValues(t *testing.T) {
	l := NewLatency()
	l.Record(0)
	l.Record(-5)
	assert.Equal(t, int64(2), l.Count())
}
