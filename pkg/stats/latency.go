package stats

import (
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

// Latency bounds, in microseconds. Anything above an hour is a hung
// device, not a latency sample.
const (
	latencyMin = 1
	latencyMax = 3600000000
)

// Latency records per-I/O completion latencies in microseconds.
// It is a thin wrapper around an HDR histogram so worker results can
// be merged without shipping every sample around.
type Latency struct {
	h *hdrhistogram.Histogram
}

func NewLatency() *Latency {
	return &Latency{h: hdrhistogram.New(latencyMin, latencyMax, 3)}
}

// Record adds one latency sample in microseconds. Out-of-range values
// are clamped by the histogram; we ignore the error it reports.
func (l *Latency) Record(us int64) {
	if us < latencyMin {
		us = latencyMin
	}
	_ = l.h.RecordValue(us)
}

func (l *Latency) Merge(other *Latency) {
	if other == nil || other.h.TotalCount() == 0 {
		return
	}
	l.h.Merge(other.h)
}

func (l *Latency) Count() int64 { return l.h.TotalCount() }

// Quantile returns the latency at quantile q, where q is in (0, 1].
func (l *Latency) Quantile(q float64) time.Duration {
	return time.Duration(l.h.ValueAtQuantile(q*100)) * time.Microsecond
}

func (l *Latency) Mean() time.Duration {
	return time.Duration(l.h.Mean()) * time.Microsecond
}

func (l *Latency) Max() time.Duration {
	return time.Duration(l.h.Max()) * time.Microsecond
}
