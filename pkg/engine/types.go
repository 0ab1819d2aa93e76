package engine

import (
	"fmt"
	"time"

	"github.com/runningwild/thrash/pkg/clock"
	"github.com/runningwild/thrash/pkg/config"
	"github.com/runningwild/thrash/pkg/pattern"
	"github.com/runningwild/thrash/pkg/rate"
)

// Params defines one I/O workload.
type Params struct {
	EngineType string        // "sync", "uring", or "libaio"
	Path       string        // Device or file to hit
	BlockSize  int           // Size of each I/O in bytes
	Direct     bool          // Use O_DIRECT
	ReadPct    int           // 0-100; 100 = pure read
	Workers    int           // Concurrent workers
	QueueDepth int           // Total in-flight I/Os across workers
	Runtime    time.Duration // How long to run

	// Where each I/O lands.
	Pattern      string  // "sequential", "random", "zipf", "pareto"
	Theta        float64 // zipf skew
	ParetoH      float64 // pareto shape
	RandomRepeat bool    // reuse Seed so runs replay the same offsets
	Seed         int64

	// When each I/O may be issued. Per-second rates, zero disables.
	Rate        uint64 // bytes/sec target
	RateMin     uint64 // bytes/sec floor, fatal when violated
	RateIOPS    uint64
	RateMinIOPS uint64
	RateCycle   time.Duration // rate-averaging window
	Thinktime   time.Duration // pause after every completion

	ClockSource string // "monotonic", "wall", "cycles"

	// ClockObserver, when set, is invoked on every clock query. Local
	// instrumentation only; never serialized.
	ClockObserver func() `json:"-"`
}

// FromConfig flattens a loaded config into engine params.
func FromConfig(cfg *config.Config) Params {
	w := cfg.Workload
	return Params{
		EngineType:   w.EngineType,
		Path:         cfg.Target,
		BlockSize:    w.BlockSize,
		Direct:       w.Direct,
		ReadPct:      w.ReadPct,
		Workers:      w.Workers,
		QueueDepth:   w.QueueDepth,
		Runtime:      w.Runtime,
		Pattern:      w.Pattern,
		Theta:        w.Theta,
		ParetoH:      w.ParetoH,
		RandomRepeat: w.RandomRepeat,
		Seed:         w.Seed,
		Rate:         w.Rate,
		RateMin:      w.RateMin,
		RateIOPS:     w.RateIOPS,
		RateMinIOPS:  w.RateMinIOPS,
		RateCycle:    w.RateCycle,
		Thinktime:    w.Thinktime,
		ClockSource:  w.ClockSource,
	}
}

// Result contains the metrics for one run.
type Result struct {
	IOPS              float64
	Throughput        float64 // bytes per second
	MeanLatency       time.Duration
	P50Latency        time.Duration
	P99Latency        time.Duration
	MaxLatency        time.Duration
	TotalIOs          int64
	Duration          time.Duration
	MetricConfidence  float64 // relative std error of the IOPS samples
	TerminationReason string
}

// Engine runs a workload to completion.
type Engine interface {
	Run(params Params) (*Result, error)
}

// New selects an engine implementation by name, defaulting to sync.
func New(kind string) Engine {
	switch kind {
	case "uring":
		return NewUring()
	case "libaio":
		return NewLibAIO()
	default:
		return NewSync()
	}
}

// newClock builds the shared per-run clock from the params. All
// workers in a run query the same clock, so its monotonic clamp holds
// across them.
func newClock(params Params) (*clock.Clock, error) {
	src, err := clock.ParseSource(params.ClockSource)
	if err != nil {
		return nil, err
	}
	var opts []clock.Option
	if params.ClockObserver != nil {
		opts = append(opts, clock.WithObserver(params.ClockObserver))
	}
	return clock.New(src, opts...)
}

// generator builds the per-worker offset generator. Without
// random_repeat each run gets a fresh time-derived seed; with it, the
// seed is stable and offset by worker id so identical runs replay
// identical offset sequences.
func (p Params) generator(nblocks int64, worker int) (pattern.Generator, error) {
	if nblocks <= 0 {
		return nil, fmt.Errorf("engine: file too small for block size %d", p.BlockSize)
	}
	seed := p.Seed
	if !p.RandomRepeat && seed == 0 {
		seed = time.Now().UnixNano()
	}
	return pattern.New(p.Pattern, uint64(nblocks), p.Theta, p.ParetoH, seed+int64(worker))
}

// pacer builds the per-worker pacer, or nil when no pacing is
// configured. Rates are split evenly across workers, the same way the
// cluster engine splits them across nodes.
func (p Params) pacer(clk *clock.Clock, workers int) (*rate.Pacer, error) {
	if p.Rate == 0 && p.RateMin == 0 && p.RateIOPS == 0 && p.RateMinIOPS == 0 && p.Thinktime == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = 1
	}
	split := func(v uint64) uint64 {
		if v == 0 {
			return 0
		}
		if per := v / uint64(workers); per > 0 {
			return per
		}
		return 1
	}
	return rate.NewPacer(clk, rate.Config{
		BytesPerSec:    split(p.Rate),
		MinBytesPerSec: split(p.RateMin),
		OpsPerSec:      split(p.RateIOPS),
		MinOpsPerSec:   split(p.RateMinIOPS),
		Window:         p.RateCycle,
		Think:          p.Thinktime,
	})
}
