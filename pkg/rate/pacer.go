// Package rate paces a workload against configured throughput targets.
// The pacer answers one question before every unit of work: issue now,
// sleep first, or give up because the workload has fallen through its
// rate floor.
package rate

import (
	"fmt"
	"time"

	"github.com/runningwild/thrash/pkg/clock"
)

// FloorError reports a window whose achieved throughput fell below the
// configured minimum. It is fatal to the owning workload: a benchmark
// that cannot hold its floor is producing misleading numbers.
type FloorError struct {
	Unit     string // "bytes" or "ops"
	Achieved uint64 // per second, averaged over the window
	Min      uint64
	Window   time.Duration
}

func (e *FloorError) Error() string {
	return fmt.Sprintf("rate: %s/sec %d below minimum %d over %v window", e.Unit, e.Achieved, e.Min, e.Window)
}

// Config carries the pacing targets for one workload. Zero values
// disable the corresponding mechanism.
type Config struct {
	BytesPerSec    uint64 // smooth toward this throughput
	MinBytesPerSec uint64 // abort if a full window averages below this
	OpsPerSec      uint64
	MinOpsPerSec   uint64
	Window         time.Duration // rate-averaging window, default 1s
	Think          time.Duration // fixed pause after every completion
}

// Pacer holds the pacing state for a single workload. It is owned by
// that workload and needs no locking; the only blocking it ever causes
// is the sleep the caller performs with the duration Gate returns.
type Pacer struct {
	clk *clock.Clock
	cfg Config

	started    bool
	start      clock.Time
	winStart   clock.Time
	winBytes   uint64
	winOps     uint64
	totalBytes uint64
	totalOps   uint64
}

func NewPacer(clk *clock.Clock, cfg Config) (*Pacer, error) {
	if clk == nil {
		return nil, fmt.Errorf("rate: pacer requires a clock")
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	// Floor accounting is done in whole milliseconds; a shorter window
	// would truncate to zero elapsed time.
	if cfg.Window < time.Millisecond {
		cfg.Window = time.Millisecond
	}
	if cfg.BytesPerSec > 0 && cfg.MinBytesPerSec > cfg.BytesPerSec {
		return nil, fmt.Errorf("rate: minimum %d bytes/sec exceeds target %d", cfg.MinBytesPerSec, cfg.BytesPerSec)
	}
	if cfg.OpsPerSec > 0 && cfg.MinOpsPerSec > cfg.OpsPerSec {
		return nil, fmt.Errorf("rate: minimum %d ops/sec exceeds target %d", cfg.MinOpsPerSec, cfg.OpsPerSec)
	}
	return &Pacer{clk: clk, cfg: cfg}, nil
}

// Gate decides whether the next unit of work may be issued. It returns
// the duration the caller must sleep first (zero to proceed
// immediately), or a *FloorError if the closing window violated the
// configured minimum. A violation is reported once per window: the
// window resets when it closes, violated or not.
func (p *Pacer) Gate() (time.Duration, error) {
	now := p.clk.Now()
	if !p.started {
		p.started = true
		p.start = now
		p.winStart = now
		return 0, nil
	}

	var floorErr error
	if elapsed := clock.MsecSince(p.winStart, now); elapsed >= p.cfg.Window.Milliseconds() {
		floorErr = p.checkFloor(uint64(elapsed))
		p.winStart = now
		p.winBytes = 0
		p.winOps = 0
	}
	if floorErr != nil {
		return 0, floorErr
	}

	// Smoothing: sleep out the gap between the time that should have
	// passed at the target rate for the work issued so far and the
	// time that actually has.
	// The ideal is computed in float64: a uint64 microsecond product
	// would wrap once tens of terabytes have been accounted.
	actual := clock.UsecSince(p.start, now)
	var delay int64
	if p.cfg.BytesPerSec > 0 {
		ideal := int64(float64(p.totalBytes) * 1e6 / float64(p.cfg.BytesPerSec))
		if d := ideal - actual; d > delay {
			delay = d
		}
	}
	if p.cfg.OpsPerSec > 0 {
		ideal := int64(float64(p.totalOps) * 1e6 / float64(p.cfg.OpsPerSec))
		if d := ideal - actual; d > delay {
			delay = d
		}
	}
	return time.Duration(delay) * time.Microsecond, nil
}

func (p *Pacer) checkFloor(elapsedMs uint64) error {
	if p.cfg.MinBytesPerSec > 0 {
		achieved := p.winBytes * 1000 / elapsedMs
		if achieved < p.cfg.MinBytesPerSec {
			return &FloorError{Unit: "bytes", Achieved: achieved, Min: p.cfg.MinBytesPerSec, Window: p.cfg.Window}
		}
	}
	if p.cfg.MinOpsPerSec > 0 {
		achieved := p.winOps * 1000 / elapsedMs
		if achieved < p.cfg.MinOpsPerSec {
			return &FloorError{Unit: "ops", Achieved: achieved, Min: p.cfg.MinOpsPerSec, Window: p.cfg.Window}
		}
	}
	return nil
}

// Complete accounts one finished unit of work and returns the
// thinktime pause to apply before the next Gate. Thinktime composes
// with the rate window but is computed independently of it.
func (p *Pacer) Complete(bytes int) time.Duration {
	p.totalBytes += uint64(bytes)
	p.totalOps++
	p.winBytes += uint64(bytes)
	p.winOps++
	return p.cfg.Think
}

// TotalBytes reports the bytes accounted so far.
func (p *Pacer) TotalBytes() uint64 { return p.totalBytes }

// TotalOps reports the operations accounted so far.
func (p *Pacer) TotalOps() uint64 { return p.totalOps }
