package clock

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Source selects the underlying time source a Clock reads from.
type Source int

const (
	// SourceMonotonic reads clock_gettime(CLOCK_MONOTONIC).
	SourceMonotonic Source = iota
	// SourceWall reads gettimeofday.
	SourceWall
	// SourceCycles reads the hardware cycle counter, converted to wall
	// units through a constant calibrated once at Clock construction.
	SourceCycles
)

func (s Source) String() string {
	switch s {
	case SourceMonotonic:
		return "monotonic"
	case SourceWall:
		return "wall"
	case SourceCycles:
		return "cycles"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

func ParseSource(name string) (Source, error) {
	switch strings.ToLower(name) {
	case "", "monotonic", "clock":
		return SourceMonotonic, nil
	case "wall", "gtod":
		return SourceWall, nil
	case "cycles", "cpu", "tsc":
		return SourceCycles, nil
	}
	return 0, fmt.Errorf("unknown clock source %q", name)
}

// Time is an instant with microsecond resolution. Two Times from the
// same Clock can be compared and subtracted; Times from different
// clocks (or fixed test times) only make sense through the clamped
// elapsed helpers.
type Time struct {
	Sec  int64
	Usec int64
}

// Before reports whether t is strictly earlier than u.
func (t Time) Before(u Time) bool {
	return t.Sec < u.Sec || (t.Sec == u.Sec && t.Usec < u.Usec)
}

// Clock hands out non-decreasing Times from a configured source.
// The last-returned stamp is clock state, not process state: tests and
// independent workload groups can hold separate Clocks. A Clock is
// safe for concurrent use; the clamp is serialized by a mutex.
type Clock struct {
	source   Source
	observer func()

	mu            sync.Mutex
	fixed         *Time
	last          Time
	lastValid     bool
	lastCycles    uint64
	cyclesPerUsec uint64
}

type Option func(*Clock)

// WithObserver attaches a hook invoked on every Now call. It is an
// instrumentation side channel (e.g. counting clock queries from a hot
// loop); it must be cheap and must not call back into the Clock.
func WithObserver(fn func()) Option {
	return func(c *Clock) { c.observer = fn }
}

// New builds a Clock for the given source. Selecting SourceCycles runs
// the one-time cycle calibration, which busy-polls for roughly 100
// microseconds; do it once at startup, before workloads spin up.
func New(source Source, opts ...Option) (*Clock, error) {
	c := &Clock{source: source}
	for _, o := range opts {
		o(c)
	}
	if source == SourceCycles {
		cpu, err := calibrate()
		if err != nil {
			return nil, err
		}
		c.cyclesPerUsec = cpu
	}
	return c, nil
}

// CyclesPerUsec exposes the calibration constant, zero unless the
// clock was built with SourceCycles.
func (c *Clock) CyclesPerUsec() uint64 { return c.cyclesPerUsec }

// Now returns the current time, never earlier than any Time this Clock
// has already returned. A raw reading that regresses (unsynchronized
// TSC across cores, NTP stepping the wall clock) is clamped to the
// last returned stamp rather than surfaced.
func (c *Clock) Now() Time {
	if c.observer != nil {
		c.observer()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fixed != nil {
		return *c.fixed
	}

	t := c.read()

	if c.lastValid {
		if t.Sec < c.last.Sec {
			logrus.Debugf("clock: %s source went backwards (%d.%06d < %d.%06d)",
				c.source, t.Sec, t.Usec, c.last.Sec, c.last.Usec)
			t = c.last
		} else if t.Sec == c.last.Sec && t.Usec < c.last.Usec {
			t.Usec = c.last.Usec
		}
	}
	c.lastValid = true
	c.last = t
	return t
}

// read performs the raw source read. Caller holds c.mu.
func (c *Clock) read() Time {
	switch c.source {
	case SourceWall:
		var tv unix.Timeval
		if err := unix.Gettimeofday(&tv); err != nil {
			logrus.Fatalf("clock: gettimeofday failed: %v", err)
		}
		return Time{Sec: int64(tv.Sec), Usec: int64(tv.Usec)}
	case SourceMonotonic:
		var ts unix.Timespec
		if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
			logrus.Fatalf("clock: clock_gettime(CLOCK_MONOTONIC) failed: %v", err)
		}
		return Time{Sec: int64(ts.Sec), Usec: int64(ts.Nsec) / 1000}
	case SourceCycles:
		t := cycles()
		if t < c.lastCycles {
			logrus.Debugf("clock: cycle counter went backwards (%d < %d)", t, c.lastCycles)
			t = c.lastCycles
		}
		c.lastCycles = t
		us := t / c.cyclesPerUsec
		return Time{Sec: int64(us / 1000000), Usec: int64(us % 1000000)}
	}
	logrus.Fatalf("clock: invalid source %d", int(c.source))
	return Time{}
}

// SetFixed pins the clock to a fixed Time until ClearFixed. The
// monotonic clamp is bypassed while pinned; this exists so pacing and
// elapsed-time logic can be driven deterministically in tests.
func (c *Clock) SetFixed(t Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixed = &t
}

func (c *Clock) ClearFixed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixed = nil
}
