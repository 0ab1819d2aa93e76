package clock

import (
	"errors"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/runningwild/thrash/pkg/stats"
)

const (
	calibrationSamples = 10
	// Minimum window per sample. Anything shorter can sit below the
	// granularity of either clock and produce a garbage ratio.
	calibrationMinUsec = 10
)

// sampleCyclesPerUsec measures one candidate cycles-per-microsecond
// ratio by reading the cycle counter on both sides of a busy-polled
// wall-clock window of at least calibrationMinUsec.
func sampleCyclesPerUsec() float64 {
	s := wallTime()
	cs := cycles()
	for {
		e := wallTime()
		elapsed := UsecSince(s, e)
		if elapsed >= calibrationMinUsec {
			ce := cycles()
			return float64(ce-cs) / float64(elapsed)
		}
	}
}

// calibrate estimates how many cycle-counter ticks make up one
// microsecond. Individual samples are noisy under preemption and cache
// misses, so it takes ten, computes a running mean and standard
// deviation, drops anything more than one deviation out, and averages
// the rest.
func calibrate() (uint64, error) {
	sampleCyclesPerUsec() // warm the code and data paths

	samples := make([]float64, calibrationSamples)
	var run stats.Running
	for i := range samples {
		samples[i] = sampleCyclesPerUsec()
		run.Add(samples[i])
	}

	mean := run.Mean()
	sd := run.StdDev()

	var sum float64
	var kept int
	for i, s := range samples {
		if math.Abs(s-mean) > sd {
			logrus.Debugf("clock: discarding calibration sample %d: %.2f (mean %.2f, sd %.2f)", i, s, mean, sd)
			continue
		}
		sum += s
		kept++
	}
	if kept == 0 {
		// Degenerate spread; the mean is as good an answer as any.
		sum = mean
		kept = 1
	}

	cpu := uint64(sum/float64(kept) + 0.5)
	if cpu == 0 {
		return 0, errors.New("clock: cycle counter did not advance during calibration")
	}
	logrus.Debugf("clock: calibrated %d cycles/usec from %d/%d samples", cpu, kept, calibrationSamples)
	return cpu, nil
}

// wallTime is the raw gettimeofday read used as the calibration
// reference. It bypasses any Clock so calibration never depends on the
// state it is about to initialize.
func wallTime() Time {
	var tv unix.Timeval
	if err := unix.Gettimeofday(&tv); err != nil {
		logrus.Fatalf("clock: gettimeofday failed during calibration: %v", err)
	}
	return Time{Sec: int64(tv.Sec), Usec: int64(tv.Usec)}
}
