package engine

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/runningwild/thrash/pkg/clock"
	"github.com/runningwild/thrash/pkg/rate"
	"github.com/runningwild/thrash/pkg/stats"
)

// SyncEngine issues plain pread/pwrite from a pool of workers.
type SyncEngine struct {
}

func NewSync() *SyncEngine {
	return &SyncEngine{}
}

type workerResult struct {
	ioCount int64
	lat     *stats.Latency
	err     error
}

// Run executes a workload based on the provided params.
func (e *SyncEngine) Run(params Params) (*Result, error) {
	if params.BlockSize <= 0 {
		return nil, fmt.Errorf("invalid block size: %d", params.BlockSize)
	}

	clk, err := newClock(params)
	if err != nil {
		return nil, err
	}

	numWorkers := params.Workers
	if numWorkers <= 0 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	results := make(chan workerResult, numWorkers)
	fatal := make(chan error, numWorkers)
	done := make(chan struct{})

	// Atomic counter for live monitoring
	var opsCounter int64

	// Token bucket for the global queue depth
	qd := params.QueueDepth
	if qd <= 0 {
		qd = numWorkers
	}
	tokens := make(chan struct{}, qd)
	for i := 0; i < qd; i++ {
		tokens <- struct{}{}
	}

	start := time.Now()

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			defer wg.Done()
			res := e.runWorker(id, params, clk, tokens, done, &opsCounter)
			if res.err != nil {
				fatal <- res.err
			}
			results <- res
		}(i)
	}

	relErr, reason := monitorLoop(params.Runtime, &opsCounter, fatal)

	close(done)
	wg.Wait()
	close(results)

	duration := time.Since(start)
	res, err := aggregate(results, duration, relErr, params.BlockSize)
	if err != nil {
		return nil, err
	}
	res.TerminationReason = reason
	return res, nil
}

// monitorLoop samples IOPS every 100ms until the runtime expires or a
// worker reports a fatal error. The relative standard error of the
// samples is reported as the run's metric confidence.
func monitorLoop(runFor time.Duration, opsCounter *int64, fatal <-chan error) (relErr float64, reason string) {
	start := time.Now()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var iops stats.Running
	var lastOps int64
	lastTime := start

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			currOps := atomic.LoadInt64(opsCounter)
			if dt := now.Sub(lastTime).Seconds(); dt > 0 {
				iops.Add(float64(currOps-lastOps) / dt)
			}
			lastOps = currOps
			lastTime = now

			if now.Sub(start) >= runFor {
				return iops.RelErr(), "Timeout"
			}
		case err := <-fatal:
			logrus.Warnf("engine: worker aborted: %v", err)
			return iops.RelErr(), "Aborted"
		}
	}
}

// aggregate folds worker results into one Result. Any worker error
// fails the whole run; the run's numbers would be misleading with a
// dead worker folded in.
func aggregate(results chan workerResult, duration time.Duration, relErr float64, blockSize int) (*Result, error) {
	var totalIOs int64
	lat := stats.NewLatency()
	var firstErr error

	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		totalIOs += res.ioCount
		lat.Merge(res.lat)
	}
	if firstErr != nil {
		return nil, firstErr
	}

	res := &Result{
		TotalIOs:         totalIOs,
		Duration:         duration,
		MetricConfidence: relErr,
	}
	if duration > 0 {
		res.IOPS = float64(totalIOs) / duration.Seconds()
		res.Throughput = float64(totalIOs*int64(blockSize)) / duration.Seconds()
	}
	if lat.Count() > 0 {
		res.MeanLatency = lat.Mean()
		res.P50Latency = lat.Quantile(0.50)
		res.P99Latency = lat.Quantile(0.99)
		res.MaxLatency = lat.Max()
	}
	return res, nil
}

// mixRNG drives the read/write mix decision. It follows the same
// seeding policy as the offset generator so mixed workloads replay too.
func (p Params) mixRNG(worker int) *rand.Rand {
	seed := p.Seed
	if !p.RandomRepeat && seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed ^ int64(worker)<<32))
}

func (e *SyncEngine) runWorker(id int, params Params, clk *clock.Clock, tokens chan struct{}, done chan struct{}, opsCounter *int64) workerResult {
	flags := os.O_RDONLY
	if params.ReadPct < 100 {
		flags = os.O_RDWR
	}
	if params.Direct {
		flags |= syscall.O_DIRECT
	}

	f, err := os.OpenFile(params.Path, flags, 0666)
	if err != nil {
		return workerResult{err: err}
	}
	defer f.Close()

	alignedBlock, err := unix.Mmap(-1, 0, params.BlockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return workerResult{err: fmt.Errorf("failed to allocate aligned memory: %v", err)}
	}
	defer unix.Munmap(alignedBlock)

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return workerResult{err: err}
	}

	gen, err := params.generator(size/int64(params.BlockSize), id)
	if err != nil {
		return workerResult{err: err}
	}
	pacer, err := params.pacer(clk, params.Workers)
	if err != nil {
		return workerResult{err: err}
	}
	mix := params.mixRNG(id)

	var ioCount int64
	lat := stats.NewLatency()

	for {
		select {
		case <-done:
			return workerResult{ioCount: ioCount, lat: lat}
		case <-tokens:
			// Acquired a queue slot
		}

		if pacer != nil {
			delay, perr := pacer.Gate()
			if perr != nil {
				tokens <- struct{}{}
				var floor *rate.FloorError
				if errors.As(perr, &floor) {
					return workerResult{ioCount: ioCount, lat: lat, err: perr}
				}
				return workerResult{err: perr}
			}
			if delay > 0 {
				time.Sleep(delay)
			}
		}

		offset := int64(gen.Next()) * int64(params.BlockSize)

		isRead := true
		if params.ReadPct < 100 {
			if params.ReadPct == 0 || mix.Intn(100) >= params.ReadPct {
				isRead = false
			}
		}

		ioStart := clk.Now()
		var n int
		if isRead {
			n, err = f.ReadAt(alignedBlock, offset)
		} else {
			n, err = f.WriteAt(alignedBlock, offset)
		}

		// Release the queue slot
		tokens <- struct{}{}

		lat.Record(clk.UsecSinceNow(ioStart))

		if err != nil && err != io.EOF {
			return workerResult{err: err}
		}
		if n > 0 {
			ioCount++
			atomic.AddInt64(opsCounter, 1)
			if pacer != nil {
				if think := pacer.Complete(n); think > 0 {
					time.Sleep(think)
				}
			}
		}
	}
}
