//go:build linux

package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/godzie44/go-uring/uring"
	"golang.org/x/sys/unix"

	"github.com/runningwild/thrash/pkg/clock"
	"github.com/runningwild/thrash/pkg/stats"
)

// UringEngine drives io_uring with a fixed number of in-flight
// requests per worker.
type UringEngine struct {
}

func NewUring() *UringEngine {
	return &UringEngine{}
}

func (e *UringEngine) Run(params Params) (*Result, error) {
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
	qdPerWorker := params.QueueDepth / numWorkers
	if qdPerWorker <= 0 {
		qdPerWorker = 1
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	var opsCounter int64
	results := make(chan workerResult, numWorkers)
	fatal := make(chan error, numWorkers)

	start := time.Now()

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			res := e.runUringWorker(id, params, clk, qdPerWorker, done, &opsCounter)
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

func (e *UringEngine) runUringWorker(id int, params Params, clk *clock.Clock, qd int, done chan struct{}, opsCounter *int64) workerResult {
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

	ring, err := uring.New(uint32(qd))
	if err != nil {
		return workerResult{err: fmt.Errorf("failed to setup io_uring: %v", err)}
	}
	defer ring.Close()

	totalBufSize := params.BlockSize * qd
	alignedBlock, err := unix.Mmap(-1, 0, totalBufSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
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

	startTimes := make([]clock.Time, qd)
	slots := newSlotStack(qd)
	inFlight := 0

	for {
		queued := 0
		for slots.available() > 0 {
			if pacer != nil {
				delay, perr := pacer.Gate()
				if perr != nil {
					return workerResult{ioCount: ioCount, lat: lat, err: perr}
				}
				if delay > 0 {
					// Stop filling the pipeline; sleep the debt off
					// before the next submission round.
					time.Sleep(delay)
					break
				}
			}

			offset := int64(gen.Next()) * int64(params.BlockSize)

			isRead := true
			if params.ReadPct < 100 {
				if params.ReadPct == 0 || mix.Intn(100) >= params.ReadPct {
					isRead = false
				}
			}

			idx := slots.pop()
			blockBuf := alignedBlock[idx*params.BlockSize : (idx+1)*params.BlockSize]

			var op uring.Operation
			if isRead {
				op = uring.Read(f.Fd(), blockBuf, uint64(offset))
			} else {
				op = uring.Write(f.Fd(), blockBuf, uint64(offset))
			}

			if err := ring.QueueSQE(op, 0, uint64(idx)); err != nil {
				slots.push(idx)
				break
			}
			startTimes[idx] = clk.Now()
			inFlight++
			queued++
		}

		if queued > 0 {
			for {
				_, err := ring.Submit()
				if err == nil || !isEINTR(err) {
					if err != nil {
						return workerResult{err: err}
					}
					break
				}
			}
		}

		if inFlight > 0 {
			var cqe *uring.CQEvent
			for {
				cqe, err = ring.WaitCQEvents(1)
				if err == nil || !isEINTR(err) {
					break
				}
			}
			if err != nil {
				return workerResult{err: err}
			}

			for cqe != nil {
				idx := int(cqe.UserData)
				if cqe.Res < 0 {
					return workerResult{err: syscall.Errno(-cqe.Res)}
				}

				lat.Record(clock.UsecSince(startTimes[idx], clk.Now()))
				ioCount++
				atomic.AddInt64(opsCounter, 1)
				inFlight--
				slots.push(idx)
				if pacer != nil {
					if think := pacer.Complete(int(cqe.Res)); think > 0 {
						time.Sleep(think)
					}
				}
				ring.SeenCQE(cqe)

				cqe, _ = ring.PeekCQE()
			}
		}

		select {
		case <-done:
			return workerResult{ioCount: ioCount, lat: lat}
		default:
		}
	}
}

func isEINTR(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EINTR) {
		return true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return sysErr.Err == syscall.EINTR
	}
	return false
}
