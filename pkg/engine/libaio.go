//go:build linux

package engine

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/runningwild/thrash/pkg/clock"
	"github.com/runningwild/thrash/pkg/stats"
)

// Constants for libaio
const (
	IOCB_CMD_PREAD  = 0
	IOCB_CMD_PWRITE = 1
)

// Kernel structures (standard 64-bit layout for x86_64 and arm64)
type iocb struct {
	Data      uint64
	Key       uint32
	RwFlags   uint32
	OpCode    uint16
	ReqPrio   int16
	Fd        uint32
	Buf       uint64
	NBytes    uint64
	Offset    int64
	Reserved2 uint64
	Flags     uint32
	ResFd     uint32
}

type ioEvent struct {
	Data uint64
	Obj  uint64
	Res  int64
	Res2 int64
}

// LibAIOEngine drives the raw Linux native AIO syscalls.
type LibAIOEngine struct {
}

func NewLibAIO() *LibAIOEngine {
	return &LibAIOEngine{}
}

func (e *LibAIOEngine) Run(params Params) (*Result, error) {
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
	if params.QueueDepth <= 0 {
		params.QueueDepth = numWorkers
	}
	if numWorkers > params.QueueDepth {
		numWorkers = params.QueueDepth
	}

	qdPerWorker := params.QueueDepth / numWorkers
	remainder := params.QueueDepth % numWorkers

	var wg sync.WaitGroup
	done := make(chan struct{})
	var opsCounter int64
	results := make(chan workerResult, numWorkers)
	fatal := make(chan error, numWorkers)

	start := time.Now()

	for i := 0; i < numWorkers; i++ {
		workerQD := qdPerWorker
		if i < remainder {
			workerQD++
		}
		wg.Add(1)
		go func(id int, qd int) {
			defer wg.Done()
			res := e.runAIOWorker(id, params, clk, qd, done, &opsCounter)
			if res.err != nil {
				fatal <- res.err
			}
			results <- res
		}(i, workerQD)
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

func (e *LibAIOEngine) runAIOWorker(id int, params Params, clk *clock.Clock, qd int, done chan struct{}, opsCounter *int64) workerResult {
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

	// Setup AIO context
	var ctxId uint64
	if _, _, errno := unix.Syscall(unix.SYS_IO_SETUP, uintptr(qd), uintptr(unsafe.Pointer(&ctxId)), 0); errno != 0 {
		return workerResult{err: fmt.Errorf("io_setup failed: %v", errno)}
	}
	defer func() {
		unix.Syscall(unix.SYS_IO_DESTROY, uintptr(ctxId), 0, 0)
	}()

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

	slots := newSlotStack(qd)
	startTimes := make([]clock.Time, qd)
	inFlight := 0

	events := make([]ioEvent, qd)
	iocbs := make([]iocb, qd)
	iocbPtrs := make([]*iocb, qd)

	for {
		submitCount := 0
		// Fill slots
		for slots.available() > 0 {
			if pacer != nil {
				delay, perr := pacer.Gate()
				if perr != nil {
					return workerResult{ioCount: ioCount, lat: lat, err: perr}
				}
				if delay > 0 {
					time.Sleep(delay)
					break
				}
			}

			slotIdx := slots.pop()

			offset := int64(gen.Next()) * int64(params.BlockSize)

			isRead := true
			if params.ReadPct < 100 {
				if params.ReadPct == 0 || mix.Intn(100) >= params.ReadPct {
					isRead = false
				}
			}

			cb := &iocbs[slotIdx]
			*cb = iocb{}
			cb.Fd = uint32(f.Fd())
			cb.Data = uint64(slotIdx)
			cb.Buf = uint64(uintptr(unsafe.Pointer(&alignedBlock[slotIdx*params.BlockSize])))
			cb.NBytes = uint64(params.BlockSize)
			cb.Offset = offset

			if isRead {
				cb.OpCode = IOCB_CMD_PREAD
			} else {
				cb.OpCode = IOCB_CMD_PWRITE
			}

			iocbPtrs[submitCount] = cb
			startTimes[slotIdx] = clk.Now()
			submitCount++
			inFlight++
		}

		if submitCount > 0 {
			nSub, _, errno := unix.Syscall(unix.SYS_IO_SUBMIT, uintptr(ctxId), uintptr(submitCount), uintptr(unsafe.Pointer(&iocbPtrs[0])))
			if errno != 0 {
				return workerResult{err: fmt.Errorf("io_submit failed: %v", errno)}
			}
			if int(nSub) != submitCount {
				return workerResult{err: fmt.Errorf("io_submit submitted %d < %d", nSub, submitCount)}
			}
		}

		minNr := 0
		if inFlight == qd {
			minNr = 1
		}

		if inFlight > 0 {
			nEvt, _, errno := unix.Syscall6(unix.SYS_IO_GETEVENTS, uintptr(ctxId), uintptr(minNr), uintptr(qd), uintptr(unsafe.Pointer(&events[0])), 0, 0)
			if errno != 0 && errno != syscall.EINTR {
				return workerResult{err: fmt.Errorf("io_getevents failed: %v", errno)}
			}

			for i := 0; i < int(nEvt); i++ {
				evt := events[i]
				slotIdx := int(evt.Data)

				if evt.Res < 0 {
					return workerResult{err: fmt.Errorf("aio IO error: %v", evt.Res)}
				}

				lat.Record(clock.UsecSince(startTimes[slotIdx], clk.Now()))
				ioCount++
				atomic.AddInt64(opsCounter, 1)
				inFlight--

				slots.push(slotIdx)

				if pacer != nil {
					if think := pacer.Complete(int(evt.Res)); think > 0 {
						time.Sleep(think)
					}
				}
			}
		}

		select {
		case <-done:
			return workerResult{ioCount: ioCount, lat: lat}
		default:
		}
	}
}
