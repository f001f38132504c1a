package main

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/funny-falcon/slotpool/pool"
)

var (
	ErrDoubleHold = errors.New("bench: slot held twice")
	ErrExhausted  = errors.New("bench: pool exhausted below its share")
	ErrCount      = errors.New("bench: allocation count mismatch")
	ErrThreads    = errors.New("bench: more threads than slots")
)

type BenchResult struct {
	Threads  int
	Rounds   int
	PerRound uint32
	Acquired uint64
	Elapsed  time.Duration

	// round latency in microseconds
	Median float64
	P99    float64
}

func (r *BenchResult) OpsPerSec() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	// each acquisition is paired with a release
	return float64(2*r.Acquired) / r.Elapsed.Seconds()
}

// RunBench has threads goroutines each take Cap()/threads slots, mark them
// in a side table, then unmark and release them, rounds times over. A slot
// found already marked means two holders. p must be empty.
func RunBench(p *pool.Pool, threads, rounds int) (*BenchResult, error) {
	if threads <= 0 || rounds <= 0 {
		return nil, fmt.Errorf("bench: threads and rounds must be positive")
	}
	perRound := p.Cap() / uint32(threads)
	if perRound == 0 {
		return nil, fmt.Errorf("%w: %d threads, %d slots", ErrThreads, threads, p.Cap())
	}

	held := make([]uint32, p.Cap())
	counts := make([]uint32, p.Cap())
	latencies := make([][]float64, threads)
	var doubles, exhausted int64

	var wg sync.WaitGroup
	start := time.Now()
	for th := 0; th < threads; th++ {
		wg.Add(1)
		go func(th int) {
			defer wg.Done()
			lat := make([]float64, 0, rounds)
			allocations := make([]uint32, 0, perRound)
			for r := 0; r < rounds; r++ {
				t := time.Now()
				allocations = allocations[:0]
				for j := uint32(0); j < perRound; j++ {
					idx := p.Acquire()
					if idx == p.Cap() {
						atomic.AddInt64(&exhausted, 1)
						continue
					}
					if !atomic.CompareAndSwapUint32(&held[idx], 0, 1) {
						atomic.AddInt64(&doubles, 1)
						continue
					}
					counts[idx]++
					allocations = append(allocations, idx)
				}
				for _, idx := range allocations {
					atomic.StoreUint32(&held[idx], 0)
					p.Release(idx)
				}
				lat = append(lat, float64(time.Since(t).Microseconds()))
			}
			latencies[th] = lat
		}(th)
	}
	wg.Wait()

	res := &BenchResult{
		Threads:  threads,
		Rounds:   rounds,
		PerRound: perRound,
		Elapsed:  time.Since(start),
	}
	for _, c := range counts {
		res.Acquired += uint64(c)
	}
	var all stats.Float64Data
	for _, lat := range latencies {
		all = append(all, lat...)
	}
	var err error
	if res.Median, err = all.Median(); err != nil {
		return nil, fmt.Errorf("bench: median: %w", err)
	}
	if res.P99, err = all.Percentile(99); err != nil {
		return nil, fmt.Errorf("bench: p99: %w", err)
	}

	switch want := uint64(threads) * uint64(perRound) * uint64(rounds); {
	case doubles > 0:
		return res, fmt.Errorf("%w: %d times", ErrDoubleHold, doubles)
	case exhausted > 0:
		return res, fmt.Errorf("%w: %d times", ErrExhausted, exhausted)
	case res.Acquired != want:
		return res, fmt.Errorf("%w: acquired %d, want %d", ErrCount, res.Acquired, want)
	case p.Allocated() != 0:
		return res, fmt.Errorf("%w: %d still allocated", ErrCount, p.Allocated())
	}
	return res, nil
}
