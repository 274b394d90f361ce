// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool implements a pool of goroutines with a soft limit on parallelism,
// used by kernels to split their work.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits the number of goroutines running tasks.
type Pool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	maxParallelism int
	mu             sync.Mutex
	numRunning     int
}

// New return a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	return NewWithParallelism(runtime.NumCPU())
}

// NewWithParallelism returns a new Pool with the given maximum parallelism.
// If 0 parallelism is disabled and tasks run inline. If < 0 it is unlimited.
func NewWithParallelism(maxParallelism int) *Pool {
	return &Pool{maxParallelism: maxParallelism}
}

// IsEnabled returns whether parallelism is enabled (maxParallelism is != 0)
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism != 0
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0)
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism is a soft-target for parallelism.
// If set to 0 parallelism is disabled.
// If set to -1 parallelism is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with w.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism == 0 {
		return true
	} else if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// lockedRunTaskInGoroutine and keep tabs on w.numRunning.
//
// It must be called with w.mu acquired.
func (w *Pool) lockedRunTaskInGoroutine(task func()) {
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.mu.Unlock()
	}()
}

// StartIfAvailable runs the task in a separate goroutine, if there are enough workers left.
// It returns true if it found workers to run the function, false otherwise.
//
// It's up to the client to synchronize the end of the function execution.
func (w *Pool) StartIfAvailable(task func()) bool {
	if w.IsUnlimited() {
		go task()
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lockedIsFull() {
		return false
	}
	w.lockedRunTaskInGoroutine(task)
	return true
}

// ParallelFor splits [0, n) into up to MaxParallelism contiguous chunks of at least
// minChunk elements and calls fn(start, end) for each, returning when all are done.
//
// Chunks that find no free worker run inline in the caller, so it never deadlocks, even
// when called from within a task of the same pool.
func (w *Pool) ParallelFor(n, minChunk int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if minChunk < 1 {
		minChunk = 1
	}
	numChunks := n / minChunk
	if parallelism := w.maxParallelism; parallelism >= 0 && numChunks > parallelism {
		numChunks = parallelism
	} else if parallelism < 0 && numChunks > runtime.NumCPU() {
		numChunks = runtime.NumCPU()
	}
	if numChunks <= 1 {
		fn(0, n)
		return
	}

	chunkSize := (n + numChunks - 1) / numChunks
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		task := func() {
			defer wg.Done()
			fn(start, end)
		}
		if !w.StartIfAvailable(task) {
			task()
		}
	}
	wg.Wait()
}
