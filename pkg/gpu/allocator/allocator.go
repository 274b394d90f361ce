// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package allocator implements a stream-ordered caching allocator of device memory, used
// for scratch buffers.
//
// Allocations are rounded up to geometrically growing bins. Freed blocks are kept in a
// cache and tagged with the stream they were last used on, together with an event
// recorded on that stream at free time:
//
//   - A request on the same stream can reuse a cached block immediately, since the stream
//     orders the new use after the pending work on the old one.
//   - A request on a different stream only reuses a block whose event already completed.
//
// So freeing never requires a device-wide synchronization. Requests larger than the
// largest bin are allocated with their exact size and released to the device on Free.
//
// The allocator is safe for concurrent use from multiple goroutines and streams.
package allocator

import (
	"math"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// ErrAllocationFailure is returned when a request cannot be satisfied, even after
	// releasing the cached blocks back to the device.
	ErrAllocationFailure = errors.New("scratch allocation failure")

	// ErrInvalidFree is returned by Free for pointers that are not live allocations,
	// e.g. a double free.
	ErrInvalidFree = errors.New("free of a pointer not allocated by this allocator")
)

// Config of a CachingAllocator. Bin sizes are BinGrowth^bin bytes, for bin in [MinBin, MaxBin].
type Config struct {
	BinGrowth int
	MinBin    int
	MaxBin    int

	// MaxCachedBytes is the maximum total size of cached (free) blocks. Blocks freed beyond
	// this limit are released to the device.
	MaxCachedBytes int
}

// DefaultConfig returns bins from 512 bytes to 2MiB growing by 8x, and a cache of up to ~6MiB.
func DefaultConfig() Config {
	return Config{
		BinGrowth:      8,
		MinBin:         3,
		MaxBin:         7,
		MaxCachedBytes: intPow(8, 7)*3 - 1,
	}
}

// Option changes the Config of a CachingAllocator being created.
type Option func(*Config)

// WithMaxCachedBytes sets Config.MaxCachedBytes.
func WithMaxCachedBytes(bytes int) Option {
	return func(c *Config) { c.MaxCachedBytes = bytes }
}

// WithBins sets the bin growth factor and the smallest and largest bins.
func WithBins(growth, minBin, maxBin int) Option {
	return func(c *Config) {
		c.BinGrowth, c.MinBin, c.MaxBin = growth, minBin, maxBin
	}
}

// invalidBin marks blocks larger than the largest bin.
const invalidBin = -1

type block struct {
	ptr    gpu.Ptr
	bytes  int // Rounded up to the bin size.
	bin    int
	stream *gpu.Stream
	ready  *gpu.Event // Set when the block is cached.
}

// Stats is a snapshot of the allocator usage.
type Stats struct {
	LiveBlocks, CachedBlocks int
	LiveBytes, CachedBytes   int

	// Requests is the total number of Allocate calls that succeeded, CacheHits those served from the cache.
	Requests, CacheHits int

	// DeviceMallocs and DeviceFrees count calls to the device.
	DeviceMallocs, DeviceFrees int
}

// CachingAllocator is a stream-ordered caching allocator. See package documentation.
type CachingAllocator struct {
	device *gpu.Device
	config Config

	mu     sync.Mutex
	cached map[int][]*block // Cached blocks per bin, most recently freed last.
	live   map[gpu.Ptr]*block
	stats  Stats
}

// New creates a CachingAllocator of memory from the given device.
func New(device *gpu.Device, options ...Option) *CachingAllocator {
	config := DefaultConfig()
	for _, option := range options {
		option(&config)
	}
	if config.BinGrowth < 2 || config.MinBin < 0 || config.MaxBin < config.MinBin {
		panic(errors.Errorf("allocator.New(): invalid bins configuration %+v", config))
	}
	return &CachingAllocator{
		device: device,
		config: config,
		cached: make(map[int][]*block),
		live:   make(map[gpu.Ptr]*block),
	}
}

var defaultAllocator = sync.OnceValue(func() *CachingAllocator {
	return New(gpu.Default())
})

// Default returns the process-wide allocator of the default device.
func Default() *CachingAllocator {
	return defaultAllocator()
}

// Device from where memory is allocated.
func (a *CachingAllocator) Device() *gpu.Device { return a.device }

// Config returns the configuration in use.
func (a *CachingAllocator) Config() Config { return a.config }

// binFor returns the bin and rounded size for a request.
func (a *CachingAllocator) binFor(bytes int) (bin, rounded int) {
	binBytes := intPow(a.config.BinGrowth, a.config.MinBin)
	for bin = a.config.MinBin; bin <= a.config.MaxBin; bin++ {
		if bytes <= binBytes {
			return bin, binBytes
		}
		binBytes *= a.config.BinGrowth
	}
	return invalidBin, bytes
}

// Allocate returns a pointer to at least bytes of device memory, to be used in stream.
//
// The memory is not initialized. It must be released with Free.
func (a *CachingAllocator) Allocate(bytes int, stream *gpu.Stream) (gpu.Ptr, error) {
	if bytes < 0 {
		return 0, errors.Wrapf(ErrAllocationFailure, "Allocate(%d): negative size", bytes)
	}
	bin, rounded := a.binFor(bytes)

	a.mu.Lock()
	defer a.mu.Unlock()
	if bin != invalidBin {
		if b := a.lockedReuse(bin, stream); b != nil {
			a.stats.Requests++
			a.stats.CacheHits++
			klog.V(1).Infof("Allocate(%s, %s): reused cached block %#x of %s",
				humanize.IBytes(uint64(bytes)), stream, uintptr(b.ptr), humanize.IBytes(uint64(b.bytes)))
			return b.ptr, nil
		}
	}

	ptr, err := a.device.Malloc(rounded)
	if errors.Is(err, gpu.ErrOutOfMemory) {
		// Release everything cached and try again.
		klog.Warningf("Allocate(%s, %s): device out of memory, releasing %s of cached blocks and retrying",
			humanize.IBytes(uint64(bytes)), stream, humanize.IBytes(uint64(a.stats.CachedBytes)))
		if freeErr := a.lockedFreeAllCached(); freeErr != nil {
			return 0, freeErr
		}
		ptr, err = a.device.Malloc(rounded)
	}
	if err != nil {
		return 0, errors.Wrapf(ErrAllocationFailure, "Allocate(%s, %s): %v",
			humanize.IBytes(uint64(bytes)), stream, err)
	}
	a.stats.DeviceMallocs++
	a.stats.Requests++
	b := &block{ptr: ptr, bytes: rounded, bin: bin, stream: stream}
	a.live[ptr] = b
	a.stats.LiveBlocks++
	a.stats.LiveBytes += rounded
	klog.V(1).Infof("Allocate(%s, %s): new block %#x of %s",
		humanize.IBytes(uint64(bytes)), stream, uintptr(ptr), humanize.IBytes(uint64(rounded)))
	return ptr, nil
}

// lockedReuse finds a cached block of the bin usable from stream, and moves it to the
// live set. It must be called with a.mu held.
func (a *CachingAllocator) lockedReuse(bin int, stream *gpu.Stream) *block {
	blocks := a.cached[bin]
	for ii := len(blocks) - 1; ii >= 0; ii-- {
		b := blocks[ii]
		if b.stream != stream && !b.ready.Query() {
			continue
		}
		a.cached[bin] = append(blocks[:ii], blocks[ii+1:]...)
		a.stats.CachedBlocks--
		a.stats.CachedBytes -= b.bytes
		b.stream = stream
		b.ready = nil
		a.live[b.ptr] = b
		a.stats.LiveBlocks++
		a.stats.LiveBytes += b.bytes
		return b
	}
	return nil
}

// Free releases memory returned by Allocate.
//
// The block is cached for reuse if it fits a bin and the cache has room, otherwise it is
// released to the device. Work already enqueued on the block's stream may still be using
// the memory: the cache only hands it to other streams once that work finished.
func (a *CachingAllocator) Free(ptr gpu.Ptr) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, found := a.live[ptr]
	if !found {
		return errors.Wrapf(ErrInvalidFree, "Free(%#x)", uintptr(ptr))
	}
	delete(a.live, ptr)
	a.stats.LiveBlocks--
	a.stats.LiveBytes -= b.bytes

	if b.bin != invalidBin && a.stats.CachedBytes+b.bytes <= a.config.MaxCachedBytes {
		b.ready = b.stream.Record()
		a.cached[b.bin] = append(a.cached[b.bin], b)
		a.stats.CachedBlocks++
		a.stats.CachedBytes += b.bytes
		klog.V(1).Infof("Free(%#x): cached %s from %s", uintptr(ptr), humanize.IBytes(uint64(b.bytes)), b.stream)
		return nil
	}

	// Released to the device: wait for pending work on the block first.
	if err := b.stream.Synchronize(); err != nil {
		klog.Warningf("Free(%#x): %s failed before release: %v", uintptr(ptr), b.stream, err)
	}
	if err := a.device.Free(ptr); err != nil {
		return errors.WithMessagef(err, "Free(%#x)", uintptr(ptr))
	}
	a.stats.DeviceFrees++
	klog.V(1).Infof("Free(%#x): released %s to %s", uintptr(ptr), humanize.IBytes(uint64(b.bytes)), a.device)
	return nil
}

// FreeAllCached releases all cached blocks back to the device.
func (a *CachingAllocator) FreeAllCached() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lockedFreeAllCached()
}

func (a *CachingAllocator) lockedFreeAllCached() error {
	for bin, blocks := range a.cached {
		for _, b := range blocks {
			b.ready.Wait()
			if err := a.device.Free(b.ptr); err != nil {
				return errors.WithMessagef(err, "FreeAllCached()")
			}
			a.stats.DeviceFrees++
			a.stats.CachedBlocks--
			a.stats.CachedBytes -= b.bytes
		}
		delete(a.cached, bin)
	}
	return nil
}

// Stats returns a snapshot of the allocator usage.
func (a *CachingAllocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func intPow(base, exp int) int {
	if exp < 0 {
		return 0
	}
	result := 1
	for range exp {
		if result > math.MaxInt/base {
			return math.MaxInt
		}
		result *= base
	}
	return result
}
