// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gpu implements a host-simulated accelerator: a fixed capacity memory space
// addressed by Ptr, ordered asynchronous execution Streams, and the thin logged memory
// wrappers (MemCopy, MemZero, MemInfo) used by the backends and the scratch allocator.
//
// Kernels access device memory through Device.Bytes, which returns a view of the
// underlying storage. As with a real device, it is the caller's job to order accesses by
// enqueueing them on the same Stream (or synchronizing streams explicitly).
package gpu

import (
	"os"
	"sort"
	"sync"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Ptr is a device virtual address. The zero value is the null pointer.
type Ptr uintptr

// Offset returns the pointer advanced by the given number of bytes.
func (p Ptr) Offset(bytes int) Ptr { return p + Ptr(bytes) }

// IsNull returns whether p is the null pointer.
func (p Ptr) IsNull() bool { return p == 0 }

var (
	// ErrOutOfMemory is returned by Device.Malloc when the device capacity would be exceeded.
	ErrOutOfMemory = errors.New("device out of memory")

	// ErrInvalidPointer is returned when a pointer (or range) is not within a live allocation.
	ErrInvalidPointer = errors.New("invalid device pointer")
)

const (
	// allocationAlignment is the alignment of every allocation base address.
	allocationAlignment = 256

	// firstAddress is the base of the virtual address space, so small integers are never valid pointers.
	firstAddress = 1 << 20
)

type allocation struct {
	base Ptr
	data []byte
}

func (a *allocation) end() Ptr { return a.base.Offset(len(a.data)) }

// Device is a simulated accelerator memory space. It is safe for concurrent use.
type Device struct {
	name     string
	capacity uint64

	mu          sync.RWMutex
	used        uint64
	nextAddress Ptr
	allocations []*allocation // Sorted by base address.
}

// MemInfo reports the free and total memory of a device, in bytes.
type MemInfo struct {
	Free, Total uint64
}

// NewDevice creates a device with the given memory capacity, in bytes.
func NewDevice(name string, capacity uint64) *Device {
	return &Device{
		name:        name,
		capacity:    capacity,
		nextAddress: firstAddress,
	}
}

// DeviceMemoryEnv is the environment variable with the capacity of the Default device.
// It accepts human-readable sizes, e.g. "512MiB" or "2GB".
const DeviceMemoryEnv = "DISTCONV_DEVICE_MEMORY"

// DefaultDeviceMemory is the capacity of the Default device if DeviceMemoryEnv is not set.
var DefaultDeviceMemory uint64 = 1 << 30

var defaultDevice = sync.OnceValue(func() *Device {
	capacity := DefaultDeviceMemory
	if value, found := os.LookupEnv(DeviceMemoryEnv); found && value != "" {
		parsed, err := humanize.ParseBytes(value)
		if err != nil {
			klog.Warningf("ignoring invalid %s=%q: %v", DeviceMemoryEnv, value, err)
		} else {
			capacity = parsed
		}
	}
	klog.V(1).Infof("default device created with %s of memory", humanize.IBytes(capacity))
	return NewDevice("device:0", capacity)
})

// Default returns the process-wide default device.
func Default() *Device {
	return defaultDevice()
}

// Name of the device.
func (d *Device) Name() string { return d.name }

// String implements fmt.Stringer.
func (d *Device) String() string { return d.name }

// Malloc allocates bytes of device memory. The memory content is zeroed.
func (d *Device) Malloc(bytes int) (Ptr, error) {
	if bytes < 0 {
		return 0, errors.Errorf("Malloc(%d): negative size", bytes)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.used+uint64(bytes) > d.capacity {
		return 0, errors.Wrapf(ErrOutOfMemory, "%s: Malloc(%s) with %s of %s in use", d.name,
			humanize.IBytes(uint64(bytes)), humanize.IBytes(d.used), humanize.IBytes(d.capacity))
	}
	// Storage is allocated as 64-bit words, so any element type is properly aligned.
	words := make([]uint64, (bytes+7)/8)
	var data []byte
	if len(words) > 0 {
		data = unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), bytes)
	} else {
		data = []byte{}
	}
	a := &allocation{base: d.nextAddress, data: data}
	// Leave a gap after each allocation, so pointers past the end of one are never valid in the next.
	d.nextAddress = d.nextAddress.Offset(roundUp(bytes, allocationAlignment) + allocationAlignment)
	d.allocations = append(d.allocations, a)
	d.used += uint64(bytes)
	return a.base, nil
}

// Free releases an allocation previously returned by Malloc. ptr must be the base address.
func (d *Device) Free(ptr Ptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.lockedFind(ptr)
	if idx < 0 || d.allocations[idx].base != ptr {
		return errors.Wrapf(ErrInvalidPointer, "%s: Free(%#x)", d.name, uintptr(ptr))
	}
	d.used -= uint64(len(d.allocations[idx].data))
	d.allocations = append(d.allocations[:idx], d.allocations[idx+1:]...)
	return nil
}

// Bytes returns a view of the n bytes of device memory starting at ptr.
// The range must be fully within one live allocation.
func (d *Device) Bytes(ptr Ptr, n int) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx := d.lockedFind(ptr)
	if idx < 0 {
		return nil, errors.Wrapf(ErrInvalidPointer, "%s: address %#x is not allocated", d.name, uintptr(ptr))
	}
	a := d.allocations[idx]
	if n < 0 || ptr.Offset(n) > a.end() {
		return nil, errors.Wrapf(ErrInvalidPointer, "%s: range [%#x, +%d) overflows allocation [%#x, +%d)",
			d.name, uintptr(ptr), n, uintptr(a.base), len(a.data))
	}
	offset := int(ptr - a.base)
	return a.data[offset : offset+n : offset+n], nil
}

// lockedFind returns the index of the allocation containing ptr, or -1.
// It must be called with d.mu held.
func (d *Device) lockedFind(ptr Ptr) int {
	idx := sort.Search(len(d.allocations), func(i int) bool {
		return d.allocations[i].end() > ptr
	})
	if idx == len(d.allocations) || d.allocations[idx].base > ptr {
		return -1
	}
	return idx
}

// NumAllocations returns the number of live allocations.
func (d *Device) NumAllocations() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.allocations)
}

// MemInfo returns the free and total memory of the device.
func (d *Device) MemInfo() MemInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info := MemInfo{Free: d.capacity - d.used, Total: d.capacity}
	klog.V(1).Infof("%s: MemInfo() free=%s, total=%s", d.name, humanize.IBytes(info.Free), humanize.IBytes(info.Total))
	return info
}

func roundUp(n, multiple int) int {
	return (n + multiple - 1) / multiple * multiple
}
