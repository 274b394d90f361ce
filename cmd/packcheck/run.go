// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"time"

	"github.com/gomlx/packedtensor/backends"
	"github.com/gomlx/packedtensor/backends/strided"
	"github.com/gomlx/packedtensor/pkg/core/tensordesc"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"github.com/gomlx/packedtensor/pkg/gpu/allocator"
	"github.com/gomlx/packedtensor/pkg/packing"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

type runResult struct {
	shouldPack       bool
	readConverted    bool
	writeConverted   bool
	iterations       int
	elapsed          time.Duration
	mismatches       int
	stats            allocator.Stats
	memInfo          gpu.MemInfo
	streamName       string
	liveDescriptors  int
	deviceAllocation int
}

// run iters round trips of y = x + beta*y, where x and y share the given layout and are
// passed to the backend through a ReadProxy and a WriteProxy respectively.
func run(backend backends.Backend, layout tensordesc.Descriptor, iters int, beta float64, force, async, showProgress bool) (
	result runResult, err error) {
	device := gpu.Default()
	alloc := allocator.Default()
	var stream *gpu.Stream
	if async {
		stream = device.NewStream()
		defer func() {
			if closeErr := stream.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
	}
	h := backends.NewHandle(backend, stream, alloc)
	result.streamName = stream.String()
	result.shouldPack = packing.ShouldPack(backend, force)

	desc, err := backend.CreateTensorDescriptor(layout)
	if err != nil {
		return
	}
	defer func() {
		if destroyErr := backend.DestroyTensorDescriptor(desc); destroyErr != nil && err == nil {
			err = destroyErr
		}
	}()

	// Host copies of the input and the expected output.
	numHostElements := layout.MemorySize() / 4
	x := make([]float32, numHostElements)
	for ii := range x {
		x[ii] = float32(ii % 1000)
	}
	want := make([]float32, numHostElements)
	xPtr, err := device.Malloc(layout.MemorySize())
	if err != nil {
		return
	}
	defer func() { _ = device.Free(xPtr) }()
	yPtr, err := device.Malloc(layout.MemorySize())
	if err != nil {
		return
	}
	defer func() { _ = device.Free(yPtr) }()
	if err = gpu.Upload(device, xPtr, x, stream); err != nil {
		return
	}
	if err = device.MemZeroAsync(yPtr, layout.MemorySize(), stream); err != nil {
		return
	}
	result.deviceAllocation = 2 * layout.MemorySize()

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(iters,
			progressbar.OptionSetDescription("round trips"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("iters"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish(),
		)
	}
	start := time.Now()
	for range iters {
		err = packing.WithWriteProxy(h, desc, yPtr, beta, force, func(y *packing.WriteProxy) error {
			result.writeConverted = y.Converted()
			return packing.WithReadProxy(h, desc, xPtr, force, func(x *packing.ReadProxy) error {
				result.readConverted = x.Converted()
				return packing.CopyTensor(h, 1, beta, x.Descriptor(), x.Ptr(), y.Descriptor(), y.Ptr())
			})
		})
		if err != nil {
			err = errors.WithMessagef(err, "round trip #%d", result.iterations)
			return
		}
		strided.Transform(1, float32(beta), layout.Dims, layout.Strides, layout.Strides, x, want)
		result.iterations++
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if err = stream.Synchronize(); err != nil {
		return
	}
	result.elapsed = time.Since(start)
	if bar != nil {
		_ = bar.Finish()
	}

	got := make([]float32, numHostElements)
	if err = gpu.Download(device, got, yPtr, stream); err != nil {
		return
	}
	if err = stream.Synchronize(); err != nil {
		return
	}
	for srcOffset := range strided.Offsets(layout.Dims, layout.Strides, layout.Strides) {
		if got[srcOffset] != want[srcOffset] {
			if result.mismatches == 0 {
				klog.Errorf("First mismatch at offset %d: got %g, wanted %g", srcOffset, got[srcOffset], want[srcOffset])
			}
			result.mismatches++
		}
	}
	result.stats = alloc.Stats()
	result.memInfo = device.MemInfo()
	result.liveDescriptors = backend.LiveDescriptors()
	return
}
