// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package repack implements a backend without a layout-safe native transform: copies
// between layouts are done by a custom repack kernel, and tensors are packed by default.
//
// Only Float32 has a repack kernel. Descriptors and scalars can be created for Float16,
// but copying them fails with backends.ErrUnsupportedDataType.
//
// Configuration (comma-separated): "workers=<n>" sets the maximum parallelism of the
// kernel (0 disables it, -1 is unlimited), defaults to runtime.NumCPU().
package repack

import (
	"strconv"
	"sync/atomic"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/packedtensor/backends"
	"github.com/gomlx/packedtensor/backends/strided"
	"github.com/gomlx/packedtensor/internal/workerspool"
	"github.com/gomlx/packedtensor/pkg/core/tensordesc"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to be used in DISTCONV_BACKEND to specify this backend.
const BackendName = "repack"

// Registers New() as the constructor for the "repack" backend.
func init() {
	backends.Register(BackendName, New)
}

// New constructs a new repack Backend. See package documentation for the configuration.
func New(config string) (backends.Backend, error) {
	pool := workerspool.New()
	for key, value := range backends.ParseConfig(config) {
		switch key {
		case "workers":
			workers, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrapf(err, "backend %q: invalid workers=%q", BackendName, value)
			}
			pool = workerspool.NewWithParallelism(workers)
		default:
			return nil, errors.Errorf("backend %q: unknown configuration %q", BackendName, key)
		}
	}
	return newBackend(pool), nil
}

func newBackend(pool *workerspool.Pool) *Backend {
	b := &Backend{pool: pool}
	b.DescriptorTable = backends.NewDescriptorTable(BackendName, b.checkSupported)
	return b
}

// Backend implements backends.Backend.
type Backend struct {
	*backends.DescriptorTable
	pool      *workerspool.Pool
	finalized atomic.Bool
}

// Compile-time check that repack.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// String implements fmt.Stringer.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Repack kernel backend (no layout-safe transform, packing opt-out)"
}

// Capabilities returns information about what is supported by this backend.
func (b *Backend) Capabilities() backends.Capabilities {
	caps := backends.Capabilities{
		PackByDefault:   true,
		NativeTransform: false,
		DTypes:          make(map[dtypes.DType]bool),
	}
	for _, dtype := range repackDispatcher.Supported() {
		caps.DTypes[dtype] = true
	}
	return caps
}

// MaxParallelism of the repack kernel.
func (b *Backend) MaxParallelism() int { return b.pool.MaxParallelism() }

func (b *Backend) checkSupported(desc tensordesc.Descriptor) error {
	_, err := b.DataTypeSize(desc.DType)
	return err
}

// DataTypeSize implements backends.Backend.
func (b *Backend) DataTypeSize(dtype dtypes.DType) (int, error) {
	switch dtype {
	case dtypes.Float32, dtypes.Float16:
		return int(dtype.Memory()), nil
	}
	return 0, errors.Wrapf(backends.ErrUnsupportedDataType, "%s: only Float32 and Float16 are supported, got %s",
		BackendName, dtype)
}

// ScalarFor implements backends.Backend: only single precision scalars are used.
func (b *Backend) ScalarFor(dtype dtypes.DType, value float64) (tensordesc.Scalar, error) {
	switch dtype {
	case dtypes.Float32, dtypes.Float16:
		return tensordesc.Float32Scalar(float32(value)), nil
	}
	return tensordesc.Scalar{}, errors.Wrapf(backends.ErrUnsupportedDataType,
		"%s: only Float32 and Float16 are supported, got %s", BackendName, dtype)
}

// CopyTensor implements backends.Backend by enqueueing the repack kernel for the dtype on
// the handle's stream.
func (b *Backend) CopyTensor(h *backends.Handle, alpha tensordesc.Scalar, srcHandle backends.TensorDescriptor, src gpu.Ptr,
	beta tensordesc.Scalar, dstHandle backends.TensorDescriptor, dst gpu.Ptr) error {
	if b.finalized.Load() {
		return backends.NewCallError(BackendName, "CopyTensor", backends.StatusNotInitialized, errors.New("backend finalized"))
	}
	srcDesc, dstDesc, err := b.CopyOperands(srcHandle, dstHandle)
	if err != nil {
		return err
	}
	kernel, err := repackDispatcher.Lookup(srcDesc.DType)
	if err != nil {
		return err
	}
	if alpha.Kind() != tensordesc.ScalarFloat32 || beta.Kind() != tensordesc.ScalarFloat32 {
		return backends.NewCallError(BackendName, "CopyTensor", backends.StatusBadParam,
			errors.Errorf("alpha=%s and beta=%s must be float32", alpha, beta))
	}

	device := h.Device()
	elementSize := int(srcDesc.DType.Memory())
	srcBytes := strided.Span(srcDesc.Dims, srcDesc.Strides) * elementSize
	dstBytes := strided.Span(dstDesc.Dims, dstDesc.Strides) * elementSize
	klog.V(1).Infof("%s: repack kernel (alpha=%s, src=%#x %s, beta=%s, dst=%#x %s, stream=%s)",
		BackendName, alpha, uintptr(src), srcDesc, beta, uintptr(dst), dstDesc, h.Stream())

	err = h.Stream().Launch("tensor_repack", func() error {
		srcData, err := device.Bytes(src, srcBytes)
		if err != nil {
			return backends.NewCallError(BackendName, "TensorRepack", backends.StatusBadParam, err)
		}
		dstData, err := device.Bytes(dst, dstBytes)
		if err != nil {
			return backends.NewCallError(BackendName, "TensorRepack", backends.StatusBadParam, err)
		}
		args := &kernelArgs{
			alpha:      alpha.Value(),
			beta:       beta.Value(),
			dims:       srcDesc.Dims,
			srcStrides: srcDesc.Strides,
			dstStrides: dstDesc.Strides,
			src:        srcData,
			dst:        dstData,
		}
		b.launch(kernel, args)
		return nil
	})
	if err != nil {
		return backends.NewCallError(BackendName, "TensorRepack", backends.StatusExecutionFailed, err)
	}
	return nil
}

// minElementsPerWorker is the minimum work, in elements, to be worth a separate worker.
const minElementsPerWorker = 16 * 1024

// launch splits the outermost axis among the workers of the pool.
func (b *Backend) launch(kernel kernelFn, args *kernelArgs) {
	outer := args.dims[0]
	innerSize := 1
	for _, dim := range args.dims[1:] {
		innerSize *= dim
	}
	minRows := max(1, minElementsPerWorker/innerSize)
	b.pool.ParallelFor(outer, minRows, func(start, end int) {
		kernel(args, start, end)
	})
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	if b.finalized.Swap(true) {
		return
	}
	if live := b.LiveDescriptors(); live > 0 {
		klog.Warningf("%s: finalized with %d tensor descriptors not destroyed", BackendName, live)
	}
}
