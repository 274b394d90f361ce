// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package transform implements a backend whose native strided transform is correct for any
// layout: tensors can be handed to it as they are, so packing is opt-in.
//
// It supports Float16 (computed in float32), Float32 and Float64 tensors.
package transform

import (
	"sync/atomic"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/packedtensor/backends"
	"github.com/gomlx/packedtensor/backends/strided"
	"github.com/gomlx/packedtensor/pkg/core/tensordesc"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// BackendName to be used in DISTCONV_BACKEND to specify this backend.
const BackendName = "transform"

// Registers New() as the constructor for the "transform" backend.
func init() {
	backends.Register(BackendName, New)
}

// Capabilities of the transform backend.
var Capabilities = backends.Capabilities{
	PackByDefault:   false,
	NativeTransform: true,
	DTypes: map[dtypes.DType]bool{
		dtypes.Float16: true,
		dtypes.Float32: true,
		dtypes.Float64: true,
	},
}

// New constructs a new transform Backend. It takes no configuration options.
func New(config string) (backends.Backend, error) {
	if options := backends.ParseConfig(config); len(options) > 0 {
		return nil, errors.Errorf("backend %q takes no configuration, got %q", BackendName, config)
	}
	return newBackend(), nil
}

func newBackend() *Backend {
	b := &Backend{}
	b.DescriptorTable = backends.NewDescriptorTable(BackendName, b.checkSupported)
	return b
}

// Backend implements backends.Backend.
type Backend struct {
	*backends.DescriptorTable
	finalized atomic.Bool
}

// Compile-time check that transform.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// String implements fmt.Stringer.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Native strided transform backend (layout-safe, packing opt-in)"
}

// Capabilities returns information about what is supported by this backend.
func (b *Backend) Capabilities() backends.Capabilities {
	return Capabilities.Clone()
}

func (b *Backend) checkSupported(desc tensordesc.Descriptor) error {
	_, err := b.DataTypeSize(desc.DType)
	return err
}

// DataTypeSize implements backends.Backend.
func (b *Backend) DataTypeSize(dtype dtypes.DType) (int, error) {
	switch dtype {
	case dtypes.Float32, dtypes.Float64, dtypes.Float16:
		return int(dtype.Memory()), nil
	}
	return 0, errors.Wrapf(backends.ErrUnsupportedDataType, "%s: only Float32, Float64 and Float16 are supported, got %s",
		BackendName, dtype)
}

// ScalarFor implements backends.Backend: half precision coefficients are single precision.
func (b *Backend) ScalarFor(dtype dtypes.DType, value float64) (tensordesc.Scalar, error) {
	switch dtype {
	case dtypes.Float32, dtypes.Float16:
		return tensordesc.Float32Scalar(float32(value)), nil
	case dtypes.Float64:
		return tensordesc.Float64Scalar(value), nil
	}
	return tensordesc.Scalar{}, errors.Wrapf(backends.ErrUnsupportedDataType,
		"%s: only Float32, Float64 and Float16 are supported, got %s", BackendName, dtype)
}

// CopyTensor implements backends.Backend with the native strided transform.
func (b *Backend) CopyTensor(h *backends.Handle, alpha tensordesc.Scalar, srcHandle backends.TensorDescriptor, src gpu.Ptr,
	beta tensordesc.Scalar, dstHandle backends.TensorDescriptor, dst gpu.Ptr) error {
	if b.finalized.Load() {
		return backends.NewCallError(BackendName, "CopyTensor", backends.StatusNotInitialized, errors.New("backend finalized"))
	}
	srcDesc, dstDesc, err := b.CopyOperands(srcHandle, dstHandle)
	if err != nil {
		return err
	}
	wantKind := tensordesc.ScalarFloat32
	if srcDesc.DType == dtypes.Float64 {
		wantKind = tensordesc.ScalarFloat64
	}
	if alpha.Kind() != wantKind || beta.Kind() != wantKind {
		return backends.NewCallError(BackendName, "CopyTensor", backends.StatusBadParam,
			errors.Errorf("alpha=%s and beta=%s must be %s for %s tensors", alpha, beta, wantKind, srcDesc.DType))
	}
	device := h.Device()
	elementSize := int(srcDesc.DType.Memory())
	srcBytes := strided.Span(srcDesc.Dims, srcDesc.Strides) * elementSize
	dstBytes := strided.Span(dstDesc.Dims, dstDesc.Strides) * elementSize
	klog.V(1).Infof("%s: TransformTensor(alpha=%s, src=%#x %s, beta=%s, dst=%#x %s, stream=%s)",
		BackendName, alpha, uintptr(src), srcDesc, beta, uintptr(dst), dstDesc, h.Stream())

	err = h.Stream().Launch("transform_tensor", func() error {
		srcData, err := device.Bytes(src, srcBytes)
		if err != nil {
			return backends.NewCallError(BackendName, "TransformTensor", backends.StatusBadParam, err)
		}
		dstData, err := device.Bytes(dst, dstBytes)
		if err != nil {
			return backends.NewCallError(BackendName, "TransformTensor", backends.StatusBadParam, err)
		}
		switch srcDesc.DType {
		case dtypes.Float32:
			strided.Transform(alpha.Float32(), beta.Float32(), srcDesc.Dims, srcDesc.Strides, dstDesc.Strides,
				gpu.FromBytes[float32](srcData), gpu.FromBytes[float32](dstData))
		case dtypes.Float64:
			strided.Transform(alpha.Float64(), beta.Float64(), srcDesc.Dims, srcDesc.Strides, dstDesc.Strides,
				gpu.FromBytes[float64](srcData), gpu.FromBytes[float64](dstData))
		case dtypes.Float16:
			transformFloat16(alpha.Float32(), beta.Float32(), srcDesc.Dims, srcDesc.Strides, dstDesc.Strides,
				gpu.FromBytes[float16.Float16](srcData), gpu.FromBytes[float16.Float16](dstData))
		}
		return nil
	})
	if err != nil {
		return backends.NewCallError(BackendName, "TransformTensor", backends.StatusExecutionFailed, err)
	}
	return nil
}

// transformFloat16 computes in float32 and rounds the result back to half precision.
func transformFloat16(alpha, beta float32, dims, srcStrides, dstStrides []int, src, dst []float16.Float16) {
	for srcOffset, dstOffset := range strided.Offsets(dims, srcStrides, dstStrides) {
		value := alpha * src[srcOffset].Float32()
		if beta != 0 {
			value += beta * dst[dstOffset].Float32()
		}
		dst[dstOffset] = float16.Fromfloat32(value)
	}
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
