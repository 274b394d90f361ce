// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensordesc defines Descriptor, the layout of a (possibly strided) tensor in device
// memory, and Scalar, the alpha/beta coefficients used when copying between layouts.
//
// A Descriptor holds the DType of the elements, the dimensions of each axis and the stride
// (in number of elements) used to step along each axis. Axis 0 is the outermost (slowest
// varying) axis.
//
// ## Glossary
//
//   - Packed: a layout with no gaps, where the stride of each axis equals the product of the
//     dimensions of the faster varying axes.
//   - Strided: a layout where some stride exceeds its packed value, e.g. a padded outer axis
//     or a slice of a larger tensor.
//
// Example: a tensor with dimensions [2 3 4] is packed with strides [12 4 1]. With strides
// [16 4 1] each outer slab is padded with 4 unused elements.
package tensordesc

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Descriptor describes the element type, dimensions and strides of a tensor.
//
// It is treated as immutable: methods that "change" it return a modified copy.
type Descriptor struct {
	DType   dtypes.DType
	Dims    []int
	Strides []int
}

// Make returns a Descriptor with the given values. The slices are cloned.
//
// It panics if dims and strides have different lengths, if they are empty, or if any
// dimension is <= 0: these are programming errors.
func Make(dtype dtypes.DType, dims, strides []int) Descriptor {
	d := Descriptor{DType: dtype, Dims: slices.Clone(dims), Strides: slices.Clone(strides)}
	if err := d.Validate(); err != nil {
		exceptions.Panicf("tensordesc.Make(%s): %v", d, err)
	}
	return d
}

// MakePacked returns a Descriptor with the given dimensions and fully packed strides.
func MakePacked(dtype dtypes.DType, dims ...int) Descriptor {
	return Make(dtype, dims, PackedStrides(dims))
}

// Validate returns an error if the descriptor breaks its invariants: at least one axis,
// one stride per dimension and positive dimensions.
func (d Descriptor) Validate() error {
	if len(d.Dims) == 0 {
		return errors.New("descriptor must have at least one axis")
	}
	if len(d.Dims) != len(d.Strides) {
		return errors.Errorf("descriptor has %d dimensions but %d strides", len(d.Dims), len(d.Strides))
	}
	for axis, dim := range d.Dims {
		if dim <= 0 {
			return errors.Errorf("descriptor axis %d has dimension %d <= 0", axis, dim)
		}
		if d.Strides[axis] <= 0 {
			return errors.Errorf("descriptor axis %d has stride %d <= 0", axis, d.Strides[axis])
		}
	}
	return nil
}

// Rank returns the number of axes.
func (d Descriptor) Rank() int { return len(d.Dims) }

// NumElements returns the number of logical elements, the product of the dimensions.
func (d Descriptor) NumElements() int {
	return product(d.Dims)
}

// IsFullyPacked returns whether the descriptor layout is packed. See IsFullyPacked.
func (d Descriptor) IsFullyPacked() bool {
	return IsFullyPacked(d.Dims, d.Strides)
}

// Packed returns a copy of the descriptor with the same dtype and dimensions, and fully
// packed strides.
func (d Descriptor) Packed() Descriptor {
	return Descriptor{DType: d.DType, Dims: slices.Clone(d.Dims), Strides: PackedStrides(d.Dims)}
}

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	return Descriptor{DType: d.DType, Dims: slices.Clone(d.Dims), Strides: slices.Clone(d.Strides)}
}

// Equal compares dtype, dimensions and strides.
func (d Descriptor) Equal(d2 Descriptor) bool {
	return d.DType == d2.DType && slices.Equal(d.Dims, d2.Dims) && slices.Equal(d.Strides, d2.Strides)
}

// SameShape returns whether d and d2 describe the same logical tensor: same dtype and
// dimensions, strides are not compared.
func (d Descriptor) SameShape(d2 Descriptor) bool {
	return d.DType == d2.DType && slices.Equal(d.Dims, d2.Dims)
}

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	return fmt.Sprintf("(%s)%v/%v", d.DType, d.Dims, d.Strides)
}

// MemorySize returns the number of bytes spanned by the tensor: dims[0] * strides[0] *
// sizeof(dtype).
//
// Only the outermost axis is used, inner axes are assumed to fit within strides[0].
// It panics if the descriptor has no axes.
func (d Descriptor) MemorySize() int {
	if len(d.Dims) == 0 {
		exceptions.Panicf("MemorySize(%s): descriptor has no dimensions", d)
	}
	if len(d.Dims) != len(d.Strides) {
		exceptions.Panicf("MemorySize(%s): %d dimensions but %d strides", d, len(d.Dims), len(d.Strides))
	}
	return d.Dims[0] * d.Strides[0] * int(d.DType.Memory())
}

// IsFullyPacked returns whether strides[0] == prod(dims[1:]).
//
// Only the outermost stride is checked: inner axes are always packed for the tensors
// handled here, overlapping or gapped inner strides are not supported.
func IsFullyPacked(dims, strides []int) bool {
	if len(dims) == 0 || len(strides) == 0 {
		return true
	}
	return strides[0] == product(dims[1:])
}

// PackedStrides returns the row-major packed strides for dims: the last axis has stride 1
// and each other axis the product of the dimensions after it.
func PackedStrides(dims []int) []int {
	strides := make([]int, len(dims))
	stride := 1
	for axis := len(dims) - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= dims[axis]
	}
	return strides
}

func product(values []int) int {
	p := 1
	for _, v := range values {
		p *= v
	}
	return p
}
