// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package repack

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/packedtensor/backends"
	"github.com/pkg/errors"
)

// kernelArgs are the parameters of a repack kernel launch.
type kernelArgs struct {
	alpha, beta float64
	dims        []int
	srcStrides  []int
	dstStrides  []int
	src, dst    []byte
}

// kernelFn is the type of the per-dtype kernels the DTypeDispatcher handles. It processes
// only the indices whose outermost axis is in [outerStart, outerEnd).
type kernelFn func(args *kernelArgs, outerStart, outerEnd int)

// MaxDTypes is the upper bound (exclusive) of dtypes.DType values a dispatcher can hold.
const MaxDTypes = 32

// DTypeDispatcher maps a dtype to the kernel implementing it.
type DTypeDispatcher struct {
	Name  string
	fnMap [MaxDTypes]kernelFn
}

// NewDTypeDispatcher creates a new dispatcher for a class of kernels.
func NewDTypeDispatcher(name string) *DTypeDispatcher {
	return &DTypeDispatcher{
		Name: name,
	}
}

// Lookup returns the kernel for dtype, or an error wrapping backends.ErrUnsupportedDataType.
func (d *DTypeDispatcher) Lookup(dtype dtypes.DType) (kernelFn, error) {
	if dtype < 0 || dtype >= MaxDTypes || d.fnMap[dtype] == nil {
		return nil, errors.Wrapf(backends.ErrUnsupportedDataType, "%s: dtype %s not supported", d.Name, dtype)
	}
	return d.fnMap[dtype], nil
}

// Register a kernel to handle a specific dtype.
// This overwrites any previous setting for the same dtype.
func (d *DTypeDispatcher) Register(dtype dtypes.DType, fn kernelFn) {
	if dtype < 0 || dtype >= MaxDTypes {
		panic(errors.Errorf("%s: cannot register dtype %s", d.Name, dtype))
	}
	d.fnMap[dtype] = fn
}

// Supported returns the dtypes with a registered kernel.
func (d *DTypeDispatcher) Supported() []dtypes.DType {
	var supported []dtypes.DType
	for dtype, fn := range d.fnMap {
		if fn != nil {
			supported = append(supported, dtypes.DType(dtype))
		}
	}
	return supported
}
