// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package strided implements the element-wise iteration over two layouts of the same
// logical tensor, used by the backends to implement the alpha/beta tensor copy.
//
// Offsets and strides are in number of elements, not bytes.
package strided

import (
	"iter"

	"golang.org/x/exp/constraints"
)

// Span returns the number of elements between the first and the last element (inclusive)
// of a tensor with the given dimensions and strides.
func Span(dims, strides []int) int {
	span := 1
	for axis, dim := range dims {
		span += (dim - 1) * strides[axis]
	}
	return span
}

// Offsets iterates over every logical index of a tensor with the given dimensions, in
// row-major order, yielding the offset of the element in the source and in the
// destination layouts.
func Offsets(dims, srcStrides, dstStrides []int) iter.Seq2[int, int] {
	if len(dims) == 0 {
		return func(func(int, int) bool) {}
	}
	return OffsetsRange(dims, srcStrides, dstStrides, 0, dims[0])
}

// OffsetsRange is like Offsets, but only for indices with the outermost axis in [outerStart, outerEnd).
func OffsetsRange(dims, srcStrides, dstStrides []int, outerStart, outerEnd int) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		rank := len(dims)
		if rank == 0 || outerStart >= outerEnd {
			return
		}
		for _, dim := range dims {
			if dim <= 0 {
				return
			}
		}
		indices := make([]int, rank)
		indices[0] = outerStart
		srcOffset, dstOffset := outerStart*srcStrides[0], outerStart*dstStrides[0]
		for {
			if !yield(srcOffset, dstOffset) {
				return
			}
			// Increment indices, the last axis is the fastest.
			axis := rank - 1
			for ; axis >= 0; axis-- {
				indices[axis]++
				srcOffset += srcStrides[axis]
				dstOffset += dstStrides[axis]
				if axis == 0 {
					if indices[0] < outerEnd {
						break
					}
					return
				}
				if indices[axis] < dims[axis] {
					break
				}
				// Carry over to the next outer axis.
				srcOffset -= indices[axis] * srcStrides[axis]
				dstOffset -= indices[axis] * dstStrides[axis]
				indices[axis] = 0
			}
		}
	}
}

// Transform computes dst = alpha*src + beta*dst over the logical elements. If beta is 0,
// dst is not read, so it may hold uninitialized values (NaNs included).
func Transform[T constraints.Float](alpha, beta T, dims, srcStrides, dstStrides []int, src, dst []T) {
	if len(dims) == 0 {
		return
	}
	TransformRange(alpha, beta, dims, srcStrides, dstStrides, src, dst, 0, dims[0])
}

// TransformRange is like Transform, restricted to the outermost axis range [outerStart, outerEnd).
func TransformRange[T constraints.Float](alpha, beta T, dims, srcStrides, dstStrides []int, src, dst []T,
	outerStart, outerEnd int) {
	offsets := OffsetsRange(dims, srcStrides, dstStrides, outerStart, outerEnd)
	switch {
	case alpha == 1 && beta == 0:
		for srcOffset, dstOffset := range offsets {
			dst[dstOffset] = src[srcOffset]
		}
	case beta == 0:
		for srcOffset, dstOffset := range offsets {
			dst[dstOffset] = alpha * src[srcOffset]
		}
	default:
		for srcOffset, dstOffset := range offsets {
			dst[dstOffset] = alpha*src[srcOffset] + beta*dst[dstOffset]
		}
	}
}
