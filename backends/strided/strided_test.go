// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package strided

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(dims, srcStrides, dstStrides []int, outerStart, outerEnd int) (src, dst []int) {
	for s, d := range OffsetsRange(dims, srcStrides, dstStrides, outerStart, outerEnd) {
		src = append(src, s)
		dst = append(dst, d)
	}
	return
}

func TestOffsets(t *testing.T) {
	src, dst := collect([]int{2, 2, 3}, []int{8, 4, 1}, []int{6, 3, 1}, 0, 2)
	assert.Equal(t, []int{0, 1, 2, 4, 5, 6, 8, 9, 10, 12, 13, 14}, src)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, dst)

	src, dst = collect([]int{3, 2}, []int{5, 1}, []int{2, 1}, 1, 3)
	assert.Equal(t, []int{5, 6, 10, 11}, src)
	assert.Equal(t, []int{2, 3, 4, 5}, dst)

	src, _ = collect([]int{4}, []int{3}, []int{1}, 0, 4)
	assert.Equal(t, []int{0, 3, 6, 9}, src)

	src, _ = collect([]int{4}, []int{3}, []int{1}, 2, 2)
	assert.Empty(t, src)

	// Early termination.
	count := 0
	for range Offsets([]int{10, 10}, []int{10, 1}, []int{10, 1}) {
		count++
		if count == 5 {
			break
		}
	}
	assert.Equal(t, 5, count)
}

func TestSpan(t *testing.T) {
	assert.Equal(t, 24, Span([]int{2, 3, 4}, []int{12, 4, 1}))
	assert.Equal(t, 28, Span([]int{2, 3, 4}, []int{16, 4, 1}))
	assert.Equal(t, 1, Span([]int{1}, []int{7}))
}

func TestTransform(t *testing.T) {
	dims := []int{2, 3}
	srcStrides := []int{4, 1}
	dstStrides := []int{3, 1}
	src := []float32{1, 2, 3, -1, 4, 5, 6, -1}

	nan := float32(math.NaN())
	dst := []float32{nan, nan, nan, nan, nan, nan}
	Transform(float32(1), 0, dims, srcStrides, dstStrides, src, dst)
	require.Equal(t, []float32{1, 2, 3, 4, 5, 6}, dst, "beta=0 must not read dst")

	Transform(float32(2), 0.5, dims, srcStrides, dstStrides, src, dst)
	assert.Equal(t, []float32{2.5, 5, 7.5, 10, 12.5, 15}, dst)

	Transform(float32(3), 0, dims, srcStrides, dstStrides, src, dst)
	assert.Equal(t, []float32{3, 6, 9, 12, 15, 18}, dst)

	// Back to the strided layout, padding untouched.
	back := []float64{0, 0, 0, 9, 0, 0, 0, 9}
	src64 := []float64{1, 2, 3, 4, 5, 6}
	Transform(1.0, 0.0, dims, dstStrides, srcStrides, src64, back)
	assert.Equal(t, []float64{1, 2, 3, 9, 4, 5, 6, 9}, back)

	partial := make([]float64, 6)
	TransformRange(1.0, 0.0, dims, srcStrides[:], dstStrides, []float64{1, 2, 3, -1, 4, 5, 6, -1}, partial, 1, 2)
	assert.Equal(t, []float64{0, 0, 0, 4, 5, 6}, partial)
}
