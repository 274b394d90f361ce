// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package repack

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/packedtensor/backends/strided"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"golang.org/x/exp/constraints"
)

var repackDispatcher = NewDTypeDispatcher("TensorRepack")

func init() {
	repackDispatcher.Register(dtypes.Float32, repackKernel[float32])
}

// repackKernel writes dst = alpha*src + beta*dst for one range of the outermost axis.
// Different ranges touch disjoint destination elements, so they can run in parallel.
func repackKernel[T constraints.Float](args *kernelArgs, outerStart, outerEnd int) {
	strided.TransformRange(T(args.alpha), T(args.beta), args.dims, args.srcStrides, args.dstStrides,
		gpu.FromBytes[T](args.src), gpu.FromBytes[T](args.dst), outerStart, outerEnd)
}
