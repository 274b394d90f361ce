// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packing

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/packedtensor/backends"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CopyTensor computes dst = alpha*src + beta*dst element-wise over the logical shape of the
// tensors, using the backend of the handle. The layouts of src and dst may differ.
//
// The copy is enqueued on the handle's stream. The scalars are converted with
// Backend.ScalarFor, so half precision tensors use single precision coefficients.
//
// It panics if the descriptors have different dtypes or dimensions.
func CopyTensor(h *backends.Handle, alpha, beta float64,
	srcDesc backends.TensorDescriptor, src gpu.Ptr, dstDesc backends.TensorDescriptor, dst gpu.Ptr) error {
	backend := h.Backend()
	srcDetails, err := backend.TensorDescriptorDetails(srcDesc)
	if err != nil {
		return errors.WithMessage(err, "CopyTensor() source")
	}
	dstDetails, err := backend.TensorDescriptorDetails(dstDesc)
	if err != nil {
		return errors.WithMessage(err, "CopyTensor() destination")
	}
	if !srcDetails.SameShape(dstDetails) {
		exceptions.Panicf("packing.CopyTensor(): source %s and destination %s must have the same dtype and dimensions",
			srcDetails, dstDetails)
	}
	alphaScalar, err := backend.ScalarFor(srcDetails.DType, alpha)
	if err != nil {
		return errors.WithMessage(err, "CopyTensor()")
	}
	betaScalar, err := backend.ScalarFor(srcDetails.DType, beta)
	if err != nil {
		return errors.WithMessage(err, "CopyTensor()")
	}
	klog.V(1).Infof("CopyTensor(alpha=%s, %s@%#x -> beta=%s, %s@%#x, %s)",
		alphaScalar, srcDetails, uintptr(src), betaScalar, dstDetails, uintptr(dst), h.Stream())
	return backend.CopyTensor(h, alphaScalar, srcDesc, src, betaScalar, dstDesc, dst)
}

// PackedDescriptorFor returns a descriptor with the same dtype and dimensions as desc, and
// packed strides.
//
// If desc is already packed, it is returned with owned=false. Otherwise, a new descriptor
// is created with the backend and owned=true: the caller must destroy it.
func PackedDescriptorFor(backend backends.Backend, desc backends.TensorDescriptor) (
	packed backends.TensorDescriptor, owned bool, err error) {
	details, err := backend.TensorDescriptorDetails(desc)
	if err != nil {
		return nil, false, err
	}
	if details.IsFullyPacked() {
		return desc, false, nil
	}
	packed, err = backend.CreateTensorDescriptor(details.Packed())
	if err != nil {
		return nil, false, errors.WithMessagef(err, "creating packed descriptor for %s", details)
	}
	return packed, true, nil
}
