// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packing

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/packedtensor/backends"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"github.com/pkg/errors"
)

// ReadProxy presents an input tensor to a backend in a packed layout, if the packing
// policy requires it.
//
// It must be closed with Close, usually with a defer, or used through WithReadProxy.
type ReadProxy struct {
	*proxy
}

// NewReadProxyDescriptor creates a descriptor-only ReadProxy: it decides on packing and
// creates the packed descriptor, but has no data (Ptr returns 0).
//
// It is used to query a backend about tensors before the data is available (e.g.: for
// workspace sizes).
func NewReadProxyDescriptor(backend backends.Backend, desc backends.TensorDescriptor, force bool) (*ReadProxy, error) {
	p := &ReadProxy{newProxy("ReadProxy", backend, nil, desc, 0)}
	if err := p.decide(force); err != nil {
		return nil, p.releaseAfterFailure(err)
	}
	return p, nil
}

// NewReadProxy creates a ReadProxy for the tensor described by desc with the given data.
//
// If the tensor is converted, a scratch buffer is allocated from the handle's allocator
// and the tensor is copied into it on the handle's stream. If anything fails, whatever was
// already created is released, and the error is returned.
//
// force requests packing regardless of the packing policy.
func NewReadProxy(h *backends.Handle, desc backends.TensorDescriptor, data gpu.Ptr, force bool) (*ReadProxy, error) {
	if h == nil {
		exceptions.Panicf("packing.NewReadProxy(): nil handle")
	}
	p := &ReadProxy{newProxy("ReadProxy", h.Backend(), h, desc, data)}
	if err := p.decide(force); err != nil {
		return nil, p.releaseAfterFailure(err)
	}
	if !p.Converted() {
		return p, nil
	}
	if err := p.allocate(); err != nil {
		return nil, p.releaseAfterFailure(err)
	}
	if err := CopyTensor(h, 1, 0, p.unpackedDesc, p.unpackedPtr, p.packedDesc, p.packedPtr); err != nil {
		return nil, p.releaseAfterFailure(errors.WithMessage(err, "ReadProxy: packing input"))
	}
	return p, nil
}

// Close releases the scratch buffer and the packed descriptor, if they were created.
//
// It returns an error if the packed descriptor could not be destroyed. It panics if the
// scratch buffer could not be freed, or if the proxy was already closed.
func (p *ReadProxy) Close() error {
	p.checkAlive("Close")
	return p.release()
}
