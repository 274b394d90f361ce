// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packing

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/packedtensor/backends"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// WriteProxy presents an output tensor to a backend in a packed layout, if the packing
// policy requires it. The result is copied back to the caller's tensor by Close.
//
// On the normal path finish it with Close. On an error path finish it with Abort, which
// skips the copy-back and leaves the caller's tensor untouched. Finalize and
// WithWriteProxy choose between the two.
type WriteProxy struct {
	*proxy

	// seeded is true if the scratch buffer was initialized with the caller's tensor,
	// because the operation writing to it accumulates (beta != 0).
	seeded bool
}

// NewWriteProxyDescriptor creates a descriptor-only WriteProxy, see NewReadProxyDescriptor.
func NewWriteProxyDescriptor(backend backends.Backend, desc backends.TensorDescriptor, force bool) (*WriteProxy, error) {
	p := &WriteProxy{proxy: newProxy("WriteProxy", backend, nil, desc, 0)}
	if err := p.decide(force); err != nil {
		return nil, p.releaseAfterFailure(err)
	}
	return p, nil
}

// NewWriteProxy creates a WriteProxy for the tensor described by desc with the given data.
//
// beta is the coefficient the operation writing to the proxy applies to the previous
// contents of the output: if it is not 0, the scratch buffer is initialized with a copy
// of the caller's tensor. If anything fails, whatever was already created is released,
// and the error is returned.
//
// force requests packing regardless of the packing policy.
func NewWriteProxy(h *backends.Handle, desc backends.TensorDescriptor, data gpu.Ptr, beta float64, force bool) (*WriteProxy, error) {
	if h == nil {
		exceptions.Panicf("packing.NewWriteProxy(): nil handle")
	}
	p := &WriteProxy{proxy: newProxy("WriteProxy", h.Backend(), h, desc, data)}
	if err := p.decide(force); err != nil {
		return nil, p.releaseAfterFailure(err)
	}
	if !p.Converted() {
		return p, nil
	}
	if err := p.allocate(); err != nil {
		return nil, p.releaseAfterFailure(err)
	}
	if beta != 0 {
		if err := CopyTensor(h, 1, 0, p.unpackedDesc, p.unpackedPtr, p.packedDesc, p.packedPtr); err != nil {
			return nil, p.releaseAfterFailure(errors.WithMessage(err, "WriteProxy: seeding output"))
		}
		p.seeded = true
	}
	return p, nil
}

// Seeded returns whether the scratch buffer was initialized with the caller's tensor.
func (p *WriteProxy) Seeded() bool {
	p.checkAlive("Seeded")
	return p.seeded
}

// Close finishes the proxy on the normal path: if the tensor was converted, the scratch
// buffer is copied back to the caller's tensor (on the handle's stream), and then the
// scratch buffer and the packed descriptor are released, even if the copy-back failed.
//
// It returns the copy-back error, if any, or else an error destroying the packed
// descriptor. It panics if the proxy was already finalized.
func (p *WriteProxy) Close() error {
	p.checkAlive("Close")
	var copyErr error
	if p.state == StateConverted && p.handle != nil {
		copyErr = CopyTensor(p.handle, 1, 0, p.packedDesc, p.packedPtr, p.unpackedDesc, p.unpackedPtr)
		if copyErr != nil {
			copyErr = errors.WithMessage(copyErr, "WriteProxy: copying back output")
		}
	}
	releaseErr := p.release()
	if copyErr != nil {
		if releaseErr != nil {
			klog.Errorf("WriteProxy: %v", releaseErr)
		}
		return copyErr
	}
	return releaseErr
}

// Abort finishes the proxy on an error path: the copy-back is skipped, so the caller's
// tensor is not modified, and the scratch buffer and the packed descriptor are released.
// It panics if the proxy was already finalized.
func (p *WriteProxy) Abort() {
	p.checkAlive("Abort")
	if p.state == StateConverted {
		klog.V(2).Infof("WriteProxy(%s): aborted, skipping copy-back", p.packedLayout)
	}
	if err := p.release(); err != nil {
		klog.Errorf("WriteProxy: while aborting: %v", err)
	}
}

// Finalize calls Abort if *errp is not nil, or Close otherwise, storing its error in *errp.
// It is meant to be deferred from a function with a named error result:
//
//	func f(...) (err error) {
//		p, err := packing.NewWriteProxy(h, desc, data, beta, false)
//		if err != nil {
//			return err
//		}
//		defer p.Finalize(&err)
//		...
//	}
//
// A panic is not seen as an error by Finalize: use WithWriteProxy if fn may panic.
func (p *WriteProxy) Finalize(errp *error) {
	if *errp != nil {
		p.Abort()
		return
	}
	*errp = p.Close()
}
