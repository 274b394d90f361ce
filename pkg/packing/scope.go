// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packing

import (
	"github.com/gomlx/packedtensor/backends"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"k8s.io/klog/v2"
)

// WithReadProxy creates a ReadProxy, calls fn with it, and closes it on every exit of fn,
// including panics, which are re-thrown.
//
// It returns fn's error, or else the error of closing the proxy.
func WithReadProxy(h *backends.Handle, desc backends.TensorDescriptor, data gpu.Ptr, force bool,
	fn func(p *ReadProxy) error) (err error) {
	p, err := NewReadProxy(h, desc, data, force)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if closeErr := p.Close(); closeErr != nil {
				klog.Errorf("ReadProxy: while unwinding panic: %v", closeErr)
			}
			panic(r)
		}
		closeErr := p.Close()
		if err == nil {
			err = closeErr
		}
	}()
	err = fn(p)
	return
}

// WithWriteProxy creates a WriteProxy and calls fn with it. If fn returns nil, the proxy is
// closed (copying back the output), and its error returned. If fn returns an error or
// panics, the proxy is aborted: the caller's tensor is not modified.
func WithWriteProxy(h *backends.Handle, desc backends.TensorDescriptor, data gpu.Ptr, beta float64, force bool,
	fn func(p *WriteProxy) error) (err error) {
	p, err := NewWriteProxy(h, desc, data, beta, force)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			p.Abort()
			panic(r)
		}
		p.Finalize(&err)
	}()
	err = fn(p)
	return
}
