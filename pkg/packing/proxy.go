// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packing

import (
	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/packedtensor/backends"
	"github.com/gomlx/packedtensor/pkg/core/tensordesc"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// proxy holds what is common to ReadProxy and WriteProxy.
type proxy struct {
	kind    string
	backend backends.Backend
	handle  *backends.Handle // nil for descriptor-only proxies.

	unpackedDesc backends.TensorDescriptor
	unpackedPtr  gpu.Ptr
	packedDesc   backends.TensorDescriptor
	packedPtr    gpu.Ptr
	packedLayout tensordesc.Descriptor

	ownsDesc, ownsPtr bool
	state             State
}

func newProxy(kind string, backend backends.Backend, h *backends.Handle, desc backends.TensorDescriptor, data gpu.Ptr) *proxy {
	if backend == nil {
		exceptions.Panicf("packing.New%s(): nil backend", kind)
	}
	return &proxy{
		kind:         kind,
		backend:      backend,
		handle:       h,
		unpackedDesc: desc,
		unpackedPtr:  data,
		packedDesc:   desc,
		packedPtr:    data,
		state:        StateCreated,
	}
}

func (p *proxy) setState(next State) {
	if !p.state.validTransition(next) {
		exceptions.Panicf("%s: invalid state transition %s -> %s", p.kind, p.state, next)
	}
	klog.V(2).Infof("%s(%s): %s -> %s", p.kind, p.packedLayout, p.state, next)
	p.state = next
}

// checkAlive panics if the proxy was already finalized.
func (p *proxy) checkAlive(method string) {
	if p.state == StateFinalized {
		exceptions.Panicf("%s.%s() called on a finalized proxy", p.kind, method)
	}
}

// decide evaluates the packing policy and, if a conversion is required, creates the
// owned packed descriptor.
//
// A forced conversion of an already packed tensor still gets a distinct descriptor and
// scratch buffer, so the backend never sees the caller's memory.
func (p *proxy) decide(force bool) error {
	details, err := p.backend.TensorDescriptorDetails(p.unpackedDesc)
	if err != nil {
		return errors.WithMessagef(err, "%s", p.kind)
	}
	p.packedLayout = details
	convert := ShouldPack(p.backend, force) && (force || !details.IsFullyPacked())
	p.setState(StatePolicyDecided)
	if !convert {
		p.setState(StateIdentity)
		return nil
	}

	var packed backends.TensorDescriptor
	owned := true
	if details.IsFullyPacked() {
		packed, err = p.backend.CreateTensorDescriptor(details.Packed())
	} else {
		packed, owned, err = PackedDescriptorFor(p.backend, p.unpackedDesc)
	}
	if err != nil {
		return errors.WithMessagef(err, "%s", p.kind)
	}
	p.packedDesc, p.ownsDesc = packed, owned
	p.packedLayout = details.Packed()
	p.setState(StateConverted)
	return nil
}

// allocate the scratch buffer for the packed tensor.
func (p *proxy) allocate() error {
	if p.state != StateConverted || p.handle == nil {
		return nil
	}
	size := p.packedLayout.MemorySize()
	ptr, err := p.handle.Allocator().Allocate(size, p.handle.Stream())
	if err != nil {
		return errors.WithMessagef(err, "%s: allocating %s for %s", p.kind, humanize.IBytes(uint64(size)), p.packedLayout)
	}
	p.packedPtr, p.ownsPtr = ptr, true
	klog.V(1).Infof("%s: allocated %s at %#x for %s", p.kind, humanize.IBytes(uint64(size)), uintptr(ptr), p.packedLayout)
	return nil
}

// release frees the owned scratch buffer and destroys the owned descriptor, and marks the
// proxy finalized.
//
// A failure to free the scratch buffer is a lifecycle bug, and panics.
func (p *proxy) release() error {
	if p.ownsPtr {
		if err := p.handle.Allocator().Free(p.packedPtr); err != nil {
			exceptions.Panicf("%s: failed to free scratch buffer %#x: %+v", p.kind, uintptr(p.packedPtr), err)
		}
		klog.V(1).Infof("%s: freed scratch buffer %#x", p.kind, uintptr(p.packedPtr))
		p.ownsPtr = false
	}
	var err error
	if p.ownsDesc {
		err = p.backend.DestroyTensorDescriptor(p.packedDesc)
		if err != nil {
			err = errors.WithMessagef(err, "%s: destroying packed descriptor", p.kind)
		}
		p.ownsDesc = false
	}
	p.packedDesc, p.packedPtr = nil, 0
	p.setState(StateFinalized)
	return err
}

// releaseAfterFailure undoes a partial construction, returning the original error.
func (p *proxy) releaseAfterFailure(cause error) error {
	if p.state == StatePolicyDecided || p.state == StateCreated {
		// Nothing was created yet.
		p.state = StateFinalized
		return cause
	}
	if err := p.release(); err != nil {
		klog.Errorf("%s: while releasing after failure (%v): %v", p.kind, cause, err)
	}
	return cause
}

// Descriptor returns the descriptor to hand to the backend: the packed one if the tensor
// was converted, the caller's one otherwise.
func (p *proxy) Descriptor() backends.TensorDescriptor {
	p.checkAlive("Descriptor")
	return p.packedDesc
}

// Ptr returns the data to hand to the backend: the scratch buffer if the tensor was
// converted, the caller's data otherwise. It is 0 for descriptor-only proxies.
func (p *proxy) Ptr() gpu.Ptr {
	p.checkAlive("Ptr")
	return p.packedPtr
}

// Converted returns whether the tensor is being converted to a packed layout.
func (p *proxy) Converted() bool {
	p.checkAlive("Converted")
	return p.state == StateConverted
}

// Layout returns the dtype, dimensions and strides of Descriptor().
func (p *proxy) Layout() tensordesc.Descriptor {
	p.checkAlive("Layout")
	return p.packedLayout.Clone()
}

// State returns the current state of the proxy. It can be called after finalization.
func (p *proxy) State() State {
	return p.state
}
