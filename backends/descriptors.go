// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"sync"

	"github.com/gomlx/packedtensor/pkg/core/tensordesc"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type descriptorHandle struct {
	id   uint64
	desc tensordesc.Descriptor
}

// DescriptorTable implements the life-cycle of TensorDescriptor handles for a backend:
// create, query and destroy, and counts live handles to catch leaks.
//
// Backends embed it (see Backend.CreateTensorDescriptor and friends). It is safe for
// concurrent use.
type DescriptorTable struct {
	backendName string
	supported   func(desc tensordesc.Descriptor) error

	mu     sync.Mutex
	nextID uint64
	live   map[*descriptorHandle]struct{}
}

// NewDescriptorTable creates a table for the named backend. supported, if not nil, is called
// to validate descriptors at creation, on top of the structural checks.
func NewDescriptorTable(backendName string, supported func(desc tensordesc.Descriptor) error) *DescriptorTable {
	return &DescriptorTable{
		backendName: backendName,
		supported:   supported,
		live:        make(map[*descriptorHandle]struct{}),
	}
}

// CreateTensorDescriptor implements Backend.CreateTensorDescriptor.
func (t *DescriptorTable) CreateTensorDescriptor(desc tensordesc.Descriptor) (TensorDescriptor, error) {
	if err := desc.Validate(); err != nil {
		return nil, NewCallError(t.backendName, "CreateTensorDescriptor", StatusBadParam, err)
	}
	if t.supported != nil {
		if err := t.supported(desc); err != nil {
			return nil, NewCallError(t.backendName, "CreateTensorDescriptor", StatusNotSupported, err)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	h := &descriptorHandle{id: t.nextID, desc: desc.Clone()}
	t.live[h] = struct{}{}
	klog.V(2).Infof("%s: created tensor descriptor #%d %s", t.backendName, h.id, h.desc)
	return h, nil
}

// DestroyTensorDescriptor implements Backend.DestroyTensorDescriptor.
func (t *DescriptorTable) DestroyTensorDescriptor(handle TensorDescriptor) error {
	h, err := t.lookup("DestroyTensorDescriptor", handle)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.live, h)
	klog.V(2).Infof("%s: destroyed tensor descriptor #%d", t.backendName, h.id)
	return nil
}

// TensorDescriptorDetails implements Backend.TensorDescriptorDetails.
func (t *DescriptorTable) TensorDescriptorDetails(handle TensorDescriptor) (tensordesc.Descriptor, error) {
	h, err := t.lookup("TensorDescriptorDetails", handle)
	if err != nil {
		return tensordesc.Descriptor{}, err
	}
	return h.desc.Clone(), nil
}

// LiveDescriptors implements Backend.LiveDescriptors.
func (t *DescriptorTable) LiveDescriptors() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

func (t *DescriptorTable) lookup(call string, handle TensorDescriptor) (*descriptorHandle, error) {
	h, ok := handle.(*descriptorHandle)
	if !ok || h == nil {
		return nil, NewCallError(t.backendName, call, StatusBadParam,
			errors.Errorf("%T is not a tensor descriptor handle", handle))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, found := t.live[h]; !found {
		return nil, NewCallError(t.backendName, call, StatusBadParam,
			errors.Errorf("tensor descriptor #%d was destroyed or belongs to another backend", h.id))
	}
	return h, nil
}

// CopyOperands returns the details of the source and destination descriptors of a
// CopyTensor call, checking that they describe the same logical tensor.
func (t *DescriptorTable) CopyOperands(srcHandle, dstHandle TensorDescriptor) (src, dst tensordesc.Descriptor, err error) {
	src, err = t.TensorDescriptorDetails(srcHandle)
	if err != nil {
		return
	}
	dst, err = t.TensorDescriptorDetails(dstHandle)
	if err != nil {
		return
	}
	if !src.SameShape(dst) {
		err = NewCallError(t.backendName, "CopyTensor", StatusBadParam,
			errors.Errorf("source %s and destination %s have different dtypes or dimensions", src, dst))
	}
	return
}
