// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"github.com/gomlx/packedtensor/pkg/gpu/allocator"
)

// Handle is the execution context of backend operations: the backend, the stream where
// operations are enqueued and the allocator used for scratch memory.
//
// A Handle is cheap and can be shared, but its stream orders everything issued through it.
type Handle struct {
	backend   Backend
	stream    *gpu.Stream
	allocator *allocator.CachingAllocator
}

// NewHandle creates a Handle. stream may be nil, in which case operations are synchronous.
//
// It panics if the stream and the allocator belong to different devices.
func NewHandle(backend Backend, stream *gpu.Stream, alloc *allocator.CachingAllocator) *Handle {
	if backend == nil || alloc == nil {
		exceptions.Panicf("backends.NewHandle(): backend and allocator must be given")
	}
	if stream != nil && stream.Device() != alloc.Device() {
		exceptions.Panicf("backends.NewHandle(): %s is on device %s, but the allocator uses device %s",
			stream, stream.Device(), alloc.Device())
	}
	return &Handle{backend: backend, stream: stream, allocator: alloc}
}

// NewDefaultHandle creates a Handle using the process-wide default allocator.
func NewDefaultHandle(backend Backend, stream *gpu.Stream) *Handle {
	return NewHandle(backend, stream, allocator.Default())
}

// Backend of the handle.
func (h *Handle) Backend() Backend { return h.backend }

// Stream where operations are enqueued. It may be nil (synchronous).
func (h *Handle) Stream() *gpu.Stream { return h.stream }

// Allocator of scratch memory.
func (h *Handle) Allocator() *allocator.CachingAllocator { return h.allocator }

// Device where memory lives and operations run.
func (h *Handle) Device() *gpu.Device { return h.allocator.Device() }
