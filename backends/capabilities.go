// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"maps"

	"github.com/gomlx/gopjrt/dtypes"
)

// Capabilities holds what is supported by a backend.
type Capabilities struct {
	// PackByDefault is the platform default of the packing policy: whether tensors should be
	// converted to a packed layout before being handed to the backend.
	PackByDefault bool

	// NativeTransform indicates CopyTensor is implemented by a native strided transform that is
	// correct on any layout, as opposed to a custom repack kernel.
	NativeTransform bool

	// DTypes list the data types supported by CopyTensor.
	// If not listed, it's assumed to be false, hence not supported.
	DTypes map[dtypes.DType]bool
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	c2 := c
	c2.DTypes = make(map[dtypes.DType]bool, len(c.DTypes))
	maps.Copy(c2.DTypes, c.DTypes)
	return c2
}

// SupportsDType returns whether CopyTensor supports the dtype.
func (c Capabilities) SupportsDType(dtype dtypes.DType) bool {
	return c.DTypes[dtype]
}
