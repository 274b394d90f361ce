// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package packing lets callers hand arbitrarily strided tensors to backends that may only
// work correctly on fully packed ones.
//
// A ReadProxy wraps an input tensor: if the packing policy (see ShouldPack) requires it and
// the tensor is not packed, it copies the tensor into a packed scratch buffer. A WriteProxy
// wraps an output tensor: the backend writes into the packed scratch buffer, and it is
// copied back into the caller's layout when the proxy is closed on the normal path.
//
// When no conversion is needed the proxies alias the caller's descriptor and data, and
// cost nothing.
//
// Typical use:
//
//	err := packing.WithWriteProxy(h, yDesc, y, beta, false, func(yProxy *packing.WriteProxy) error {
//		return packing.WithReadProxy(h, xDesc, x, false, func(xProxy *packing.ReadProxy) error {
//			return someOperation(h, xProxy.Descriptor(), xProxy.Ptr(), beta, yProxy.Descriptor(), yProxy.Ptr())
//		})
//	})
//
// Proxies are not safe for concurrent use.
package packing
