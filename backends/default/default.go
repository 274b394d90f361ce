// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default includes the default backends, namely "repack" and "transform".
//
// To use it simply include:
//
//	import _ "github.com/gomlx/packedtensor/backends/default"
//
// Packages are initialized in import path order, so "repack" is the first registered
// backend, and the one used by backends.New() if neither DISTCONV_BACKEND nor
// backends.DefaultConfig are set.
package _default

import (
	_ "github.com/gomlx/packedtensor/backends/repack"
	_ "github.com/gomlx/packedtensor/backends/transform"
)
