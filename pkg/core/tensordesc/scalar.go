// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensordesc

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// ScalarKind tags which representation a Scalar holds.
type ScalarKind int

const (
	// ScalarInvalid is the zero value: an uninitialized Scalar.
	ScalarInvalid ScalarKind = iota
	ScalarFloat32
	ScalarFloat64
)

// String implements fmt.Stringer.
func (k ScalarKind) String() string {
	switch k {
	case ScalarFloat32:
		return "float32"
	case ScalarFloat64:
		return "float64"
	default:
		return "invalid"
	}
}

// Scalar is a host value passed as the alpha or beta coefficient of a tensor copy.
//
// It holds either a single or a double precision value, tagged by Kind. Half precision
// coefficients are always widened to single precision by the backend that builds them.
type Scalar struct {
	kind ScalarKind
	f32  float32
	f64  float64
}

// Float32Scalar returns a single precision Scalar.
func Float32Scalar(v float32) Scalar {
	return Scalar{kind: ScalarFloat32, f32: v}
}

// Float64Scalar returns a double precision Scalar.
func Float64Scalar(v float64) Scalar {
	return Scalar{kind: ScalarFloat64, f64: v}
}

// Kind returns the representation held.
func (s Scalar) Kind() ScalarKind { return s.kind }

// Float32 returns the single precision value. It panics if Kind is not ScalarFloat32.
func (s Scalar) Float32() float32 {
	if s.kind != ScalarFloat32 {
		exceptions.Panicf("Scalar.Float32() called on a %s scalar", s.kind)
	}
	return s.f32
}

// Float64 returns the double precision value. It panics if Kind is not ScalarFloat64.
func (s Scalar) Float64() float64 {
	if s.kind != ScalarFloat64 {
		exceptions.Panicf("Scalar.Float64() called on a %s scalar", s.kind)
	}
	return s.f64
}

// Value returns the value widened to float64, whatever its kind.
func (s Scalar) Value() float64 {
	switch s.kind {
	case ScalarFloat32:
		return float64(s.f32)
	case ScalarFloat64:
		return s.f64
	}
	exceptions.Panicf("Scalar.Value() called on an invalid scalar")
	return 0
}

// IsZero returns whether the value is 0.
func (s Scalar) IsZero() bool {
	return s.Value() == 0
}

// String implements fmt.Stringer.
func (s Scalar) String() string {
	switch s.kind {
	case ScalarFloat32:
		return fmt.Sprintf("%g(float32)", s.f32)
	case ScalarFloat64:
		return fmt.Sprintf("%g(float64)", s.f64)
	}
	return "<invalid scalar>"
}
