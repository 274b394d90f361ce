// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnsupportedDataType is wrapped by errors of operations requested for a data type the
// backend has no path for.
var ErrUnsupportedDataType = errors.New("unsupported data type")

// Status of a backend call, modeled after the status codes of DNN libraries.
type Status int

//go:generate go tool enumer -type=Status -trimprefix=Status -transform=snake-upper -output=gen_status_enumer.go errors.go

const (
	StatusSuccess Status = iota
	StatusNotInitialized
	StatusBadParam
	StatusNotSupported
	StatusAllocFailed
	StatusExecutionFailed
	StatusInternalError
)

// BackendCallError is returned when a backend call fails. It wraps the cause, if any.
type BackendCallError struct {
	Backend string
	Call    string
	Status  Status
	Err     error
}

// NewCallError creates a BackendCallError. cause may be nil.
func NewCallError(backend, call string, status Status, cause error) *BackendCallError {
	return &BackendCallError{Backend: backend, Call: call, Status: status, Err: cause}
}

// Error implements error.
func (e *BackendCallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed with status %s", e.Backend, e.Call, e.Status)
	}
	return fmt.Sprintf("%s: %s failed with status %s: %v", e.Backend, e.Call, e.Status, e.Err)
}

// Unwrap returns the cause.
func (e *BackendCallError) Unwrap() error { return e.Err }

// StatusOf returns the Status of err if it is (or wraps) a BackendCallError,
// StatusSuccess for nil, and StatusInternalError otherwise.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var callErr *BackendCallError
	if errors.As(err, &callErr) {
		return callErr.Status
	}
	return StatusInternalError
}
