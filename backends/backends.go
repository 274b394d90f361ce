// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface a DNN backend needs to implement to consume
// (packed) tensors: tensor descriptor handles, the alpha/beta strided copy primitive and
// the capabilities that drive the packing policy.
//
// Two backend families are provided, and exactly one is selected at startup (see New):
//
//   - "transform" (package backends/transform): its native strided transform is correct
//     on any layout, so packing is opt-in.
//   - "repack" (package backends/repack): it has no layout-safe native transform and
//     uses a custom repack kernel instead, so packing is opt-out.
//
// Backends return errors (see BackendCallError and ErrUnsupportedDataType), and only panic
// for invariant violations (programming errors).
package backends

import (
	"os"
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/packedtensor/pkg/core/tensordesc"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TensorDescriptor is an opaque handle to a backend tensor descriptor.
//
// Handles are comparable: two handles are the same descriptor iff they are equal.
// Handles created with Backend.CreateTensorDescriptor must be destroyed exactly once with
// Backend.DestroyTensorDescriptor.
type TensorDescriptor any

// Backend is the API that needs to be implemented by a DNN backend.
type Backend interface {
	// Name returns the short name of the backend, as used in DISTCONV_BACKEND. E.g.: "repack".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Capabilities returns what the backend supports, and whether tensors should be packed by default.
	Capabilities() Capabilities

	// DataTypeSize returns the size in bytes of one element of dtype, or an error wrapping
	// ErrUnsupportedDataType.
	DataTypeSize(dtype dtypes.DType) (int, error)

	// ScalarFor returns the alpha/beta Scalar representation used by the backend for
	// tensors of the given dtype, or an error wrapping ErrUnsupportedDataType.
	ScalarFor(dtype dtypes.DType, value float64) (tensordesc.Scalar, error)

	// CreateTensorDescriptor creates a new descriptor handle.
	CreateTensorDescriptor(desc tensordesc.Descriptor) (TensorDescriptor, error)

	// DestroyTensorDescriptor releases a handle created by CreateTensorDescriptor.
	DestroyTensorDescriptor(handle TensorDescriptor) error

	// TensorDescriptorDetails returns the dtype, dimensions and strides of a handle.
	TensorDescriptorDetails(handle TensorDescriptor) (tensordesc.Descriptor, error)

	// LiveDescriptors returns the number of handles created and not yet destroyed.
	LiveDescriptors() int

	// CopyTensor computes dst = alpha*src + beta*dst, element-wise over the logical shape.
	//
	// srcDesc and dstDesc must have the same dtype and dimensions, strides may differ.
	// The operation is enqueued on h.Stream(), and is synchronous if the stream is nil.
	CopyTensor(h *Handle, alpha tensordesc.Scalar, srcDesc TensorDescriptor, src gpu.Ptr,
		beta tensordesc.Scalar, dstDesc TensorDescriptor, dst gpu.Ptr) error

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List returns the names of the registered backends, sorted.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the name of the default backend configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// DISTCONV_BACKEND is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>[:<backend_configuration>]".
const DISTCONV_BACKEND = "DISTCONV_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment DISTCONV_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
func New() (Backend, error) {
	config, found := os.LookupEnv(DISTCONV_BACKEND)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configuration string formatted as "<backend_name>[:<backend_configuration>]".
// The "<backend_name>" is the name of a registered backend (e.g.: "repack") and
// "<backend_configuration>" is backend specific.
//
// An empty backend name selects the first registered backend.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.Errorf(`no registered backends -- maybe import the default ones with import _ "github.com/gomlx/packedtensor/backends/default"?`)
	}
	backendName, backendConfig := config, ""
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	}
	if backendName == "" {
		backendName = firstRegistered
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given, registered backends: %v",
			backendName, config, List())
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "creating backend %q with configuration %q", backendName, backendConfig)
	}
	klog.V(1).Infof("using backend %q (%s)", backend.Name(), backend.Description())
	return backend, nil
}

// ParseConfig splits a backend configuration string of comma-separated "key=value" (or
// "key") options into a map.
func ParseConfig(config string) map[string]string {
	options := make(map[string]string)
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		options[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return options
}
