// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"os"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/packedtensor/pkg/core/tensordesc"
	"github.com/gomlx/packedtensor/pkg/gpu"
	"github.com/gomlx/packedtensor/pkg/gpu/allocator"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	assert.Empty(t, ParseConfig(""))
	assert.Equal(t, map[string]string{"workers": "4", "verbose": ""}, ParseConfig("workers=4, verbose"))
	assert.Equal(t, map[string]string{"a": "b=c"}, ParseConfig(" a = b=c ,,"))
}

// fakeBackend only implements Name and Description, enough for the registry.
type fakeBackend struct {
	Backend
	config string
}

func (b *fakeBackend) Name() string        { return "fake" }
func (b *fakeBackend) Description() string { return "fake:" + b.config }

func TestRegistry(t *testing.T) {
	savedConstructors, savedFirst, savedDefault := registeredConstructors, firstRegistered, DefaultConfig
	defer func() {
		registeredConstructors, firstRegistered, DefaultConfig = savedConstructors, savedFirst, savedDefault
	}()
	registeredConstructors = make(map[string]Constructor)
	firstRegistered = ""
	DefaultConfig = ""

	_, err := NewWithConfig("")
	require.Error(t, err)

	newFake := func(config string) (Backend, error) {
		if config == "fail" {
			return nil, errors.New("bad config")
		}
		return &fakeBackend{config: config}, nil
	}
	Register("zeta", newFake)
	Register("alpha", newFake)
	assert.Equal(t, []string{"alpha", "zeta"}, List())

	// Empty name selects the first registered.
	t.Setenv(DISTCONV_BACKEND, "")
	b := must.M1(New())
	assert.Equal(t, "fake:", b.Description())

	t.Setenv(DISTCONV_BACKEND, "alpha:workers=2")
	b = must.M1(New())
	assert.Equal(t, "fake:workers=2", b.Description())

	_, err = NewWithConfig("unknown")
	require.Error(t, err)
	_, err = NewWithConfig("zeta:fail")
	require.ErrorContains(t, err, "bad config")
}

func TestRegistryDefaultConfig(t *testing.T) {
	savedConstructors, savedFirst, savedDefault := registeredConstructors, firstRegistered, DefaultConfig
	defer func() {
		registeredConstructors, firstRegistered, DefaultConfig = savedConstructors, savedFirst, savedDefault
	}()
	if _, found := os.LookupEnv(DISTCONV_BACKEND); found {
		t.Skipf("%s is set", DISTCONV_BACKEND)
	}
	registeredConstructors = make(map[string]Constructor)
	Register("fake", func(config string) (Backend, error) { return &fakeBackend{config: config}, nil })
	DefaultConfig = "fake:x"
	b := must.M1(New())
	assert.Equal(t, "fake:x", b.Description())
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "BAD_PARAM", StatusBadParam.String())
	assert.Equal(t, "Status(99)", Status(99).String())
	assert.Equal(t, StatusExecutionFailed, must.M1(StatusString("EXECUTION_FAILED")))

	cause := errors.Wrapf(ErrUnsupportedDataType, "Int8")
	err := errors.WithMessage(NewCallError("repack", "TensorRepack", StatusNotSupported, cause), "copying")
	assert.Equal(t, StatusNotSupported, StatusOf(err))
	assert.True(t, errors.Is(err, ErrUnsupportedDataType))
	assert.Contains(t, err.Error(), "repack: TensorRepack failed with status NOT_SUPPORTED")

	assert.Equal(t, StatusSuccess, StatusOf(nil))
	assert.Equal(t, StatusInternalError, StatusOf(errors.New("other")))
}

func TestDescriptorTable(t *testing.T) {
	table := NewDescriptorTable("test", func(desc tensordesc.Descriptor) error {
		if desc.DType != dtypes.Float32 {
			return errors.Wrapf(ErrUnsupportedDataType, "%s", desc.DType)
		}
		return nil
	})
	desc := tensordesc.Make(dtypes.Float32, []int{2, 3}, []int{4, 1})
	h1 := must.M1(table.CreateTensorDescriptor(desc))
	h2 := must.M1(table.CreateTensorDescriptor(desc))
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, table.LiveDescriptors())

	// Details are a copy.
	details := must.M1(table.TensorDescriptorDetails(h1))
	assert.True(t, details.Equal(desc))
	details.Dims[0] = 100
	assert.Equal(t, 2, must.M1(table.TensorDescriptorDetails(h1)).Dims[0])

	require.NoError(t, table.DestroyTensorDescriptor(h1))
	assert.Equal(t, 1, table.LiveDescriptors())
	err := table.DestroyTensorDescriptor(h1)
	require.Error(t, err)
	assert.Equal(t, StatusBadParam, StatusOf(err))
	_, err = table.TensorDescriptorDetails(h1)
	assert.Equal(t, StatusBadParam, StatusOf(err))
	assert.Equal(t, StatusBadParam, StatusOf(table.DestroyTensorDescriptor("not a handle")))

	// Invalid and unsupported descriptors.
	_, err = table.CreateTensorDescriptor(tensordesc.Descriptor{DType: dtypes.Float32, Dims: []int{2}, Strides: []int{1, 1}})
	assert.Equal(t, StatusBadParam, StatusOf(err))
	_, err = table.CreateTensorDescriptor(tensordesc.MakePacked(dtypes.Float64, 2))
	assert.Equal(t, StatusNotSupported, StatusOf(err))
	assert.True(t, errors.Is(err, ErrUnsupportedDataType))

	// Handles of another table are rejected.
	other := NewDescriptorTable("other", nil)
	h3 := must.M1(other.CreateTensorDescriptor(desc))
	_, err = table.TensorDescriptorDetails(h3)
	assert.Equal(t, StatusBadParam, StatusOf(err))

	// Copy operands must agree on dtype and dims.
	h4 := must.M1(table.CreateTensorDescriptor(tensordesc.MakePacked(dtypes.Float32, 2, 3)))
	src, dst, err := table.CopyOperands(h2, h4)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 1}, src.Strides)
	assert.Equal(t, []int{3, 1}, dst.Strides)
	h5 := must.M1(table.CreateTensorDescriptor(tensordesc.MakePacked(dtypes.Float32, 3, 2)))
	_, _, err = table.CopyOperands(h2, h5)
	assert.Equal(t, StatusBadParam, StatusOf(err))

	for _, h := range []TensorDescriptor{h2, h4, h5} {
		require.NoError(t, table.DestroyTensorDescriptor(h))
	}
	assert.Equal(t, 0, table.LiveDescriptors())
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities{PackByDefault: true, DTypes: map[dtypes.DType]bool{dtypes.Float32: true}}
	caps2 := caps.Clone()
	caps2.DTypes[dtypes.Float64] = true
	assert.True(t, caps.SupportsDType(dtypes.Float32))
	assert.False(t, caps.SupportsDType(dtypes.Float64))
	assert.True(t, caps2.SupportsDType(dtypes.Float64))
}

func TestHandle(t *testing.T) {
	device := gpu.NewDevice("test", 1<<20)
	alloc := allocator.New(device)
	backend := &fakeBackend{}
	h := NewHandle(backend, nil, alloc)
	assert.Nil(t, h.Stream())
	assert.Same(t, device, h.Device())
	assert.Same(t, alloc, h.Allocator())

	stream := device.NewStream()
	defer func() { require.NoError(t, stream.Close()) }()
	assert.Same(t, stream, NewHandle(backend, stream, alloc).Stream())

	otherDevice := gpu.NewDevice("other", 1<<20)
	otherStream := otherDevice.NewStream()
	defer func() { require.NoError(t, otherStream.Close()) }()
	require.NotNil(t, exceptions.Try(func() { NewHandle(backend, otherStream, alloc) }))
	require.NotNil(t, exceptions.Try(func() { NewHandle(nil, nil, alloc) }))
}
