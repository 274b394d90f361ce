// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_MallocFree(t *testing.T) {
	d := NewDevice("test", 1024)
	p0 := must.M1(d.Malloc(512))
	p1 := must.M1(d.Malloc(256))
	require.False(t, p0.IsNull())
	require.NotEqual(t, p0, p1)
	assert.Zero(t, uintptr(p0)%allocationAlignment)
	assert.Equal(t, MemInfo{Free: 256, Total: 1024}, d.MemInfo())
	assert.Equal(t, 2, d.NumAllocations())

	_, err := d.Malloc(512)
	require.ErrorIs(t, err, ErrOutOfMemory)

	require.NoError(t, d.Free(p0))
	require.ErrorIs(t, d.Free(p0), ErrInvalidPointer, "double free")
	require.ErrorIs(t, d.Free(p1.Offset(4)), ErrInvalidPointer, "not a base address")
	require.NoError(t, d.Free(p1))
	assert.Equal(t, MemInfo{Free: 1024, Total: 1024}, d.MemInfo())
}

func TestDevice_Bytes(t *testing.T) {
	d := NewDevice("test", 4096)
	p0 := must.M1(d.Malloc(100))
	p1 := must.M1(d.Malloc(100))

	b := must.M1(d.Bytes(p0.Offset(10), 90))
	require.Len(t, b, 90)
	for ii := range b {
		b[ii] = byte(ii)
	}
	b2 := must.M1(d.Bytes(p0, 100))
	assert.Equal(t, byte(5), b2[15])

	_, err := d.Bytes(p0.Offset(10), 91)
	require.ErrorIs(t, err, ErrInvalidPointer, "overflow past the allocation")
	_, err = d.Bytes(p0.Offset(100), 1)
	require.ErrorIs(t, err, ErrInvalidPointer, "gap between allocations")
	_, err = d.Bytes(0, 1)
	require.ErrorIs(t, err, ErrInvalidPointer)
	_ = must.M1(d.Bytes(p1, 100))
}

func TestMemCopyAndZero(t *testing.T) {
	d := NewDevice("test", 4096)
	src := must.M1(d.Malloc(16))
	dst := must.M1(d.Malloc(16))
	require.NoError(t, Upload(d, src, []int32{1, 2, 3, 4}, nil))
	require.NoError(t, d.MemCopy(dst, src, 16))
	got := make([]int32, 4)
	require.NoError(t, Download(d, got, dst, nil))
	assert.Equal(t, []int32{1, 2, 3, 4}, got)

	require.NoError(t, d.MemZero(dst.Offset(4), 8))
	require.NoError(t, Download(d, got, dst, nil))
	assert.Equal(t, []int32{1, 0, 0, 4}, got)

	stream := d.NewStream()
	defer func() { require.NoError(t, stream.Close()) }()
	require.NoError(t, d.MemZeroAsync(src, 16, stream))
	require.NoError(t, d.MemCopyAsync(dst, src, 16, stream))
	require.NoError(t, Download(d, got, dst, stream))
	require.NoError(t, stream.Synchronize())
	assert.Equal(t, []int32{0, 0, 0, 0}, got)

	require.Error(t, d.MemCopy(dst, src, 32))
}

func TestStream_Ordering(t *testing.T) {
	d := NewDevice("test", 0)
	stream := d.NewStream()
	defer func() { require.NoError(t, stream.Close()) }()

	var order []int
	for ii := range 100 {
		require.NoError(t, stream.Launch("append", func() error {
			order = append(order, ii)
			return nil
		}))
	}
	require.NoError(t, stream.Synchronize())
	require.Len(t, order, 100)
	for ii, v := range order {
		require.Equal(t, ii, v)
	}
}

func TestStream_StickyError(t *testing.T) {
	d := NewDevice("test", 0)
	stream := d.NewStream()
	var ran atomic.Int32
	gate := make(chan struct{})
	require.NoError(t, stream.Launch("fail", func() error {
		<-gate
		return errors.New("boom")
	}))
	require.NoError(t, stream.Launch("skipped", func() error {
		ran.Add(1)
		return nil
	}))
	close(gate)
	err := stream.Synchronize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, int32(0), ran.Load(), "operations after a failure must be skipped")

	// New launches report the sticky error, events still complete.
	require.Error(t, stream.Launch("after", func() error { return nil }))
	e := stream.Record()
	e.Wait()
	require.Error(t, stream.Close())
	require.ErrorIs(t, stream.Launch("closed", func() error { return nil }), ErrStreamClosed)
}

func TestStream_Events(t *testing.T) {
	d := NewDevice("test", 0)
	s0, s1 := d.NewStream(), d.NewStream()
	defer func() {
		require.NoError(t, s0.Close())
		require.NoError(t, s1.Close())
	}()

	release := make(chan struct{})
	require.NoError(t, s0.Launch("block", func() error {
		<-release
		return nil
	}))
	e := s0.Record()
	assert.False(t, e.Query())

	var sawBlockDone atomic.Bool
	require.NoError(t, s1.WaitEvent(e))
	require.NoError(t, s1.Launch("after_event", func() error {
		sawBlockDone.Store(e.Query())
		return nil
	}))

	time.Sleep(10 * time.Millisecond)
	close(release)
	require.NoError(t, s1.Synchronize())
	assert.True(t, e.Query())
	assert.True(t, sawBlockDone.Load())

	// Nil streams are synchronous.
	var syncStream *Stream
	assert.True(t, syncStream.Record().Query())
	called := false
	require.NoError(t, syncStream.Launch("inline", func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
	assert.Equal(t, "stream<sync>", syncStream.String())
}

func TestViews(t *testing.T) {
	flat := []float32{1, 2, 3}
	b := AsBytes(flat)
	require.Len(t, b, 12)
	back := FromBytes[float32](b)
	assert.Equal(t, flat, back)
	back[1] = 7
	assert.Equal(t, float32(7), flat[1], "views must share memory")
	assert.Nil(t, AsBytes[float32](nil))
	assert.Nil(t, FromBytes[float64](b[:4]))
}
