// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MemCopy copies bytes from src to dst synchronously. Both are device pointers.
func (d *Device) MemCopy(dst, src Ptr, bytes int) error {
	klog.V(1).Infof("MemCopy(dst=%#x, src=%#x, bytes=%s)", uintptr(dst), uintptr(src), humanize.IBytes(uint64(bytes)))
	return d.memCopy(dst, src, bytes)
}

// MemCopyAsync enqueues a copy of bytes from src to dst on the stream.
func (d *Device) MemCopyAsync(dst, src Ptr, bytes int, stream *Stream) error {
	klog.V(1).Infof("MemCopyAsync(dst=%#x, src=%#x, bytes=%s, stream=%s)",
		uintptr(dst), uintptr(src), humanize.IBytes(uint64(bytes)), stream)
	return stream.Launch("mem_copy", func() error { return d.memCopy(dst, src, bytes) })
}

func (d *Device) memCopy(dst, src Ptr, bytes int) error {
	dstBytes, err := d.Bytes(dst, bytes)
	if err != nil {
		return errors.WithMessage(err, "MemCopy destination")
	}
	srcBytes, err := d.Bytes(src, bytes)
	if err != nil {
		return errors.WithMessage(err, "MemCopy source")
	}
	copy(dstBytes, srcBytes)
	return nil
}

// MemZero sets bytes of device memory at ptr to zero, synchronously.
func (d *Device) MemZero(ptr Ptr, bytes int) error {
	klog.V(1).Infof("MemZero(mem=%#x, value=0x0, bytes=%s)", uintptr(ptr), humanize.IBytes(uint64(bytes)))
	return d.memZero(ptr, bytes)
}

// MemZeroAsync enqueues setting bytes of device memory at ptr to zero on the stream.
func (d *Device) MemZeroAsync(ptr Ptr, bytes int, stream *Stream) error {
	klog.V(1).Infof("MemZeroAsync(mem=%#x, value=0x0, bytes=%s, stream=%s)",
		uintptr(ptr), humanize.IBytes(uint64(bytes)), stream)
	return stream.Launch("mem_zero", func() error { return d.memZero(ptr, bytes) })
}

func (d *Device) memZero(ptr Ptr, bytes int) error {
	data, err := d.Bytes(ptr, bytes)
	if err != nil {
		return errors.WithMessage(err, "MemZero")
	}
	clear(data)
	return nil
}

// Upload copies the host slice src to device memory at dst.
//
// With a non-nil stream the copy is asynchronous and src must not be modified until the
// stream is synchronized.
func Upload[T any](d *Device, dst Ptr, src []T, stream *Stream) error {
	srcBytes := AsBytes(src)
	klog.V(1).Infof("Upload(dst=%#x, bytes=%s, stream=%s)", uintptr(dst), humanize.IBytes(uint64(len(srcBytes))), stream)
	return stream.Launch("upload", func() error {
		dstBytes, err := d.Bytes(dst, len(srcBytes))
		if err != nil {
			return errors.WithMessage(err, "Upload")
		}
		copy(dstBytes, srcBytes)
		return nil
	})
}

// Download copies device memory at src into the host slice dst, filling it completely.
//
// With a non-nil stream the copy is asynchronous and dst is only valid after the stream
// is synchronized.
func Download[T any](d *Device, dst []T, src Ptr, stream *Stream) error {
	dstBytes := AsBytes(dst)
	klog.V(1).Infof("Download(src=%#x, bytes=%s, stream=%s)", uintptr(src), humanize.IBytes(uint64(len(dstBytes))), stream)
	return stream.Launch("download", func() error {
		srcBytes, err := d.Bytes(src, len(dstBytes))
		if err != nil {
			return errors.WithMessage(err, "Download")
		}
		copy(dstBytes, srcBytes)
		return nil
	})
}

// AsBytes returns the bytes backing the slice, without copying.
func AsBytes[T any](flat []T) []byte {
	if len(flat) == 0 {
		return nil
	}
	var t T
	return unsafe.Slice((*byte)(unsafe.Pointer(&flat[0])), len(flat)*int(unsafe.Sizeof(t)))
}

// FromBytes returns a slice of T backed by data, without copying. Trailing bytes that
// don't fill a whole element are ignored. data must be aligned for T.
func FromBytes[T any](data []byte) []T {
	var t T
	n := len(data) / int(unsafe.Sizeof(t))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
}
