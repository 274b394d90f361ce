// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrStreamClosed is returned when enqueueing work on a closed Stream.
var ErrStreamClosed = errors.New("stream is closed")

type streamOp struct {
	name string
	fn   func() error

	// always ops run even after the stream failed: they only signal progress (events).
	always bool
}

// Stream is an ordered queue of device operations executed asynchronously with respect
// to the host, by a dedicated goroutine.
//
// Operations enqueued on the same Stream observe the effects of all operations enqueued
// before them. Operations on different streams are not ordered, synchronizing them is
// the caller's job (see Record and Event).
//
// The first failing operation makes the stream "sticky failed": later operations are
// skipped and the error is returned by Synchronize.
//
// A nil *Stream is valid and means "synchronous": operations run inline in the caller.
type Stream struct {
	id     uuid.UUID
	device *Device

	mu      sync.Mutex
	cond    sync.Cond // Signaled whenever queue or pending changes.
	queue   []streamOp
	pending int // Enqueued but not yet finished operations.
	err     error
	closed  bool
	stopped chan struct{}
}

// NewStream creates a new Stream on the device and starts its worker goroutine.
// Call Close to stop it.
func (d *Device) NewStream() *Stream {
	s := &Stream{
		id:      uuid.New(),
		device:  d,
		stopped: make(chan struct{}),
	}
	s.cond = sync.Cond{L: &s.mu}
	go s.run()
	klog.V(2).Infof("%s: created stream %s", d.name, s.id)
	return s
}

// ID returns the unique ID of the stream, used for logging.
func (s *Stream) ID() uuid.UUID {
	if s == nil {
		return uuid.Nil
	}
	return s.id
}

// String implements fmt.Stringer.
func (s *Stream) String() string {
	if s == nil {
		return "stream<sync>"
	}
	return "stream<" + s.id.String()[:8] + ">"
}

// Device returns the device owning the stream.
func (s *Stream) Device() *Device { return s.device }

func (s *Stream) run() {
	defer close(s.stopped)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		op := s.queue[0]
		s.queue[0] = streamOp{}
		s.queue = s.queue[1:]
		failed := s.err != nil
		s.mu.Unlock()

		var err error
		if !failed || op.always {
			err = op.fn()
		}

		s.mu.Lock()
		if err != nil && s.err == nil {
			s.err = errors.WithMessagef(err, "%s: operation %q failed", s, op.name)
			klog.V(1).Infof("%v", s.err)
		}
		s.pending--
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// Launch enqueues fn to be executed asynchronously on the stream.
//
// If the stream is nil, fn is executed synchronously and its error returned. Otherwise,
// Launch returns the sticky error of the stream if it already failed, or nil: errors of
// fn itself are only reported by Synchronize.
func (s *Stream) Launch(name string, fn func() error) error {
	if s == nil {
		return fn()
	}
	return s.enqueue(streamOp{name: name, fn: fn})
}

func (s *Stream) enqueue(op streamOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Wrapf(ErrStreamClosed, "%s: cannot launch %q", s, op.name)
	}
	if s.err != nil && !op.always {
		return s.err
	}
	s.queue = append(s.queue, op)
	s.pending++
	s.cond.Broadcast()
	return nil
}

// Synchronize blocks until all operations enqueued so far have finished, and returns the
// sticky error of the stream, if any.
func (s *Stream) Synchronize() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.cond.Wait()
	}
	return s.err
}

// Err returns the sticky error of the stream without waiting.
func (s *Stream) Err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close waits for the enqueued operations to finish and stops the stream worker.
// It returns the sticky error of the stream, if any. Closing twice is a no-op.
func (s *Stream) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.stopped
		return s.Err()
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.stopped
	klog.V(2).Infof("%s: closed %s", s.device.name, s)
	return s.Err()
}

// Event marks a point in a Stream: it completes when every operation enqueued on the
// stream before it has finished.
type Event struct {
	done chan struct{}
}

// Record enqueues an Event on the stream. For a nil (synchronous) or closed stream the
// returned event is already complete.
func (s *Stream) Record() *Event {
	e := &Event{done: make(chan struct{})}
	if s == nil {
		close(e.done)
		return e
	}
	err := s.enqueue(streamOp{name: "record_event", always: true, fn: func() error {
		close(e.done)
		return nil
	}})
	if err != nil {
		close(e.done)
	}
	return e
}

// Query returns whether the event completed, without blocking.
func (e *Event) Query() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the event completes.
func (e *Event) Wait() {
	<-e.done
}

// WaitEvent makes the stream wait for the event (possibly recorded on another stream)
// before executing operations enqueued after this call.
func (s *Stream) WaitEvent(e *Event) error {
	if s == nil {
		e.Wait()
		return nil
	}
	return s.enqueue(streamOp{name: "wait_event", always: true, fn: func() error {
		e.Wait()
		return nil
	}})
}
