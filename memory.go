// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"sync"
	"time"
)

// MemoryStream is an in-process duplex stream backed by a byte buffer.
//
// Semantics:
//   - Reads consume in FIFO order. Simultaneous reads are allowed: they
//     queue and are satisfied in issue order, each with distinct bytes.
//   - Writes append and wake parked readers. With a high-water mark
//     set, the write that raises the buffered length above the mark is
//     parked; it resolves with its full length once reads drain the
//     buffer back to the mark. Parked writes resolve in submission
//     order, all at once.
//   - End marks the stream unwritable; the stream closes as soon as the
//     buffer has been drained (immediately, when already empty).
//   - Close wakes parked readers with an empty result and parked
//     writers with ErrClosed (or the cause given to CloseWithError).
type MemoryStream struct {
	mu  sync.Mutex
	buf *Buffer
	hwm int

	open     bool
	readable bool
	writable bool

	readers []*memReader
	writers []*memWriter
}

type memReader struct {
	length  int
	stop    byte
	hasStop bool
	ch      chan memResult
}

type memResult struct {
	data []byte
	err  error
}

type memWriter struct {
	n  int
	ch chan error
}

// NewMemoryStream returns an open duplex memory stream. Backpressure is
// configured with WithHighWaterMark.
func NewMemoryStream(opts ...Option) *MemoryStream {
	o := applyOptions(opts)
	return &MemoryStream{
		buf:      NewBuffer(),
		hwm:      o.HighWaterMark,
		open:     true,
		readable: true,
		writable: true,
	}
}

// Read returns up to length bytes per the package extract policy,
// suspending while the buffer is empty or earlier reads are parked.
func (s *MemoryStream) Read(ctx context.Context, length int, stop []byte, timeout time.Duration) ([]byte, error) {
	if length < 0 {
		return nil, ErrInvalidArgument
	}
	stopB, hasStop := stopByteOf(stop)

	s.mu.Lock()
	if !s.readable {
		s.mu.Unlock()
		return nil, ErrUnreadable
	}
	if len(s.readers) == 0 && !s.buf.IsEmpty() {
		data := extract(s.buf, length, stopB, hasStop)
		s.afterDrainLocked()
		s.mu.Unlock()
		return data, nil
	}
	if !s.writable && s.buf.IsEmpty() {
		// Ended and fully drained: report EOF and close.
		s.closeLocked(nil)
		s.mu.Unlock()
		return []byte{}, nil
	}
	r := &memReader{length: length, stop: stopB, hasStop: hasStop, ch: make(chan memResult, 1)}
	s.readers = append(s.readers, r)
	s.mu.Unlock()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutC = t.C
	}
	select {
	case res := <-r.ch:
		return res.data, res.err
	case <-timeoutC:
		if res, resolved := s.abandonReader(r); resolved {
			return res.data, res.err
		}
		return nil, ErrTimeout
	case <-ctx.Done():
		if res, resolved := s.abandonReader(r); resolved {
			return res.data, res.err
		}
		return nil, ctx.Err()
	}
}

// abandonReader removes r from the queue. When r was already resolved
// concurrently, the buffered result wins over the local outcome.
func (s *MemoryStream) abandonReader(r *memReader) (memResult, bool) {
	s.mu.Lock()
	for i, q := range s.readers {
		if q == r {
			s.readers = append(s.readers[:i], s.readers[i+1:]...)
			s.mu.Unlock()
			return memResult{}, false
		}
	}
	s.mu.Unlock()
	return <-r.ch, true
}

// Write appends data and returns its length. The call suspends when the
// buffered length exceeds the high-water mark; the bytes have been
// accepted either way.
func (s *MemoryStream) Write(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	return s.push(ctx, data, timeout, false)
}

// End appends data and marks the stream unwritable. The stream closes
// once the buffer has been drained.
func (s *MemoryStream) End(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	return s.push(ctx, data, timeout, true)
}

func (s *MemoryStream) push(ctx context.Context, data []byte, timeout time.Duration, end bool) (int, error) {
	s.mu.Lock()
	if !s.writable {
		s.mu.Unlock()
		return 0, ErrUnwritable
	}
	s.buf.Push(data)
	s.feedReadersLocked()
	if end {
		s.writable = false
		if s.buf.IsEmpty() {
			s.closeLocked(nil)
		}
		s.mu.Unlock()
		return len(data), nil
	}
	if s.hwm > 0 && s.buf.Len() > s.hwm {
		w := &memWriter{n: len(data), ch: make(chan error, 1)}
		s.writers = append(s.writers, w)
		s.mu.Unlock()

		var timeoutC <-chan time.Time
		if timeout > 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			timeoutC = t.C
		}
		select {
		case err := <-w.ch:
			return len(data), err
		case <-timeoutC:
			if err, resolved := s.abandonWriter(w); resolved {
				return len(data), err
			}
			return len(data), ErrTimeout
		case <-ctx.Done():
			if err, resolved := s.abandonWriter(w); resolved {
				return len(data), err
			}
			return len(data), ctx.Err()
		}
	}
	s.mu.Unlock()
	return len(data), nil
}

func (s *MemoryStream) abandonWriter(w *memWriter) (error, bool) {
	s.mu.Lock()
	for i, q := range s.writers {
		if q == w {
			s.writers = append(s.writers[:i], s.writers[i+1:]...)
			s.mu.Unlock()
			return nil, false
		}
	}
	s.mu.Unlock()
	return <-w.ch, true
}

// Unshift prepends p; a parked reader is satisfied immediately.
func (s *MemoryStream) Unshift(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readable {
		return ErrUnreadable
	}
	s.buf.Unshift(p)
	s.feedReadersLocked()
	return nil
}

// feedReadersLocked satisfies parked readers in FIFO order while bytes
// remain, then applies the drain transitions (writer release, close on
// ended-and-empty).
func (s *MemoryStream) feedReadersLocked() {
	for len(s.readers) > 0 && !s.buf.IsEmpty() {
		r := s.readers[0]
		s.readers = s.readers[1:]
		data := extract(s.buf, r.length, r.stop, r.hasStop)
		r.ch <- memResult{data: data}
	}
	s.afterDrainLocked()
}

func (s *MemoryStream) afterDrainLocked() {
	if s.hwm > 0 && s.buf.Len() <= s.hwm && len(s.writers) > 0 {
		for _, w := range s.writers {
			w.ch <- nil
		}
		s.writers = nil
	}
	if s.open && !s.writable && s.buf.IsEmpty() {
		s.closeLocked(nil)
	}
}

// IsReadable reports whether Read can still produce bytes.
func (s *MemoryStream) IsReadable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readable
}

// IsWritable reports whether Write can still accept bytes.
func (s *MemoryStream) IsWritable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writable
}

// IsOpen reports whether the stream is open.
func (s *MemoryStream) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Len returns the number of buffered, unread bytes.
func (s *MemoryStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Close closes the stream: parked readers resolve with an empty result,
// parked writers with ErrClosed. Idempotent.
func (s *MemoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(nil)
	return nil
}

// CloseWithError is Close with a specific cause delivered to parked
// writers.
func (s *MemoryStream) CloseWithError(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(cause)
	return nil
}

func (s *MemoryStream) closeLocked(cause error) {
	if !s.open {
		return
	}
	s.open, s.readable, s.writable = false, false, false
	if cause == nil {
		cause = ErrClosed
	}
	for _, r := range s.readers {
		r.ch <- memResult{data: []byte{}}
	}
	s.readers = nil
	for _, w := range s.writers {
		w.ch <- cause
	}
	s.writers = nil
}
