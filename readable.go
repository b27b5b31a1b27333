// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"code.hybscloud.com/iox"
)

var errBufferNotEmpty = errors.New("internal buffer not empty")

// ReadablePipe reads from a non-blocking pipe- or socket-like
// descriptor through a reactor readiness watcher.
//
// Semantics:
//   - Reads serialize: a read issued while another is parked waits for
//     it, so reads complete in issue order with distinct bytes.
//   - Each attempt tops the internal buffer up with a single
//     non-blocking read, then extracts per the package policy. When
//     nothing can be extracted the read arms the watcher and parks.
//   - A read that would park but finds EOF with an empty buffer closes
//     the stream and returns an empty result; the next read fails with
//     ErrUnreadable.
//   - An OS failure frees the stream with that cause.
type ReadablePipe struct {
	mu      sync.Mutex
	fd      int
	chunk   int
	auto    bool
	reactor Reactor
	watcher Watcher

	open     bool
	readable bool
	eof      bool

	buf        *Buffer
	wake       chan pipeWake
	lastListen time.Duration

	gate chan struct{}
}

type pipeWake struct {
	expired bool
	err     error
}

// NewReadablePipe wraps fd, configuring it non-blocking. Only pipe-,
// socket-, and terminal-like descriptors are accepted. With AutoClose
// (the default) the descriptor is closed along with the stream.
func NewReadablePipe(fd int, opts ...Option) (*ReadablePipe, error) {
	o := applyOptions(opts)
	if fd < 0 {
		return nil, ErrInvalidArgument
	}
	if err := fdPrepare(fd); err != nil {
		return nil, err
	}
	re := o.Reactor
	if re == nil {
		var err error
		if re, err = CurrentReactor(); err != nil {
			return nil, err
		}
	}
	s := &ReadablePipe{
		fd:       fd,
		chunk:    o.ChunkSize,
		auto:     o.AutoClose,
		reactor:  re,
		open:     true,
		readable: true,
		buf:      NewBuffer(),
		gate:     make(chan struct{}, 1),
	}
	w, err := re.Poll(fd, s.onReady)
	if err != nil {
		return nil, err
	}
	s.watcher = w
	return s, nil
}

// onReady releases the parked operation, if any. A dispatch arriving
// after Cancel or Close finds no wake handle and is dropped.
func (s *ReadablePipe) onReady(fd int, expired bool, w Watcher) {
	s.mu.Lock()
	ch := s.wake
	s.wake = nil
	s.mu.Unlock()
	if ch != nil {
		ch <- pipeWake{expired: expired}
	}
}

// Read implements Readable.
func (s *ReadablePipe) Read(ctx context.Context, length int, stop []byte, timeout time.Duration) ([]byte, error) {
	if length < 0 {
		return nil, ErrInvalidArgument
	}
	stopB, hasStop := stopByteOf(stop)

	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.gate }()

	s.mu.Lock()
	if !s.readable {
		s.mu.Unlock()
		return nil, ErrUnreadable
	}
	want := length
	if want == 0 {
		want = s.chunk
	}
	for {
		data, err := s.fetchLocked(want, stopB, hasStop)
		if err != nil {
			s.closeLocked(err)
			s.mu.Unlock()
			return nil, err
		}
		if len(data) > 0 {
			s.mu.Unlock()
			return data, nil
		}
		if s.eof && s.buf.IsEmpty() {
			s.closeLocked(nil)
			s.mu.Unlock()
			return []byte{}, nil
		}
		ch := make(chan pipeWake, 1)
		s.wake = ch
		s.lastListen = timeout
		s.watcher.Listen(timeout)
		s.mu.Unlock()

		select {
		case wk := <-ch:
			if wk.err != nil {
				return nil, wk.err
			}
			if wk.expired {
				return nil, ErrTimeout
			}
		case <-ctx.Done():
			s.mu.Lock()
			if s.wake == ch {
				s.wake = nil
				s.watcher.Cancel()
			}
			s.mu.Unlock()
			return nil, ctx.Err()
		}

		s.mu.Lock()
		if !s.readable {
			s.mu.Unlock()
			return nil, ErrUnreadable
		}
	}
}

// fetchLocked tops the buffer up with one non-blocking read and
// extracts what the request allows. An empty result means the caller
// must park (or report EOF when s.eof is set with an empty buffer).
func (s *ReadablePipe) fetchLocked(want int, stopB byte, hasStop bool) ([]byte, error) {
	if n := want - s.buf.Len(); n > 0 && !s.eof {
		p := make([]byte, n)
		rn, err := fdRead(s.fd, p)
		if rn > 0 {
			s.buf.Push(p[:rn])
		}
		switch {
		case err == nil || err == iox.ErrWouldBlock:
		case err == io.EOF:
			s.eof = true
		default:
			return nil, err
		}
	}
	if hasStop {
		// Unshift can leave more than want buffered; never return past
		// the requested length even when the stop byte sits beyond it.
		if p, ok := s.buf.Search(stopB); ok && p < want {
			return s.buf.Shift(p + 1), nil
		}
	}
	return s.buf.Shift(want), nil
}

// PollReady parks until the descriptor is read-ready without consuming
// bytes. It fails with a FailureError while the internal buffer is
// non-empty: readiness is only meaningful once the buffer has been
// drained.
func (s *ReadablePipe) PollReady(ctx context.Context, timeout time.Duration) error {
	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.gate }()

	s.mu.Lock()
	if !s.readable {
		s.mu.Unlock()
		return ErrUnreadable
	}
	if !s.buf.IsEmpty() {
		s.mu.Unlock()
		return newFailure("poll", errBufferNotEmpty)
	}
	ch := make(chan pipeWake, 1)
	s.wake = ch
	s.lastListen = timeout
	s.watcher.Listen(timeout)
	s.mu.Unlock()

	select {
	case wk := <-ch:
		if wk.err != nil {
			return wk.err
		}
		if wk.expired {
			return ErrTimeout
		}
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		if s.wake == ch {
			s.wake = nil
			s.watcher.Cancel()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// Unshift prepends p to the internal buffer; a parked read resumes and
// consumes it immediately.
func (s *ReadablePipe) Unshift(p []byte) error {
	s.mu.Lock()
	if !s.readable {
		s.mu.Unlock()
		return ErrUnreadable
	}
	s.buf.Unshift(p)
	ch := s.wake
	if ch != nil {
		s.wake = nil
		s.watcher.Cancel()
	}
	s.mu.Unlock()
	if ch != nil {
		ch <- pipeWake{}
	}
	return nil
}

// Rebind replaces the watcher using the current reactor, re-arming it
// when the old one was pending. Call after SetReactor (e.g. post-fork).
func (s *ReadablePipe) Rebind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	re, err := CurrentReactor()
	if err != nil {
		return err
	}
	pending := s.watcher.IsPending()
	s.watcher.Free()
	w, err := re.Poll(s.fd, s.onReady)
	if err != nil {
		return err
	}
	s.reactor, s.watcher = re, w
	if pending {
		w.Listen(s.lastListen)
	}
	return nil
}

// Resource returns the underlying descriptor.
func (s *ReadablePipe) Resource() int { return s.fd }

// IsReadable reports whether Read can still produce bytes.
func (s *ReadablePipe) IsReadable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readable
}

// IsOpen reports whether the stream is open.
func (s *ReadablePipe) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Close closes the stream, cancelling a parked read with ErrClosed.
// Idempotent.
func (s *ReadablePipe) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(nil)
	return nil
}

// CloseWithError is Close with a specific cause delivered to a parked
// read.
func (s *ReadablePipe) CloseWithError(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(cause)
	return nil
}

func (s *ReadablePipe) closeLocked(cause error) {
	if !s.open {
		return
	}
	s.open, s.readable = false, false
	if s.watcher != nil {
		s.watcher.Free()
		s.watcher = nil
	}
	if s.wake != nil {
		if cause == nil {
			cause = ErrClosed
		}
		s.wake <- pipeWake{err: cause}
		s.wake = nil
	}
	s.buf.reset()
	if s.auto {
		_ = fdClose(s.fd)
	}
}

var (
	_ Readable         = (*ReadablePipe)(nil)
	_ DescriptorBacked = (*ReadablePipe)(nil)
)
