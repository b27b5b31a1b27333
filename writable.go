// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package stream

import (
	"context"
	"sync"
	"time"

	"code.hybscloud.com/iox"
)

// WritablePipe writes to a non-blocking pipe- or socket-like descriptor
// through a reactor readiness watcher.
//
// Semantics:
//   - With an empty queue a write attempts one non-blocking write of up
//     to the chunk size and completes immediately when everything was
//     accepted. Any remainder is queued as a ticket and the watcher is
//     armed with the write's timeout.
//   - With a non-empty queue a write always queues without a
//     pre-attempt, so earlier writes can never be overtaken.
//   - On readiness the head ticket gets one non-blocking write; partial
//     progress keeps it at the head. The watcher is re-armed with the
//     timeout of whichever ticket is then at the head.
//   - A timeout fails only the head ticket at arming time; the stream
//     is then freed, resolving the remaining tickets with ErrClosed. An
//     OS failure frees the stream with that cause.
//   - Cancelling a queued write (context) removes just that ticket; the
//     rest of the queue keeps draining in order.
//   - End marks the stream unwritable at entry and closes it once the
//     final write has completed, successfully or not.
type WritablePipe struct {
	mu      sync.Mutex
	fd      int
	chunk   int
	auto    bool
	reactor Reactor
	watcher Watcher

	open     bool
	writable bool
	armed    bool

	queue []*writeTicket
}

type writeTicket struct {
	data    []byte // remaining bytes; empty for an await ticket
	written int
	timeout time.Duration
	ch      chan writeResult
}

type writeResult struct {
	n   int
	err error
}

// NewWritablePipe wraps fd, configuring it non-blocking. Only pipe-,
// socket-, and terminal-like descriptors are accepted.
func NewWritablePipe(fd int, opts ...Option) (*WritablePipe, error) {
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
	s := &WritablePipe{
		fd:       fd,
		chunk:    o.ChunkSize,
		auto:     o.AutoClose,
		reactor:  re,
		open:     true,
		writable: true,
	}
	w, err := re.Await(fd, s.onReady)
	if err != nil {
		return nil, err
	}
	s.watcher = w
	return s, nil
}

// Write implements Writable.
func (s *WritablePipe) Write(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	return s.send(ctx, data, timeout, false)
}

// End implements Writable: data is written, then the stream closes.
func (s *WritablePipe) End(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	return s.send(ctx, data, timeout, true)
}

func (s *WritablePipe) send(ctx context.Context, data []byte, timeout time.Duration, end bool) (int, error) {
	s.mu.Lock()
	if !s.writable {
		s.mu.Unlock()
		return 0, ErrUnwritable
	}
	if end {
		// Further sends reject immediately, even before this one lands.
		s.writable = false
	}

	var t *writeTicket
	if len(s.queue) == 0 {
		n := 0
		if len(data) > 0 {
			wn, err := fdWrite(s.fd, data[:min(len(data), s.chunk)])
			if err != nil && err != iox.ErrWouldBlock {
				s.freeLocked(err)
				s.mu.Unlock()
				return wn, err
			}
			n = wn
		}
		if n == len(data) {
			if end {
				s.freeLocked(nil)
			}
			s.mu.Unlock()
			return n, nil
		}
		t = &writeTicket{
			data:    append([]byte(nil), data[n:]...),
			written: n,
			timeout: timeout,
			ch:      make(chan writeResult, 1),
		}
		s.queue = append(s.queue, t)
		s.armLocked(timeout)
	} else {
		// Ordering: with writes already queued, never pre-write.
		t = &writeTicket{
			data:    append([]byte(nil), data...),
			timeout: timeout,
			ch:      make(chan writeResult, 1),
		}
		s.queue = append(s.queue, t)
	}
	s.mu.Unlock()

	res := s.waitTicket(ctx, t)
	if end {
		_ = s.Close()
	}
	return res.n, res.err
}

// AwaitReady queues an empty ticket that resolves once the descriptor
// is write-ready and everything queued ahead of it has drained. It is
// the explicit backpressure-empty signal.
func (s *WritablePipe) AwaitReady(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	if !s.writable {
		s.mu.Unlock()
		return ErrUnwritable
	}
	t := &writeTicket{timeout: timeout, ch: make(chan writeResult, 1)}
	wasEmpty := len(s.queue) == 0
	s.queue = append(s.queue, t)
	if wasEmpty {
		s.armLocked(timeout)
	}
	s.mu.Unlock()

	res := s.waitTicket(ctx, t)
	return res.err
}

// waitTicket blocks until t resolves or ctx is cancelled. Cancellation
// removes t from the queue; when t was the head the watcher is re-armed
// for the new head (or disarmed). A ticket resolved concurrently with
// cancellation wins over the cancellation.
func (s *WritablePipe) waitTicket(ctx context.Context, t *writeTicket) writeResult {
	select {
	case res := <-t.ch:
		return res
	case <-ctx.Done():
	}

	s.mu.Lock()
	for i, q := range s.queue {
		if q != t {
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		if i == 0 {
			if len(s.queue) > 0 {
				s.armLocked(s.queue[0].timeout)
			} else if s.armed {
				s.armed = false
				s.watcher.Cancel()
			}
		}
		written := t.written
		s.mu.Unlock()
		return writeResult{n: written, err: ctx.Err()}
	}
	s.mu.Unlock()
	return <-t.ch
}

// onReady drains the head ticket. Invoked by the reactor on readiness
// or timeout of the armed listen.
func (s *WritablePipe) onReady(fd int, expired bool, w Watcher) {
	s.mu.Lock()
	if !s.armed {
		s.mu.Unlock()
		return
	}
	s.armed = false
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	t := s.queue[0]

	if expired {
		// Timeout applies to the ticket at the head at arming time.
		s.queue = s.queue[1:]
		t.ch <- writeResult{n: t.written, err: ErrTimeout}
		s.freeLocked(nil)
		s.mu.Unlock()
		return
	}

	if len(t.data) == 0 {
		s.queue = s.queue[1:]
		t.ch <- writeResult{n: t.written}
	} else {
		wn, err := fdWrite(fd, t.data[:min(len(t.data), s.chunk)])
		if wn > 0 {
			t.written += wn
			t.data = t.data[wn:]
		}
		switch {
		case err == iox.ErrWouldBlock:
			// Spurious readiness; the head ticket stays put.
		case err != nil:
			s.queue = s.queue[1:]
			t.ch <- writeResult{n: t.written, err: err}
			s.freeLocked(err)
			s.mu.Unlock()
			return
		case len(t.data) == 0:
			s.queue = s.queue[1:]
			t.ch <- writeResult{n: t.written}
		}
	}

	if len(s.queue) > 0 {
		// Re-arm with the timeout of the ticket now at the head.
		s.armLocked(s.queue[0].timeout)
	}
	s.mu.Unlock()
}

func (s *WritablePipe) armLocked(timeout time.Duration) {
	s.armed = true
	s.watcher.Listen(timeout)
}

// Rebind replaces the watcher using the current reactor, re-arming it
// when the old one was pending. Call after SetReactor (e.g. post-fork).
func (s *WritablePipe) Rebind() error {
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
	w, err := re.Await(s.fd, s.onReady)
	if err != nil {
		return err
	}
	s.reactor, s.watcher = re, w
	if pending && len(s.queue) > 0 {
		w.Listen(s.queue[0].timeout)
	}
	return nil
}

// Resource returns the underlying descriptor.
func (s *WritablePipe) Resource() int { return s.fd }

// IsWritable reports whether Write can still accept bytes.
func (s *WritablePipe) IsWritable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writable
}

// IsOpen reports whether the stream is open.
func (s *WritablePipe) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Close frees the stream: every queued ticket resolves with ErrClosed.
// Idempotent.
func (s *WritablePipe) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeLocked(nil)
	return nil
}

// CloseWithError is Close with a specific cause delivered to queued
// tickets.
func (s *WritablePipe) CloseWithError(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeLocked(cause)
	return nil
}

func (s *WritablePipe) freeLocked(cause error) {
	if !s.open {
		return
	}
	s.open, s.writable, s.armed = false, false, false
	if s.watcher != nil {
		s.watcher.Free()
		s.watcher = nil
	}
	if cause == nil {
		cause = ErrClosed
	}
	for _, t := range s.queue {
		t.ch <- writeResult{n: t.written, err: cause}
	}
	s.queue = nil
	if s.auto {
		_ = fdClose(s.fd)
	}
}

var (
	_ Writable         = (*WritablePipe)(nil)
	_ DescriptorBacked = (*WritablePipe)(nil)
)
