// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package stream

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

func newDefaultReactor() (Reactor, error) { return NewPollReactor() }

// PollReactor is the default Reactor: a single goroutine multiplexes
// armed watchers over poll(2) and dispatches their callbacks. A
// self-pipe wakes the poll on every watcher state change, so Listen and
// Cancel from other goroutines take effect immediately.
type PollReactor struct {
	mu       sync.Mutex
	watchers map[*pollWatcher]struct{}
	wakeR    int
	wakeW    int
	closed   bool
}

type pollWatcher struct {
	r     *PollReactor
	fd    int
	write bool
	cb    ReadyCallback

	armed    bool
	deadline time.Time // zero: no timeout
	// gen is bumped on every Listen, Cancel, Free, and fire-collect so
	// that a dispatch collected before a state change is dropped
	// instead of delivering a stale callback.
	gen   uint64
	freed bool
}

// NewPollReactor starts a poll(2) reactor on its own goroutine.
func NewPollReactor() (*PollReactor, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, newFailure("pipe", err)
	}
	_ = unix.SetNonblock(p[0], true)
	_ = unix.SetNonblock(p[1], true)
	r := &PollReactor{
		watchers: make(map[*pollWatcher]struct{}),
		wakeR:    p[0],
		wakeW:    p[1],
	}
	go r.loop()
	return r, nil
}

// Poll creates a read-readiness watcher for fd.
func (r *PollReactor) Poll(fd int, cb ReadyCallback) (Watcher, error) {
	return r.newWatcher(fd, cb, false)
}

// Await creates a write-readiness watcher for fd.
func (r *PollReactor) Await(fd int, cb ReadyCallback) (Watcher, error) {
	return r.newWatcher(fd, cb, true)
}

func (r *PollReactor) newWatcher(fd int, cb ReadyCallback, write bool) (Watcher, error) {
	if fd < 0 || cb == nil {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	w := &pollWatcher{r: r, fd: fd, write: write, cb: cb}
	r.watchers[w] = struct{}{}
	return w, nil
}

// Close stops the reactor. Armed watchers never fire again.
func (r *PollReactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	r.wake()
	return nil
}

// wake nudges the poll loop through the self-pipe. A full pipe means a
// wake-up is already in flight.
func (r *PollReactor) wake() {
	var b [1]byte
	_, _ = unix.Write(r.wakeW, b[:])
}

func (w *pollWatcher) Listen(timeout time.Duration) {
	r := w.r
	r.mu.Lock()
	if w.freed {
		r.mu.Unlock()
		return
	}
	w.armed = true
	w.gen++
	if timeout > 0 {
		w.deadline = time.Now().Add(timeout)
	} else {
		w.deadline = time.Time{}
	}
	r.mu.Unlock()
	r.wake()
}

func (w *pollWatcher) IsPending() bool {
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	return w.armed
}

func (w *pollWatcher) Cancel() {
	r := w.r
	r.mu.Lock()
	w.armed = false
	w.gen++
	r.mu.Unlock()
	r.wake()
}

func (w *pollWatcher) Free() {
	r := w.r
	r.mu.Lock()
	w.freed = true
	w.armed = false
	w.gen++
	delete(r.watchers, w)
	r.mu.Unlock()
	r.wake()
}

type pollFiring struct {
	w       *pollWatcher
	expired bool
	gen     uint64
}

func (r *PollReactor) loop() {
	var fds []unix.PollFd
	var idx []*pollWatcher
	var fired []pollFiring
	for {
		fds = fds[:0]
		idx = idx[:0]
		fds = append(fds, unix.PollFd{Fd: int32(r.wakeR), Events: unix.POLLIN})
		idx = append(idx, nil)

		var nearest time.Time
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			_ = unix.Close(r.wakeR)
			_ = unix.Close(r.wakeW)
			return
		}
		for w := range r.watchers {
			if !w.armed {
				continue
			}
			ev := int16(unix.POLLIN)
			if w.write {
				ev = unix.POLLOUT
			}
			fds = append(fds, unix.PollFd{Fd: int32(w.fd), Events: ev})
			idx = append(idx, w)
			if !w.deadline.IsZero() && (nearest.IsZero() || w.deadline.Before(nearest)) {
				nearest = w.deadline
			}
		}
		r.mu.Unlock()

		timeoutMs := -1
		if !nearest.IsZero() {
			d := time.Until(nearest)
			if d < 0 {
				d = 0
			}
			// Round up so a deadline never fires early.
			timeoutMs = int((d + time.Millisecond - 1) / time.Millisecond)
		}
		_, err := unix.Poll(fds, timeoutMs)
		if err != nil && err != unix.EINTR {
			// Transient poll failure (e.g. a descriptor closed mid-poll);
			// rebuild the set on the next pass.
			time.Sleep(time.Millisecond)
		}
		if fds[0].Revents != 0 {
			var b [64]byte
			for {
				if _, e := unix.Read(r.wakeR, b[:]); e != nil {
					break
				}
			}
		}

		now := time.Now()
		fired = fired[:0]
		r.mu.Lock()
		for i := 1; i < len(fds); i++ {
			w := idx[i]
			if !w.armed || w.freed {
				continue
			}
			ready := fds[i].Revents&(fds[i].Events|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0
			expired := !ready && !w.deadline.IsZero() && !now.Before(w.deadline)
			if !ready && !expired {
				continue
			}
			w.armed = false
			w.gen++
			fired = append(fired, pollFiring{w: w, expired: expired, gen: w.gen})
		}
		r.mu.Unlock()

		for _, f := range fired {
			r.mu.Lock()
			live := !f.w.freed && f.w.gen == f.gen
			r.mu.Unlock()
			if live {
				f.w.cb(f.w.fd, f.expired, f.w)
			}
		}
	}
}
