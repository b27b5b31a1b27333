// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"sync"
	"time"
)

// ReadyCallback is invoked by a reactor when a watcher fires: at most
// once per Listen call, with expired reporting whether the listen
// timeout elapsed before readiness. Callbacks run on the reactor's
// dispatch goroutine and must not block it.
type ReadyCallback func(fd int, expired bool, w Watcher)

// Reactor hands out readiness watchers for non-blocking descriptors.
// Pipe streams consume this interface; the process-wide default is a
// poll(2) reactor, and external event loops plug in via SetReactor.
type Reactor interface {
	// Poll creates a read-readiness watcher for fd.
	Poll(fd int, cb ReadyCallback) (Watcher, error)

	// Await creates a write-readiness watcher for fd.
	Await(fd int, cb ReadyCallback) (Watcher, error)
}

// Watcher is an opaque handle for one descriptor and one direction.
type Watcher interface {
	// Listen arms the watcher. With a positive timeout the callback
	// fires with expired=true when it elapses without readiness; a zero
	// timeout waits indefinitely. Listen is not cumulative: a new call
	// supersedes any prior arming.
	Listen(timeout time.Duration)

	// IsPending reports whether the watcher is currently armed.
	IsPending() bool

	// Cancel disarms the watcher without firing.
	Cancel()

	// Free permanently releases the watcher.
	Free()
}

// Process-wide current reactor. Descriptor streams capture it at
// construction; after SetReactor, existing streams (including the
// standard stream singletons) must Rebind.
var (
	reactorMu sync.Mutex
	reactor   Reactor
	reactorE  error
)

// SetReactor replaces the process-wide reactor used by streams created
// without an explicit WithReactor option.
func SetReactor(r Reactor) {
	reactorMu.Lock()
	reactor, reactorE = r, nil
	reactorMu.Unlock()
}

// CurrentReactor returns the process-wide reactor, lazily constructing
// the default on first use.
func CurrentReactor() (Reactor, error) {
	reactorMu.Lock()
	defer reactorMu.Unlock()
	if reactor == nil && reactorE == nil {
		reactor, reactorE = newDefaultReactor()
	}
	return reactor, reactorE
}
