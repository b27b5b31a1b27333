// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package stream

import "sync"

// Process-wide standard stream singletons. Construction is lazy and
// idempotent; lifetime is the process, so the descriptors are never
// auto-closed. After SetReactor, call Rebind on each singleton in use.
//
// Note that construction switches the descriptor to non-blocking mode,
// which is shared with everything else using it in this process.
var (
	stdinOnce sync.Once
	stdinS    *ReadablePipe
	stdinErr  error

	stdoutOnce sync.Once
	stdoutS    *WritablePipe
	stdoutErr  error

	stderrOnce sync.Once
	stderrS    *WritablePipe
	stderrErr  error
)

// Stdin returns the readable pipe over descriptor 0.
func Stdin() (*ReadablePipe, error) {
	stdinOnce.Do(func() {
		stdinS, stdinErr = NewReadablePipe(0, WithAutoClose(false))
	})
	return stdinS, stdinErr
}

// Stdout returns the writable pipe over descriptor 1.
func Stdout() (*WritablePipe, error) {
	stdoutOnce.Do(func() {
		stdoutS, stdoutErr = NewWritablePipe(1, WithAutoClose(false))
	})
	return stdoutS, stdoutErr
}

// Stderr returns the writable pipe over descriptor 2.
func Stderr() (*WritablePipe, error) {
	stderrOnce.Do(func() {
		stderrS, stderrErr = NewWritablePipe(2, WithAutoClose(false))
	})
	return stderrS, stderrErr
}
