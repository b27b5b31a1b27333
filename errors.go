// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrInvalidArgument reports a malformed request: a negative length,
	// an empty delimiter for ReadUntil, or a descriptor of an unsupported kind.
	ErrInvalidArgument = errors.New("stream: invalid argument")

	// ErrUnreadable reports that the stream is not, or is no longer, readable.
	ErrUnreadable = errors.New("stream: not readable")

	// ErrUnwritable reports that the stream is not, or is no longer, writable.
	ErrUnwritable = errors.New("stream: not writable")

	// ErrUnseekable reports that the stream does not support seeking
	// or has been closed.
	ErrUnseekable = errors.New("stream: not seekable")

	// ErrOutOfBounds reports a seek target outside the buffer.
	ErrOutOfBounds = errors.New("stream: offset out of bounds")

	// ErrClosed reports that a stream was closed while an operation was
	// suspended on it. A fresh operation on an already-closed stream fails
	// with ErrUnreadable or ErrUnwritable instead. ReadExact and ReadUntil
	// also return it, with the partial bytes, when the stream ends before
	// their request is satisfied.
	ErrClosed = errors.New("stream: closed during pending operation")

	// ErrTimeout reports that a per-operation timeout elapsed before the
	// operation could complete. The stream itself remains usable unless
	// documented otherwise (writable pipes free on head-ticket timeout).
	ErrTimeout = errors.New("stream: operation timed out")

	// ErrFailure is the kind matched (via errors.Is) by every *FailureError
	// produced when an underlying OS call fails.
	ErrFailure = errors.New("stream: os failure")
)

// FailureError wraps an OS-level I/O failure with the operation that
// produced it. The cause is stack-annotated and reachable through
// errors.Unwrap; errors.Is(err, ErrFailure) matches every FailureError.
type FailureError struct {
	Op  string
	Err error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("stream: %s: %v", e.Op, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// Is makes every FailureError match the ErrFailure kind.
func (e *FailureError) Is(target error) bool { return target == ErrFailure }

func newFailure(op string, cause error) error {
	return &FailureError{Op: op, Err: pkgerrors.WithStack(cause)}
}
