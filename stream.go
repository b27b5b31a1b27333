// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stream provides non-blocking byte streams for asynchronous
// network and IPC code.
//
// Semantics and design:
//   - Sequential surface, cooperative core: callers invoke ordinary
//     blocking-looking operations; internally the streams consult their
//     buffer first and, when they cannot complete, park on a readiness
//     watcher supplied by a reactor (pipe streams) or on an in-process
//     completion handle (memory streams). Readiness, timeout,
//     cancellation, close, and peer EOF release parked operations with
//     the appropriate outcome.
//   - Byte-exact: every operation counts octets. Stop bytes are single
//     octets, included in the result that they terminate.
//   - Backpressure: memory streams park writers above a high-water
//     mark; writable pipes keep an ordered ticket queue so a later
//     write never overtakes an earlier one.
//   - Non-blocking first: the descriptor layer surfaces
//     iox.ErrWouldBlock as a control-flow signal (re-exposed as
//     stream.ErrWouldBlock); descriptor streams never issue a blocking
//     system call.
//
// A stream instance is owned by one logical task at a time. Operations
// take a context for cancellation and a per-operation timeout, where a
// zero timeout means "wait indefinitely".
package stream

import (
	"context"
	"time"
)

// ChunkSize is the batch size for descriptor I/O: the default read
// length when a pipe read requests "any amount", and the non-blocking
// write batch size.
const ChunkSize = 8192

// Stream is the capability common to every stream type.
type Stream interface {
	// Close releases the stream and its resources. It is idempotent;
	// operations suspended at close time fail with ErrClosed, except
	// parked memory-stream reads, which return an empty result.
	Close() error

	// IsOpen reports whether the stream is still open.
	IsOpen() bool
}

// Readable is a stream bytes can be read from.
type Readable interface {
	Stream

	// Read returns up to length bytes; length 0 requests "any positive
	// amount". When stop is non-empty its first octet is a stop byte:
	// the read returns as soon as that byte is observed, with the byte
	// included as the final byte of the result. Remaining stop bytes
	// are ignored (octet-only contract). A zero timeout waits
	// indefinitely.
	//
	// On a descriptor stream, a read that would block but finds EOF
	// returns an empty result and closes the stream; the next Read
	// fails with ErrUnreadable.
	Read(ctx context.Context, length int, stop []byte, timeout time.Duration) ([]byte, error)

	// Unshift prepends p to the internal buffer so it is returned
	// ahead of any bytes not yet delivered. A parked read is woken.
	Unshift(p []byte) error

	// IsReadable reports whether Read can still produce bytes.
	IsReadable() bool
}

// Writable is a stream bytes can be written to.
type Writable interface {
	Stream

	// Write queues data and returns the byte count once the stream has
	// accepted all of it. Acceptance is internal: a memory stream above
	// its high-water mark and a descriptor stream with a busy kernel
	// buffer both suspend the caller until the bytes are through.
	Write(ctx context.Context, data []byte, timeout time.Duration) (int, error)

	// End writes data and then marks the stream unwritable. Subsequent
	// writes fail with ErrUnwritable immediately.
	End(ctx context.Context, data []byte, timeout time.Duration) (int, error)

	// IsWritable reports whether Write can still accept bytes.
	IsWritable() bool
}

// Duplex is a stream readable and writable over one object.
type Duplex interface {
	Readable
	Writable
}

// Seekable is a duplex stream with a repositionable cursor.
type Seekable interface {
	Duplex

	// Seek moves the cursor per whence (io.SeekStart, io.SeekCurrent,
	// io.SeekEnd) and returns the new absolute offset. Targets outside
	// [0, Size] fail with ErrOutOfBounds; Size itself is the end
	// position.
	Seek(ctx context.Context, offset int64, whence int, timeout time.Duration) (int64, error)

	// Tell returns the current cursor offset.
	Tell() int64

	// Size returns the number of retained bytes.
	Size() int
}

// DescriptorBacked is implemented by streams that wrap an OS
// descriptor.
type DescriptorBacked interface {
	// Resource returns the underlying descriptor.
	Resource() int

	// Rebind re-creates the stream's readiness watchers against the
	// current reactor, re-arming any watcher that was pending. Call it
	// on every descriptor stream after SetReactor (e.g. after fork).
	Rebind() error
}

// stopByteOf applies the octet-only stop-byte contract: only the first
// byte of stop is honored, and an empty slice means no stop byte.
func stopByteOf(stop []byte) (byte, bool) {
	if len(stop) == 0 {
		return 0, false
	}
	return stop[0], true
}

// extract applies the shared extract policy to b given the requested
// length (0 means "all available") and optional stop byte:
//
//  1. stop set and found at index p, with length 0 or p < length:
//     the first p+1 bytes, stop byte included;
//  2. otherwise, length 0: the entire contents;
//  3. otherwise: the first min(length, available) bytes.
func extract(b *Buffer, length int, stop byte, hasStop bool) []byte {
	if hasStop {
		if p, ok := b.Search(stop); ok && (length == 0 || p < length) {
			return b.Shift(p + 1)
		}
	}
	if length == 0 {
		return b.Drain()
	}
	return b.Shift(length)
}
