// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"io"
	"sync"
	"time"
)

// Sink is a seekable duplex buffer that retains every byte written to
// it. Reads advance a cursor instead of consuming; writes append when
// the cursor is at the end and splice into place otherwise. Sink
// operations never suspend.
type Sink struct {
	mu  sync.Mutex
	buf *Buffer
	cur *Cursor

	open     bool
	writable bool
}

// NewSink returns an empty, open sink.
func NewSink() *Sink {
	b := NewBuffer()
	return &Sink{buf: b, cur: b.Cursor(), open: true, writable: true}
}

// Read returns up to length bytes starting at the cursor and advances
// the cursor past them. The extract policy matches Readable.Read; a
// cursor at the end makes the sink unreadable until Seek moves it back.
// A write at the end leaves it there, since Write advances the cursor
// past the bytes it appends.
func (s *Sink) Read(ctx context.Context, length int, stop []byte, timeout time.Duration) ([]byte, error) {
	if length < 0 {
		return nil, ErrInvalidArgument
	}
	stopB, hasStop := stopByteOf(stop)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || !s.cur.Valid() {
		return nil, ErrUnreadable
	}
	remaining := s.buf.Len() - s.cur.Key()
	take := remaining
	if length > 0 && length < take {
		take = length
	}
	if hasStop {
		if p, ok := s.buf.searchFrom(stopB, s.cur.Key()); ok {
			rel := p - s.cur.Key()
			if length == 0 || rel < length {
				take = rel + 1
			}
		}
	}
	data := s.buf.Peek(take, s.cur.Key())
	s.cur.advance(take)
	return data, nil
}

// Write splices data in at the cursor (append, when at end) and
// advances the cursor past it.
func (s *Sink) Write(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable {
		return 0, ErrUnwritable
	}
	s.cur.Insert(data)
	s.cur.advance(len(data))
	return len(data), nil
}

// End writes data and marks the sink unwritable. Reads remain valid.
func (s *Sink) End(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	if !s.writable {
		s.mu.Unlock()
		return 0, ErrUnwritable
	}
	s.cur.Insert(data)
	s.cur.advance(len(data))
	s.writable = false
	s.mu.Unlock()
	return len(data), nil
}

// Unshift splices p in at the cursor without advancing, so the next
// read returns it first.
func (s *Sink) Unshift(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrUnreadable
	}
	s.cur.Insert(p)
	return nil
}

// Seek moves the cursor per whence and returns the new offset. Targets
// in [0, Size] are accepted, Size itself being the end position.
func (s *Sink) Seek(ctx context.Context, offset int64, whence int, timeout time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, ErrUnseekable
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.cur.Key()) + offset
	case io.SeekEnd:
		abs = int64(s.buf.Len()) + offset
	default:
		return 0, ErrInvalidArgument
	}
	if abs < 0 || abs > int64(s.buf.Len()) {
		return 0, ErrOutOfBounds
	}
	if err := s.cur.Seek(int(abs)); err != nil {
		return 0, err
	}
	return abs, nil
}

// Tell returns the cursor offset.
func (s *Sink) Tell() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(s.cur.Key())
}

// Size returns the number of retained bytes.
func (s *Sink) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Bytes returns a copy of the full retained contents, independent of
// the cursor.
func (s *Sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Peek(s.buf.Len(), 0)
}

// IsReadable reports whether the cursor addresses unread bytes.
func (s *Sink) IsReadable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open && s.cur.Valid()
}

// IsWritable reports whether Write can still accept bytes.
func (s *Sink) IsWritable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writable
}

// IsOpen reports whether the sink is open.
func (s *Sink) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Close closes the sink and releases its contents. Idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open, s.writable = false, false
	s.buf.reset()
	return nil
}

// compile-time interface checks shared with the buffer-backed streams.
var (
	_ Duplex   = (*MemoryStream)(nil)
	_ Seekable = (*Sink)(nil)
)
