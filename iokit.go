// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock is the non-blocking control-flow signal surfaced by the
// descriptor layer, re-exported so callers can reference it without
// importing iox directly. It never escapes the package API: stream
// operations park instead of returning it.
var ErrWouldBlock = iox.ErrWouldBlock

// NewIOReader adapts src to the standard io.Reader contract, so streams
// compose with io-based code. End of stream maps to io.EOF.
func NewIOReader(ctx context.Context, src Readable, timeout time.Duration) iox.Reader {
	return &ioReader{ctx: ctx, src: src, timeout: timeout}
}

type ioReader struct {
	ctx     context.Context
	src     Readable
	timeout time.Duration
}

func (r *ioReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	data, err := r.src.Read(r.ctx, len(p), nil, r.timeout)
	if err != nil {
		if errors.Is(err, ErrUnreadable) {
			return 0, io.EOF
		}
		return 0, err
	}
	if len(data) == 0 {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

// NewIOWriter adapts dst to the standard io.Writer contract.
func NewIOWriter(ctx context.Context, dst Writable, timeout time.Duration) iox.Writer {
	return &ioWriter{ctx: ctx, dst: dst, timeout: timeout}
}

type ioWriter struct {
	ctx     context.Context
	dst     Writable
	timeout time.Duration
}

func (w *ioWriter) Write(p []byte) (int, error) {
	return w.dst.Write(w.ctx, p, w.timeout)
}
