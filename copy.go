// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"bytes"
	"context"
	"time"
)

// ReadExact reads until exactly n bytes have been collected. A stream
// that ends first yields the partial bytes together with ErrClosed.
// n == 0 returns an empty result immediately.
func ReadExact(ctx context.Context, src Readable, n int, timeout time.Duration) ([]byte, error) {
	if n < 0 {
		return nil, ErrInvalidArgument
	}
	if n == 0 {
		return []byte{}, nil
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		if !src.IsReadable() {
			return out, ErrClosed
		}
		data, err := src.Read(ctx, n-len(out), nil, timeout)
		if err != nil {
			return out, err
		}
		if len(data) == 0 {
			return out, ErrClosed
		}
		out = append(out, data...)
	}
	return out, nil
}

// ReadUntil reads until the accumulated bytes end with needle, or until
// maxLen bytes have been collected when maxLen is non-zero. The
// needle's final byte narrows each read as a stop byte; the match is
// always on the full needle. A stream that ends before a match yields
// the partial bytes together with ErrClosed.
func ReadUntil(ctx context.Context, src Readable, needle []byte, maxLen int, timeout time.Duration) ([]byte, error) {
	if len(needle) == 0 || maxLen < 0 {
		return nil, ErrInvalidArgument
	}
	stop := needle[len(needle)-1:]
	var out []byte
	for {
		if !src.IsReadable() {
			return out, ErrClosed
		}
		want := 0
		if maxLen > 0 {
			want = maxLen - len(out)
		}
		data, err := src.Read(ctx, want, stop, timeout)
		if err != nil {
			return out, err
		}
		if len(data) == 0 {
			return out, ErrClosed
		}
		out = append(out, data...)
		if bytes.HasSuffix(out, needle) {
			return out, nil
		}
		if maxLen > 0 && len(out) >= maxLen {
			return out, nil
		}
	}
}

// ReadAll accumulates reads until the stream ends, or until maxLen
// bytes have been collected when maxLen is non-zero.
func ReadAll(ctx context.Context, src Readable, maxLen int, timeout time.Duration) ([]byte, error) {
	if maxLen < 0 {
		return nil, ErrInvalidArgument
	}
	var out []byte
	for src.IsReadable() {
		want := 0
		if maxLen > 0 {
			want = maxLen - len(out)
			if want == 0 {
				break
			}
		}
		data, err := src.Read(ctx, want, nil, timeout)
		if err != nil {
			return out, err
		}
		if len(data) == 0 {
			break
		}
		out = append(out, data...)
	}
	return out, nil
}

// Pipe repeatedly reads from src and writes to dst, until the source
// ends, the stop byte has been piped, or the byte count is reached.
//
// Semantics:
//   - On normal completion with WithEnd, the destination is ended; the
//     source never is.
//   - On an error inside the loop with WithEnd, the destination is
//     ended (when still writable) before the error propagates.
//   - The returned count is the number of bytes written to dst, equal
//     to the bytes read from src over the call.
func Pipe(ctx context.Context, dst Writable, src Readable, opts ...PipeOption) (int, error) {
	o := defaultPipeOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.Count < 0 {
		return 0, ErrInvalidArgument
	}
	stopB, hasStop := stopByteOf(o.StopByte)

	total := 0
	for src.IsReadable() && dst.IsWritable() {
		want := 0
		if o.Count > 0 {
			want = o.Count - total
			if want == 0 {
				break
			}
		}
		data, err := src.Read(ctx, want, o.StopByte, o.Timeout)
		if err != nil {
			return total, pipeFail(ctx, dst, &o, err)
		}
		if len(data) == 0 {
			break
		}
		n, err := dst.Write(ctx, data, o.Timeout)
		total += n
		if err != nil {
			return total, pipeFail(ctx, dst, &o, err)
		}
		if hasStop && data[len(data)-1] == stopB {
			break
		}
	}
	if o.End && dst.IsWritable() {
		if _, err := dst.End(ctx, nil, o.Timeout); err != nil {
			return total, err
		}
	}
	return total, nil
}

func pipeFail(ctx context.Context, dst Writable, o *PipeOptions, err error) error {
	if o.End && dst.IsWritable() {
		_, _ = dst.End(ctx, nil, o.Timeout)
	}
	return err
}
