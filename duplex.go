// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package stream

import (
	"context"
	"sync"
	"time"
)

// DuplexPipe composes a readable and a writable pipe over one
// descriptor. The halves share the descriptor; the duplex owns it and
// releases it once both halves have closed (with AutoClose, the
// default).
type DuplexPipe struct {
	r  *ReadablePipe
	w  *WritablePipe
	fd int

	mu       sync.Mutex
	auto     bool
	released bool
}

// NewDuplexPipe wraps fd with a duplex stream.
func NewDuplexPipe(fd int, opts ...Option) (*DuplexPipe, error) {
	o := applyOptions(opts)
	// The halves never close the shared descriptor themselves.
	half := append(append([]Option(nil), opts...), WithAutoClose(false))
	r, err := NewReadablePipe(fd, half...)
	if err != nil {
		return nil, err
	}
	w, err := NewWritablePipe(fd, half...)
	if err != nil {
		r.Close()
		return nil, err
	}
	return &DuplexPipe{r: r, w: w, fd: fd, auto: o.AutoClose}, nil
}

// Read implements Readable.
func (d *DuplexPipe) Read(ctx context.Context, length int, stop []byte, timeout time.Duration) ([]byte, error) {
	data, err := d.r.Read(ctx, length, stop, timeout)
	d.maybeRelease()
	return data, err
}

// Unshift implements Readable.
func (d *DuplexPipe) Unshift(p []byte) error { return d.r.Unshift(p) }

// Write implements Writable.
func (d *DuplexPipe) Write(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	n, err := d.w.Write(ctx, data, timeout)
	d.maybeRelease()
	return n, err
}

// End writes data through the writable half, then closes the readable
// half regardless of the write outcome.
func (d *DuplexPipe) End(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	n, err := d.w.End(ctx, data, timeout)
	_ = d.r.Close()
	d.maybeRelease()
	return n, err
}

// AwaitReady waits until the write direction has no backlog.
func (d *DuplexPipe) AwaitReady(ctx context.Context, timeout time.Duration) error {
	return d.w.AwaitReady(ctx, timeout)
}

// PollReady waits for read readiness without consuming bytes.
func (d *DuplexPipe) PollReady(ctx context.Context, timeout time.Duration) error {
	return d.r.PollReady(ctx, timeout)
}

// IsReadable reports whether the read half can still produce bytes.
func (d *DuplexPipe) IsReadable() bool { return d.r.IsReadable() }

// IsWritable reports whether the write half can still accept bytes.
func (d *DuplexPipe) IsWritable() bool { return d.w.IsWritable() }

// IsOpen reports whether either half is open.
func (d *DuplexPipe) IsOpen() bool { return d.r.IsOpen() || d.w.IsOpen() }

// Resource returns the shared descriptor.
func (d *DuplexPipe) Resource() int { return d.fd }

// Rebind rebinds both halves against the current reactor.
func (d *DuplexPipe) Rebind() error {
	if err := d.r.Rebind(); err != nil {
		return err
	}
	return d.w.Rebind()
}

// Close closes both halves and releases the descriptor. Idempotent.
func (d *DuplexPipe) Close() error {
	_ = d.w.Close()
	_ = d.r.Close()
	d.maybeRelease()
	return nil
}

// CloseWithError is Close with a specific cause for parked operations.
func (d *DuplexPipe) CloseWithError(cause error) error {
	_ = d.w.CloseWithError(cause)
	_ = d.r.CloseWithError(cause)
	d.maybeRelease()
	return nil
}

// maybeRelease closes the shared descriptor once both halves are done.
func (d *DuplexPipe) maybeRelease() {
	if d.r.IsOpen() || d.w.IsOpen() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released || !d.auto {
		return
	}
	d.released = true
	_ = fdClose(d.fd)
}

var (
	_ Duplex           = (*DuplexPipe)(nil)
	_ DescriptorBacked = (*DuplexPipe)(nil)
)
