// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import "time"

// Options configures stream construction.
type Options struct {
	// HighWaterMark is the byte threshold above which a memory stream
	// parks writers. Zero means unlimited (no backpressure).
	HighWaterMark int

	// AutoClose controls whether a descriptor stream closes its
	// descriptor when the stream is closed or freed.
	AutoClose bool

	// ChunkSize overrides the descriptor I/O batch size.
	ChunkSize int

	// Reactor overrides the process-wide reactor for this stream.
	Reactor Reactor
}

var defaultOptions = Options{
	HighWaterMark: 0,
	AutoClose:     true,
	ChunkSize:     ChunkSize,
	Reactor:       nil, // process-wide current reactor
}

type Option func(*Options)

// WithHighWaterMark sets the memory-stream backpressure threshold in
// bytes. Zero disables backpressure.
func WithHighWaterMark(hwm int) Option {
	return func(o *Options) { o.HighWaterMark = hwm }
}

// WithAutoClose controls descriptor ownership: when false, closing the
// stream leaves the descriptor open for the caller.
func WithAutoClose(autoClose bool) Option {
	return func(o *Options) { o.AutoClose = autoClose }
}

// WithChunkSize overrides the descriptor I/O batch size. Non-positive
// values are ignored.
func WithChunkSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.ChunkSize = n
		}
	}
}

// WithReactor pins the stream to a specific reactor instead of the
// process-wide one.
func WithReactor(r Reactor) Option {
	return func(o *Options) { o.Reactor = r }
}

func applyOptions(opts []Option) Options {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// PipeOptions configures the Pipe helper.
type PipeOptions struct {
	// End ends the destination once piping completes or fails.
	End bool

	// Count caps the number of bytes piped. Zero means unbounded.
	Count int

	// StopByte terminates piping once its first octet has been piped.
	// Empty means no stop byte.
	StopByte []byte

	// Timeout applies per read and per write inside the loop. Zero
	// means none.
	Timeout time.Duration
}

var defaultPipeOptions = PipeOptions{}

type PipeOption func(*PipeOptions)

// WithEnd ends the destination when the pipe loop finishes, whether it
// completed or failed. The source is never ended.
func WithEnd() PipeOption {
	return func(o *PipeOptions) { o.End = true }
}

// WithCount caps the total number of bytes piped.
func WithCount(n int) PipeOption {
	return func(o *PipeOptions) { o.Count = n }
}

// WithStopByte stops piping after the first occurrence of the stop
// octet has been written through. Only the first byte of b is honored.
func WithStopByte(b []byte) PipeOption {
	return func(o *PipeOptions) { o.StopByte = b }
}

// WithPipeTimeout bounds each read and each write inside the pipe loop.
func WithPipeTimeout(d time.Duration) PipeOption {
	return func(o *PipeOptions) { o.Timeout = d }
}
