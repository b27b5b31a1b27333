// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package stream_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"code.hybscloud.com/stream"
)

func openTempFileFD(t *testing.T) int {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "regular")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return int(f.Fd())
}

func newPair(t *testing.T) (*stream.DuplexPipe, *stream.DuplexPipe) {
	t.Helper()
	a, b, err := stream.NewPipePair()
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func TestPipeRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, b := newPair(t)

	n, err := a.Write(ctx, []byte("hello"), 0)
	if err != nil || n != 5 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	data, err := b.Read(ctx, 0, nil, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("read=%q", data)
	}
}

func TestPipeParkedReadWokenByWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, b := newPair(t)

	got := make(chan string, 1)
	go func() {
		data, err := b.Read(ctx, 0, nil, 0)
		if err != nil {
			got <- "err:" + err.Error()
			return
		}
		got <- string(data)
	}()
	time.Sleep(20 * time.Millisecond)
	if _, err := a.Write(ctx, []byte("wakeup"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case g := <-got:
		if g != "wakeup" {
			t.Fatalf("read=%q", g)
		}
	case <-time.After(time.Second):
		t.Fatal("parked read never woke")
	}
}

func TestPipeStopByteKeepsRemainder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, b := newPair(t)

	if _, err := a.Write(ctx, []byte("abcdef"), 0); err != nil {
		t.Fatal(err)
	}
	data, err := b.Read(ctx, 0, []byte{'c'}, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "abc" {
		t.Fatalf("read(0,'c')=%q", data)
	}
	// The remainder sits in the internal buffer, not the kernel.
	data, err = b.Read(ctx, 0, nil, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "def" {
		t.Fatalf("rest=%q", data)
	}
}

func TestPipeUnshift(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, b := newPair(t)

	if _, err := a.Write(ctx, []byte(alphabet), 0); err != nil {
		t.Fatal(err)
	}
	data, err := b.Read(ctx, 3, nil, 0)
	if err != nil || string(data) != "abc" {
		t.Fatalf("read(3)=%q err=%v", data, err)
	}
	if err := b.Unshift([]byte("1234567890")); err != nil {
		t.Fatal(err)
	}
	data, err = b.Read(ctx, 0, nil, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "1234567890"+alphabet[3:] {
		t.Fatalf("read after unshift=%q", data)
	}
}

func TestPipeEOF(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, b := newPair(t)

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := b.Read(ctx, 0, nil, 0)
	if err != nil {
		t.Fatalf("read at eof: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("read at eof=%q", data)
	}
	if _, err := b.Read(ctx, 0, nil, 0); err != stream.ErrUnreadable {
		t.Fatalf("read after eof=%v", err)
	}
}

func TestPipeDataBeforeEOFIsDelivered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, b := newPair(t)

	if _, err := a.End(ctx, []byte("bye"), 0); err != nil {
		t.Fatal(err)
	}
	if a.IsOpen() {
		t.Fatal("duplex open after end")
	}
	data, err := b.Read(ctx, 0, nil, 0)
	if err != nil || string(data) != "bye" {
		t.Fatalf("read=%q err=%v", data, err)
	}
	data, err = b.Read(ctx, 0, nil, 0)
	if err != nil || len(data) != 0 {
		t.Fatalf("eof read=%q err=%v", data, err)
	}
}

func TestPipeReadTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, b := newPair(t)

	start := time.Now()
	_, err := b.Read(ctx, 0, nil, 100*time.Millisecond)
	if !errors.Is(err, stream.ErrTimeout) {
		t.Fatalf("err=%v", err)
	}
	if d := time.Since(start); d < 90*time.Millisecond {
		t.Fatalf("timed out after %v", d)
	}
	if !b.IsReadable() {
		t.Fatal("stream not readable after timeout")
	}
}

func TestPipeReadCancellation(t *testing.T) {
	t.Parallel()
	a, b := newPair(t)

	cctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.Read(cctx, 0, nil, 0)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled read never returned")
	}

	// The stream survives the cancellation.
	ctx := context.Background()
	if _, err := a.Write(ctx, []byte("ok"), 0); err != nil {
		t.Fatal(err)
	}
	data, err := b.Read(ctx, 0, nil, 0)
	if err != nil || string(data) != "ok" {
		t.Fatalf("read=%q err=%v", data, err)
	}
}

func TestPipeBulkTransferPreservesBytes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, b := newPair(t)

	big := bytes.Repeat([]byte("0123456789abcdef"), 64*1024) // 1 MiB
	wrote := make(chan error, 1)
	go func() {
		n, err := a.Write(ctx, big, 0)
		if err == nil && n != len(big) {
			err = errors.New("short write count")
		}
		wrote <- err
	}()

	var got []byte
	for len(got) < len(big) {
		data, err := b.Read(ctx, 0, nil, time.Second)
		if err != nil {
			t.Fatalf("read after %d bytes: %v", len(got), err)
		}
		got = append(got, data...)
	}
	if err := <-wrote; err != nil {
		t.Fatalf("write: %v", err)
	}
	if !bytes.Equal(got, big) {
		t.Fatal("transfer corrupted bytes")
	}
}

func TestPipeWritesCompleteInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, b := newPair(t)

	first := bytes.Repeat([]byte("A"), 512*1024)
	second := []byte("THE-END")
	go func() {
		_, _ = a.Write(ctx, first, 0)
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		_, _ = a.Write(ctx, second, 0)
	}()

	var got []byte
	want := len(first) + len(second)
	for len(got) < want {
		data, err := b.Read(ctx, 0, nil, time.Second)
		if err != nil {
			t.Fatalf("read after %d bytes: %v", len(got), err)
		}
		got = append(got, data...)
	}
	if !bytes.Equal(got[:len(first)], first) || !bytes.Equal(got[len(first):], second) {
		t.Fatal("later write overtook earlier write")
	}
}

func TestPipeAwaitReady(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, _ := newPair(t)

	if err := a.AwaitReady(ctx, time.Second); err != nil {
		t.Fatalf("await: %v", err)
	}
}

func TestPipeWriteAfterEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, _ := newPair(t)

	if _, err := a.End(ctx, nil, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Write(ctx, []byte("late"), 0); err != stream.ErrUnwritable {
		t.Fatalf("write after end=%v", err)
	}
}

func TestPipeWriteToClosedPeerFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, b := newPair(t)

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	// The first write may land in the kernel buffer before the reset is
	// observed; the failure must surface within a few attempts.
	var err error
	for i := 0; i < 8 && err == nil; i++ {
		_, err = a.Write(ctx, []byte("to nobody"), 0)
	}
	if !errors.Is(err, stream.ErrFailure) {
		t.Fatalf("err=%v", err)
	}
	if a.IsWritable() {
		t.Fatal("stream writable after failure")
	}
}

func TestPipePollReady(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, b := newPair(t)

	if _, err := a.Write(ctx, []byte("ab"), 0); err != nil {
		t.Fatal(err)
	}
	if err := b.PollReady(ctx, time.Second); err != nil {
		t.Fatalf("poll with kernel data: %v", err)
	}

	// A non-empty internal buffer makes readiness meaningless.
	data, err := b.Read(ctx, 0, []byte{'a'}, 0)
	if err != nil || string(data) != "a" {
		t.Fatalf("read=%q err=%v", data, err)
	}
	if err := b.PollReady(ctx, time.Second); !errors.Is(err, stream.ErrFailure) {
		t.Fatalf("poll with buffered data=%v", err)
	}
}

func TestPipeRebind(t *testing.T) {
	ctx := context.Background()
	a, b := newPair(t)

	next, err := stream.NewPollReactor()
	if err != nil {
		t.Fatal(err)
	}
	prev, err := stream.CurrentReactor()
	if err != nil {
		t.Fatal(err)
	}
	stream.SetReactor(next)
	defer stream.SetReactor(prev)
	defer next.Close()

	if err := a.Rebind(); err != nil {
		t.Fatal(err)
	}
	if err := b.Rebind(); err != nil {
		t.Fatal(err)
	}

	got := make(chan string, 1)
	go func() {
		data, err := b.Read(ctx, 0, nil, 0)
		if err != nil {
			got <- "err:" + err.Error()
			return
		}
		got <- string(data)
	}()
	time.Sleep(20 * time.Millisecond)
	if _, err := a.Write(ctx, []byte("rebound"), 0); err != nil {
		t.Fatal(err)
	}
	select {
	case g := <-got:
		if g != "rebound" {
			t.Fatalf("read=%q", g)
		}
	case <-time.After(time.Second):
		t.Fatal("read on rebound stream never woke")
	}
}

func TestReadablePipeRejectsRegularFiles(t *testing.T) {
	t.Parallel()

	// Descriptor 0 in tests may be a character device or a regular
	// file; construct a descriptor known to be a regular file instead.
	fd := openTempFileFD(t)
	if _, err := stream.NewReadablePipe(fd, stream.WithAutoClose(false)); err != stream.ErrInvalidArgument {
		t.Fatalf("readable pipe over regular file=%v", err)
	}
}
