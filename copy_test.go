// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/stream"
)

func TestReadExact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := stream.NewMemoryStream()
	mustWrite(t, s, "hello world")

	data, err := stream.ReadExact(ctx, s, 5, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	data, err = stream.ReadExact(ctx, s, 0, 0)
	require.NoError(t, err)
	require.Empty(t, data)

	_, err = stream.ReadExact(ctx, s, -1, 0)
	require.ErrorIs(t, err, stream.ErrInvalidArgument)
}

func TestReadExactAcrossWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := stream.NewMemoryStream()
	got := make(chan string, 1)
	go func() {
		data, err := stream.ReadExact(ctx, s, 6, 0)
		if err != nil {
			got <- "err:" + err.Error()
			return
		}
		got <- string(data)
	}()
	mustWrite(t, s, "foo")
	mustWrite(t, s, "bar")
	require.Equal(t, "foobar", <-got)
}

func TestReadExactPartialAtEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := stream.NewMemoryStream()
	_, err := s.End(ctx, []byte("ab"), 0)
	require.NoError(t, err)

	data, err := stream.ReadExact(ctx, s, 5, 0)
	require.ErrorIs(t, err, stream.ErrClosed)
	require.Equal(t, "ab", string(data))
}

func TestReadUntil(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := stream.NewMemoryStream()
	mustWrite(t, s, "GET / HTTP/1.0\r\n\r\nbody")

	data, err := stream.ReadUntil(ctx, s, []byte("\r\n\r\n"), 0, 0)
	require.NoError(t, err)
	require.Equal(t, "GET / HTTP/1.0\r\n\r\n", string(data))

	data, err = stream.ReadUntil(ctx, s, []byte("y"), 0, 0)
	require.NoError(t, err)
	require.Equal(t, "body", string(data))
}

func TestReadUntilStopByteWithoutFullNeedle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// The accelerator byte '\n' occurs alone before the full "\r\n"
	// needle does; matching must be on the whole needle.
	s := stream.NewMemoryStream()
	mustWrite(t, s, "a\nb\r\nrest")

	data, err := stream.ReadUntil(ctx, s, []byte("\r\n"), 0, 0)
	require.NoError(t, err)
	require.Equal(t, "a\nb\r\n", string(data))
}

func TestReadUntilMaxLen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := stream.NewMemoryStream()
	mustWrite(t, s, "abcdef")

	data, err := stream.ReadUntil(ctx, s, []byte("zz"), 4, 0)
	require.NoError(t, err)
	require.Equal(t, "abcd", string(data))
}

func TestReadUntilInvalidNeedle(t *testing.T) {
	t.Parallel()

	s := stream.NewMemoryStream()
	_, err := stream.ReadUntil(context.Background(), s, nil, 0, 0)
	require.ErrorIs(t, err, stream.ErrInvalidArgument)
}

func TestReadUntilEndBeforeMatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := stream.NewMemoryStream()
	_, err := s.End(ctx, []byte("no delimiter"), 0)
	require.NoError(t, err)

	data, err := stream.ReadUntil(ctx, s, []byte("\n"), 0, 0)
	require.ErrorIs(t, err, stream.ErrClosed)
	require.Equal(t, "no delimiter", string(data))
}

func TestReadAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := stream.NewMemoryStream()
	mustWrite(t, s, "part one ")
	mustWrite(t, s, "part two")
	_, err := s.End(ctx, nil, 0)
	require.NoError(t, err)

	data, err := stream.ReadAll(ctx, s, 0, 0)
	require.NoError(t, err)
	require.Equal(t, "part one part two", string(data))
}

func TestReadAllMaxLen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := stream.NewMemoryStream()
	mustWrite(t, s, "abcdef")

	data, err := stream.ReadAll(ctx, s, 4, 0)
	require.NoError(t, err)
	require.Equal(t, "abcd", string(data))
}

func TestPipeStopByte(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := stream.NewMemoryStream()
	dst := stream.NewMemoryStream()
	mustWrite(t, src, "hello!world")

	n, err := stream.Pipe(ctx, dst, src, stream.WithEnd(), stream.WithStopByte([]byte{'!'}))
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.False(t, dst.IsWritable())
	require.True(t, src.IsReadable())

	data, err := dst.Read(ctx, 0, nil, 0)
	require.NoError(t, err)
	require.Equal(t, "hello!", string(data))
	// Bytes past the stop byte stay in the source.
	data, err = src.Read(ctx, 0, nil, 0)
	require.NoError(t, err)
	require.Equal(t, "world", string(data))
}

func TestPipeCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := stream.NewMemoryStream()
	dst := stream.NewMemoryStream()
	mustWrite(t, src, alphabet)

	n, err := stream.Pipe(ctx, dst, src, stream.WithCount(10))
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.True(t, dst.IsWritable())

	data, err := dst.Read(ctx, 0, nil, 0)
	require.NoError(t, err)
	require.Equal(t, "abcdefghij", string(data))
}

func TestPipeUntilSourceEnds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := stream.NewMemoryStream()
	dst := stream.NewMemoryStream()
	mustWrite(t, src, alphabet)
	_, err := src.End(ctx, nil, 0)
	require.NoError(t, err)

	n, err := stream.Pipe(ctx, dst, src, stream.WithEnd())
	require.NoError(t, err)
	require.Equal(t, len(alphabet), n)
	require.False(t, src.IsOpen())
	require.False(t, dst.IsWritable())

	data, err := dst.Read(ctx, 0, nil, 0)
	require.NoError(t, err)
	require.Equal(t, alphabet, string(data))
}

func TestPipeEndsDestinationOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := stream.NewMemoryStream()
	// A tiny high-water mark with a short pipe timeout forces the write
	// inside the loop to fail with ErrTimeout.
	dst := stream.NewMemoryStream(stream.WithHighWaterMark(1))
	mustWrite(t, src, "data")

	_, err := stream.Pipe(ctx, dst, src,
		stream.WithEnd(), stream.WithPipeTimeout(50*time.Millisecond))
	require.ErrorIs(t, err, stream.ErrTimeout)
	// The destination was ended on the error path; the source was not.
	require.False(t, dst.IsWritable())
	require.True(t, src.IsReadable())
}
