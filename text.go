// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"errors"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"code.hybscloud.com/stream/internal/bo"
)

// UTF16Native returns the UTF-16 encoding in the machine's native byte
// order, without a byte order mark.
func UTF16Native() encoding.Encoding {
	if bo.Little() {
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	}
	return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
}

// TextReader decodes bytes read from a stream into text. Multibyte
// sequences split across reads are retained and completed by the next
// read, so chunk boundaries never corrupt output.
type TextReader struct {
	src     Readable
	dec     transform.Transformer
	pending []byte
}

// NewTextReader wraps src with enc; nil enc means UTF-8.
func NewTextReader(src Readable, enc encoding.Encoding) *TextReader {
	if enc == nil {
		enc = unicode.UTF8
	}
	return &TextReader{src: src, dec: enc.NewDecoder()}
}

// Read reads up to length source bytes (0 means "any amount") and
// returns the text they decode to. At end of stream the source yields
// no bytes and retained trailing bytes are flushed. An empty result with
// a nil error also occurs mid-stream, when the bytes read so far end
// inside a multibyte sequence.
func (r *TextReader) Read(ctx context.Context, length int, timeout time.Duration) (string, error) {
	if length < 0 {
		return "", ErrInvalidArgument
	}
	data, err := r.src.Read(ctx, length, nil, timeout)
	if err != nil {
		return "", err
	}
	return r.decode(data, len(data) == 0)
}

// ReadLine reads through the next newline and returns the decoded line,
// delimiter included. A stream that ends mid-line yields the partial
// line together with ErrClosed. Only ASCII-superset encodings are
// supported here: the newline octet must not occur inside a multibyte
// sequence.
func (r *TextReader) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	data, err := ReadUntil(ctx, r.src, []byte{'\n'}, 0, timeout)
	if err != nil && len(data) == 0 {
		return "", err
	}
	line, derr := r.decode(data, err != nil)
	if derr != nil {
		return line, derr
	}
	return line, err
}

func (r *TextReader) decode(data []byte, atEOF bool) (string, error) {
	r.pending = append(r.pending, data...)
	out, n, err := transformAll(r.dec, r.pending, atEOF)
	r.pending = append([]byte(nil), r.pending[n:]...)
	if err != nil {
		return string(out), newFailure("decode", err)
	}
	return string(out), nil
}

// TextWriter encodes text and writes the bytes to a stream.
type TextWriter struct {
	dst Writable
	enc transform.Transformer
}

// NewTextWriter wraps dst with enc; nil enc means UTF-8.
func NewTextWriter(dst Writable, enc encoding.Encoding) *TextWriter {
	if enc == nil {
		enc = unicode.UTF8
	}
	return &TextWriter{dst: dst, enc: enc.NewEncoder()}
}

// Write encodes s and writes the bytes, returning the byte count.
func (w *TextWriter) Write(ctx context.Context, s string, timeout time.Duration) (int, error) {
	data, err := w.encode(s)
	if err != nil {
		return 0, err
	}
	return w.dst.Write(ctx, data, timeout)
}

// WriteLine writes s followed by a newline.
func (w *TextWriter) WriteLine(ctx context.Context, s string, timeout time.Duration) (int, error) {
	return w.Write(ctx, s+"\n", timeout)
}

// End encodes s, writes the bytes, and marks the stream unwritable.
func (w *TextWriter) End(ctx context.Context, s string, timeout time.Duration) (int, error) {
	data, err := w.encode(s)
	if err != nil {
		return 0, err
	}
	return w.dst.End(ctx, data, timeout)
}

func (w *TextWriter) encode(s string) ([]byte, error) {
	w.enc.Reset()
	out, _, err := transformAll(w.enc, []byte(s), true)
	if err != nil {
		return nil, newFailure("encode", err)
	}
	return out, nil
}

// transformAll runs t over src, growing the destination as needed. With
// atEOF false an incomplete trailing sequence is left unconsumed for
// the caller to retain.
func transformAll(t transform.Transformer, src []byte, atEOF bool) (out []byte, nSrc int, err error) {
	dst := make([]byte, len(src)*2+16)
	var nDst int
	for {
		d, s, e := t.Transform(dst[nDst:], src[nSrc:], atEOF)
		nDst += d
		nSrc += s
		switch {
		case e == nil:
			return dst[:nDst], nSrc, nil
		case errors.Is(e, transform.ErrShortDst):
			dst = append(dst, make([]byte, len(dst))...)
		case errors.Is(e, transform.ErrShortSrc) && !atEOF:
			return dst[:nDst], nSrc, nil
		default:
			return dst[:nDst], nSrc, e
		}
	}
}
