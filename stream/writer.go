// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package stream

import (
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	linecodec "github.com/ssbc/go-linecodec"
	"github.com/ssbc/go-linecodec/buffer"
)

// Writer writes frames to an underlying io.Writer. It is not safe for concurrent use.
type Writer struct {
	w   io.Writer
	enc *linecodec.Encoder
	buf *buffer.Buffer

	buffered  bool
	threshold int
	closed    bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer) error

// WithBuffered keeps frames in memory until Flush or Close instead of writing each one right away.
func WithBuffered() WriterOption {
	return func(w *Writer) error {
		w.buffered = true
		return nil
	}
}

// WithFlushThreshold buffers frames like WithBuffered but flushes once n bytes are pending.
func WithFlushThreshold(n int) WriterOption {
	return func(w *Writer) error {
		if n <= 0 {
			return errors.Errorf("flush threshold must be positive (%d)", n)
		}
		w.buffered = true
		w.threshold = n
		return nil
	}
}

// NewWriter writes frames encoded by enc to w.
func NewWriter(w io.Writer, enc *linecodec.Encoder, opts ...WriterOption) (*Writer, error) {
	if w == nil || enc == nil {
		return nil, errors.New("stream: writer and encoder are required")
	}
	fw := &Writer{
		w:   w,
		enc: enc,
		buf: buffer.New(linecodec.DefaultMinCapacity),
	}
	for i, opt := range opts {
		if err := opt(fw); err != nil {
			return nil, errors.Wrapf(err, "stream: writer option #%d", i)
		}
	}
	return fw, nil
}

var errWriterClosed = errors.New("stream: writer closed")

// WriteFrame encodes p as one frame.
func (fw *Writer) WriteFrame(p []byte) error {
	if fw.closed {
		return errWriterClosed
	}
	if err := fw.enc.Encode(p, fw.buf); err != nil {
		return err
	}
	if fw.buffered && (fw.threshold == 0 || fw.buf.Len() < fw.threshold) {
		return nil
	}
	return fw.Flush()
}

// Flush writes all pending frames to the underlying writer.
func (fw *Writer) Flush() error {
	if _, err := fw.buf.WriteTo(fw.w); err != nil {
		return errors.Wrap(err, "stream: flush failed")
	}
	return nil
}

// Close flushes pending frames and closes the underlying writer if it is an io.Closer.
func (fw *Writer) Close() error {
	if fw.closed {
		return nil
	}
	fw.closed = true

	var result *multierror.Error
	if err := fw.Flush(); err != nil {
		result = multierror.Append(result, err)
	}
	if c, ok := fw.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "stream: close failed"))
		}
	}
	return result.ErrorOrNil()
}
