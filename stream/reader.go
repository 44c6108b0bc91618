// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package stream drives the line codec over transports: plain io.Reader and io.Writer,
// luigi sources and sinks and net.Conn.
package stream

import (
	"io"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	linecodec "github.com/ssbc/go-linecodec"
	"github.com/ssbc/go-linecodec/buffer"
)

// DefaultReadSize is the maximum number of bytes a Reader requests per read.
const DefaultReadSize = 32 * 1024

// maxEmptyReads is how many (0, nil) reads in a row are tolerated before giving up.
const maxEmptyReads = 100

// Reader reads frames from an underlying io.Reader. It is not safe for concurrent use.
type Reader struct {
	r   io.Reader
	dec *linecodec.Decoder
	buf *buffer.Buffer
	log kitlog.Logger

	readSize      int
	skipOversized bool
	skipMalformed bool

	readErr error // from the underlying reader, returned once the buffer holds no more frames
	err     error // sticky
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader) error

// WithSkipOversized logs frames over the length limit and goes on with the next one instead of returning ErrLengthExceeded.
func WithSkipOversized() ReaderOption {
	return func(r *Reader) error {
		r.skipOversized = true
		return nil
	}
}

// WithSkipMalformed logs frames the transform rejected and goes on with the next one.
func WithSkipMalformed() ReaderOption {
	return func(r *Reader) error {
		r.skipMalformed = true
		return nil
	}
}

// WithReadSize sets the maximum size of a single read.
func WithReadSize(n int) ReaderOption {
	return func(r *Reader) error {
		if n <= 0 {
			return errors.Errorf("read size must be positive (%d)", n)
		}
		r.readSize = n
		return nil
	}
}

func WithReaderLogger(l kitlog.Logger) ReaderOption {
	return func(r *Reader) error {
		if l == nil {
			return errors.New("nil logger")
		}
		r.log = l
		return nil
	}
}

// NewReader reads from r using dec. The decoder must not be used with any other buffer.
func NewReader(r io.Reader, dec *linecodec.Decoder, opts ...ReaderOption) (*Reader, error) {
	if r == nil || dec == nil {
		return nil, errors.New("stream: reader and decoder are required")
	}
	fr := &Reader{
		r:        r,
		dec:      dec,
		buf:      buffer.New(dec.MinCapacity()),
		log:      kitlog.NewNopLogger(),
		readSize: DefaultReadSize,
	}
	for i, opt := range opts {
		if err := opt(fr); err != nil {
			return nil, errors.Wrapf(err, "stream: reader option #%d", i)
		}
	}
	return fr, nil
}

// ReadFrame returns the next decoded payload.
//
// At the end of the input it returns io.EOF, or an error wrapping io.ErrUnexpectedEOF if the input
// stopped within a frame. linecodec.ErrLengthExceeded and *linecodec.MalformedError only concern
// one frame, ReadFrame can be called again after them. Other errors are returned on every later call.
func (fr *Reader) ReadFrame() ([]byte, error) {
	if fr.err != nil {
		return nil, fr.err
	}

	emptyReads := 0
	for {
		frame, ok, err := fr.dec.Decode(fr.buf)
		if err != nil {
			if fr.skip(err) {
				continue
			}
			return nil, err
		}
		if ok {
			return frame, nil
		}

		if fr.dec.Overflowed(fr.buf) {
			fr.err = errors.Wrapf(linecodec.ErrBufferOverflow, "stream: %d bytes pending", fr.buf.Len())
			return nil, fr.err
		}

		if fr.readErr != nil {
			fr.err = fr.finish()
			return nil, fr.err
		}

		n, err := fr.buf.Fill(fr.r, fr.readSize)
		if err != nil {
			// bytes that came with the error are decoded first
			fr.readErr = err
			continue
		}
		if n == 0 {
			emptyReads++
			if emptyReads >= maxEmptyReads {
				fr.err = io.ErrNoProgress
				return nil, fr.err
			}
			continue
		}
		emptyReads = 0
	}
}

func (fr *Reader) skip(err error) bool {
	switch {
	case fr.skipOversized && errors.Is(err, linecodec.ErrLengthExceeded):
		level.Warn(fr.log).Log("event", "skipping frame", "reason", "too long", "limit", fr.dec.MaxFrameLength())
		return true
	case fr.skipMalformed && linecodec.IsMalformed(err):
		level.Warn(fr.log).Log("event", "skipping frame", "reason", "malformed", "err", err)
		return true
	}
	return false
}

// finish is called once the underlying reader failed and no complete frame is left.
func (fr *Reader) finish() error {
	if fr.readErr != io.EOF {
		return errors.Wrap(fr.readErr, "stream: read failed")
	}
	if fr.buf.Len() == 0 || fr.dec.Discarding() {
		return io.EOF
	}
	return errors.Wrapf(io.ErrUnexpectedEOF, "stream: input ended within a frame (%d bytes)", fr.buf.Len())
}

// Buffered is the number of bytes read but not yet returned as frames.
func (fr *Reader) Buffered() int { return fr.buf.Len() }
