// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package stream

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/ssbc/go-luigi"
)

// FrameReader is implemented by *Reader and *Conn.
type FrameReader interface {
	ReadFrame() ([]byte, error)
}

// FrameWriter is implemented by *Writer and *Conn.
type FrameWriter interface {
	WriteFrame([]byte) error
	Close() error
}

// NewSource returns a luigi.Source that yields each frame of r as []byte.
// The end of the input is reported as luigi.EOS. A blocked read is not interrupted by the context.
func NewSource(r FrameReader) luigi.Source {
	return &frameSource{r: r}
}

type frameSource struct {
	mu sync.Mutex
	r  FrameReader
}

func (src *frameSource) Next(ctx context.Context) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src.mu.Lock()
	defer src.mu.Unlock()

	frame, err := src.r.ReadFrame()
	if err == io.EOF {
		return nil, luigi.EOS{}
	}
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// NewSink returns a luigi.Sink that writes []byte and string values to w as frames.
func NewSink(w FrameWriter) luigi.Sink {
	return &frameSink{w: w}
}

type frameSink struct {
	mu sync.Mutex
	w  FrameWriter
}

func (snk *frameSink) Pour(ctx context.Context, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var p []byte
	switch tv := v.(type) {
	case []byte:
		p = tv
	case string:
		p = []byte(tv)
	default:
		return errors.Errorf("stream: sink expects []byte or string, got %T", v)
	}

	snk.mu.Lock()
	defer snk.mu.Unlock()
	return snk.w.WriteFrame(p)
}

func (snk *frameSink) Close() error {
	return snk.CloseWithError(nil)
}

// CloseWithError closes the underlying writer. There is no way to send err to the peer.
func (snk *frameSink) CloseWithError(err error) error {
	snk.mu.Lock()
	defer snk.mu.Unlock()
	return snk.w.Close()
}

var (
	_ FrameReader = (*Reader)(nil)
	_ FrameReader = (*Conn)(nil)
	_ FrameWriter = (*Writer)(nil)
	_ FrameWriter = (*Conn)(nil)

	_ luigi.Source      = (*frameSource)(nil)
	_ luigi.Sink        = (*frameSink)(nil)
	_ luigi.ErrorCloser = (*frameSink)(nil)
)
