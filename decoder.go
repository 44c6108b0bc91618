// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package linecodec

import (
	"bytes"

	humanize "github.com/dustin/go-humanize"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/ssbc/go-linecodec/buffer"
)

type decoderState uint8

const (
	seeking decoderState = iota
	discarding
)

func (s decoderState) String() string {
	switch s {
	case seeking:
		return "seeking"
	case discarding:
		return "discarding"
	}
	return "unknown"
}

// Decoder extracts frames from an input buffer, one per call.
//
// It remembers how far it already searched for a delimiter, so feeding a frame in many small pieces
// costs linear scan work in the frame length. That position refers to the buffer content, so a Decoder
// must only ever be used with one buffer. It is not safe for concurrent use.
type Decoder struct {
	cfg Config
	log kitlog.Logger

	state decoderState
	// cursor is the offset up to which the content was searched without finding a delimiter
	cursor int
}

// NewDecoder returns a decoder without a frame length limit.
//
// Without a limit the buffer holding a partial frame grows without bound.
// Input from untrusted peers should use NewDecoderWithLimit.
func NewDecoder(minCapacity int, opts ...Option) (*Decoder, error) {
	opts = append([]Option{WithMinCapacity(minCapacity)}, opts...)
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return newDecoder(cfg), nil
}

// NewDecoderWithLimit returns a decoder that rejects frames longer than maxFrameLength bytes.
//
// The first Decode call that runs into the limit returns ErrLengthExceeded. After that the decoder
// drops input until it sees the next delimiter and continues with the frame after it.
func NewDecoderWithLimit(maxFrameLength, minCapacity int, opts ...Option) (*Decoder, error) {
	opts = append([]Option{WithMaxFrameLength(maxFrameLength), WithMinCapacity(minCapacity)}, opts...)
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return newDecoder(cfg), nil
}

func newDecoder(cfg Config) *Decoder {
	return &Decoder{
		cfg: cfg,
		log: kitlog.With(cfg.Logger, "unit", "decoder"),
	}
}

func (d *Decoder) MaxFrameLength() int { return d.cfg.MaxFrameLength }

func (d *Decoder) MinCapacity() int { return d.cfg.MinCapacity }

// Discarding is true while the decoder skips the rest of an oversized frame.
func (d *Decoder) Discarding() bool { return d.state == discarding }

// Overflowed is true if buf holds more than MaxBuffered bytes, which stops Decode from returning frames.
func (d *Decoder) Overflowed(buf *buffer.Buffer) bool {
	return d.cfg.MaxBuffered > 0 && buf.Len() > d.cfg.MaxBuffered
}

// Decode returns the next frame from buf and removes it, delimiter included.
//
// ok is false with a nil error if buf holds no complete frame yet. ErrLengthExceeded and
// *MalformedError are reported per frame; the decoder stays usable after both.
func (d *Decoder) Decode(buf *buffer.Buffer) (frame []byte, ok bool, err error) {
	if buf.Cap() < d.cfg.MinCapacity {
		buf.Reserve(d.cfg.prealloc() - buf.Len())
	}

	if d.Overflowed(buf) {
		level.Warn(d.log).Log("event", "oversized input", "msg", "holding input, no frame returned",
			"buffered", humanize.Bytes(uint64(buf.Len())),
			"limit", humanize.Bytes(uint64(d.cfg.MaxBuffered)))
		d.cfg.Metrics.event(EventOverflow)
		return nil, false, nil
	}

	for {
		content := buf.Bytes()

		// search at most one byte past the limit; without a limit up to the end of the content
		readTo := len(content)
		if d.cfg.MaxFrameLength < readTo-1 {
			readTo = d.cfg.MaxFrameLength + 1
		}

		offset := -1
		if d.cursor < readTo {
			offset = bytes.IndexByte(content[d.cursor:readTo], Delimiter)
			scanned := readTo - d.cursor
			if offset >= 0 {
				scanned = offset + 1
			}
			d.cfg.Metrics.Scanned.Add(float64(scanned))
		}

		if d.state == discarding {
			if offset < 0 {
				d.discard(buf, readTo)
				if buf.Len() > 0 {
					continue
				}
				// more input is needed to find the end of the oversized frame
				return nil, false, nil
			}
			d.discard(buf, d.cursor+offset+1)
			d.state = seeking
			level.Debug(d.log).Log("event", "resynchronized")
			continue
		}

		if offset >= 0 {
			idx := d.cursor + offset
			d.cursor = 0
			return d.extract(buf, idx)
		}

		if len(content) > d.cfg.MaxFrameLength {
			d.state = discarding
			// nothing up to readTo is a delimiter, so discarding can start there
			d.cursor = readTo
			d.cfg.Metrics.event(EventOversized)
			level.Warn(d.log).Log("event", "frame too long", "limit", d.cfg.MaxFrameLength, "buffered", len(content))
			return nil, false, ErrLengthExceeded
		}

		d.cursor = readTo
		return nil, false, nil
	}
}

// discard drops n bytes and restarts the search from the front.
func (d *Decoder) discard(buf *buffer.Buffer, n int) {
	buf.Advance(n)
	d.cursor = 0
	d.cfg.Metrics.Discarded.Add(float64(n))
}

// extract consumes the frame whose delimiter is at idx and decodes its payload.
func (d *Decoder) extract(buf *buffer.Buffer, idx int) ([]byte, bool, error) {
	line := buf.Bytes()[:idx]

	frame := make([]byte, d.cfg.Transform.DecodedLen(len(line)))
	n, err := d.cfg.Transform.Decode(frame, line)
	buf.Advance(idx + 1)
	if err != nil {
		d.cfg.Metrics.event(EventMalformed)
		return nil, false, &MalformedError{Len: idx, Err: err}
	}

	d.cfg.Metrics.event(EventDecoded)
	return frame[:n], true, nil
}
