// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package linecodec

import (
	"github.com/pkg/errors"

	"github.com/ssbc/go-linecodec/buffer"
)

// Encoder appends encoded, delimited frames to an output buffer. It holds no state besides its config.
type Encoder struct {
	cfg Config
}

// NewEncoder returns an encoder. Only MaxFrameLength, Transform and Metrics of the config are used.
func NewEncoder(opts ...Option) (*Encoder, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Encoder{cfg: cfg}, nil
}

// Encode appends one frame carrying payload to out.
// The payload is encoded straight into the spare capacity of out. On error nothing is appended.
// Payloads whose encoding exceeds MaxFrameLength are refused with ErrFrameTooLarge,
// since a decoder with the same limit would discard them.
func (e *Encoder) Encode(payload []byte, out *buffer.Buffer) error {
	encLen, err := e.frameLen(payload)
	if err != nil {
		return err
	}

	out.Reserve(encLen + 1)
	n, err := e.encodeInto(out.Spare(), payload, encLen)
	if err != nil {
		return err
	}
	out.Commit(n)
	return nil
}

// Append is Encode for callers with a plain slice. It returns the extended slice.
// Like Encode it writes into the capacity of dst and only reallocates when that is too small.
func (e *Encoder) Append(dst, payload []byte) ([]byte, error) {
	encLen, err := e.frameLen(payload)
	if err != nil {
		return dst, err
	}

	need := encLen + 1
	if cap(dst)-len(dst) < need {
		grown := make([]byte, len(dst), 2*cap(dst)+need)
		copy(grown, dst)
		dst = grown
	}
	n, err := e.encodeInto(dst[len(dst):cap(dst)], payload, encLen)
	if err != nil {
		return dst, err
	}
	return dst[:len(dst)+n], nil
}

func (e *Encoder) frameLen(payload []byte) (int, error) {
	encLen := e.cfg.Transform.EncodedLen(len(payload))
	if encLen > e.cfg.MaxFrameLength {
		return 0, errors.Wrapf(ErrFrameTooLarge, "%d encoded bytes (limit: %d)", encLen, e.cfg.MaxFrameLength)
	}
	return encLen, nil
}

// encodeInto writes the delimited frame to spare, which holds at least encLen+1 bytes.
// It returns the number of bytes written including the delimiter.
func (e *Encoder) encodeInto(spare, payload []byte, encLen int) (int, error) {
	n, err := e.cfg.Transform.Encode(spare, payload)
	if err != nil {
		return 0, &EncodeError{Len: len(payload), Err: err}
	}
	if n > encLen {
		return 0, &EncodeError{Len: len(payload), Err: errors.Errorf("transform wrote %d bytes, announced %d", n, encLen)}
	}
	if containsDelimiter(spare[:n]) {
		return 0, &EncodeError{Len: len(payload), Err: errors.New("transform output contains the delimiter")}
	}

	spare[n] = Delimiter
	e.cfg.Metrics.event(EventEncoded)
	return n + 1, nil
}
