// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package linecodec

// Codec bundles a Decoder and an Encoder created from one config.
// The two halves share nothing mutable and may be used from different goroutines.
type Codec struct {
	*Decoder
	*Encoder
}

// New returns a codec without a frame length limit.
func New(minCapacity int, opts ...Option) (*Codec, error) {
	opts = append([]Option{WithMinCapacity(minCapacity)}, opts...)
	return newCodec(opts)
}

// NewWithLimit returns a codec that refuses frames longer than maxFrameLength in either direction.
func NewWithLimit(maxFrameLength, minCapacity int, opts ...Option) (*Codec, error) {
	opts = append([]Option{WithMaxFrameLength(maxFrameLength), WithMinCapacity(minCapacity)}, opts...)
	return newCodec(opts)
}

func newCodec(opts []Option) (*Codec, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Codec{
		Decoder: newDecoder(cfg),
		Encoder: &Encoder{cfg: cfg},
	}, nil
}

// MaxFrameLength is the limit shared by both halves.
func (c *Codec) MaxFrameLength() int { return c.Decoder.MaxFrameLength() }
