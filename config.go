// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package linecodec

import (
	"math"

	kitlog "github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

// Delimiter terminates every frame on the wire.
const Delimiter byte = '\n'

// Unbounded as MaxFrameLength disables the frame length limit.
const Unbounded = math.MaxInt

// DefaultMinCapacity is the buffer size hint used by DefaultConfig.
const DefaultMinCapacity = 8 * 1024

// maxPrealloc caps how much the capacity hint may reserve up front.
const maxPrealloc = 1024 * 1024

// Config is shared by the decoder and encoder halves. It is not changed after construction.
type Config struct {
	// MaxFrameLength bounds the encoded payload of a frame, not counting the delimiter.
	// Frames without a delimiter in the first MaxFrameLength+1 bytes are discarded.
	MaxFrameLength int

	// MinCapacity is a capacity hint: input buffers smaller than this are grown before decoding.
	MinCapacity int

	// MaxBuffered makes Decode refuse to look for frames while the buffer holds more than this many bytes.
	// Zero turns the check off.
	MaxBuffered int

	Transform Transform
	Logger    kitlog.Logger
	Metrics   Metrics
}

// DefaultConfig returns an unbounded config using Base64 and discarding logs and metrics.
func DefaultConfig() Config {
	return Config{
		MaxFrameLength: Unbounded,
		MinCapacity:    DefaultMinCapacity,
		Transform:      Base64,
		Logger:         kitlog.NewNopLogger(),
		Metrics:        NewNopMetrics(),
	}
}

// Bounded is true if a frame length limit is set.
func (c Config) Bounded() bool { return c.MaxFrameLength != Unbounded }

func (c Config) validate() error {
	if c.MaxFrameLength < 0 {
		return errors.Errorf("linecodec: negative frame length limit %d", c.MaxFrameLength)
	}
	if c.MinCapacity < 0 {
		return errors.Errorf("linecodec: negative minimum capacity %d", c.MinCapacity)
	}
	if c.MaxBuffered < 0 {
		return errors.Errorf("linecodec: negative buffered limit %d", c.MaxBuffered)
	}
	if c.Transform == nil {
		return errors.New("linecodec: no transform")
	}
	if c.Logger == nil {
		return errors.New("linecodec: nil logger")
	}
	return c.Metrics.validate()
}

// prealloc is the capacity the decoder grows small input buffers to.
// It aims at a whole frame but stays within maxPrealloc unless MinCapacity asks for more.
func (c Config) prealloc() int {
	target := c.MinCapacity
	if c.Bounded() {
		want := c.MaxFrameLength + 1
		if want > maxPrealloc {
			want = maxPrealloc
		}
		if want > target {
			target = want
		}
	}
	return target
}

// Option changes a Config before it is used.
type Option func(*Config) error

func newConfig(opts []Option) (Config, error) {
	cfg := DefaultConfig()
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, errors.Wrapf(err, "linecodec: option #%d", i)
		}
	}
	return cfg, cfg.validate()
}

// WithMaxFrameLength sets the frame length limit. Zero means Unbounded.
func WithMaxFrameLength(n int) Option {
	return func(c *Config) error {
		if n < 0 {
			return errors.Errorf("frame length limit must not be negative (%d)", n)
		}
		if n == 0 {
			n = Unbounded
		}
		c.MaxFrameLength = n
		return nil
	}
}

func WithMinCapacity(n int) Option {
	return func(c *Config) error {
		if n < 0 {
			return errors.Errorf("minimum capacity must not be negative (%d)", n)
		}
		c.MinCapacity = n
		return nil
	}
}

// WithMaxBuffered sets the pending input limit. Zero disables it.
func WithMaxBuffered(n int) Option {
	return func(c *Config) error {
		if n < 0 {
			return errors.Errorf("buffered limit must not be negative (%d)", n)
		}
		c.MaxBuffered = n
		return nil
	}
}

func WithTransform(t Transform) Option {
	return func(c *Config) error {
		if t == nil {
			return errors.New("nil transform")
		}
		c.Transform = t
		return nil
	}
}

// WithLogger sets where drop notices and other codec events are logged.
func WithLogger(l kitlog.Logger) Option {
	return func(c *Config) error {
		if l == nil {
			return errors.New("nil logger")
		}
		c.Logger = l
		return nil
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *Config) error {
		if err := m.validate(); err != nil {
			return err
		}
		c.Metrics = m
		return nil
	}
}
