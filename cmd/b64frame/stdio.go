// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"bytes"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	linecodec "github.com/ssbc/go-linecodec"
	"github.com/ssbc/go-linecodec/stream"
)

// encoded bytes held before they are written to stdout
const encodeFlushSize = 32 * 1024

var encodeCmd = &cli.Command{
	Name:  "encode",
	Usage: "read stdin and write it as frames to stdout",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "lines", Usage: "each input line (without its newline) becomes one frame"},
		&cli.IntFlag{Name: "chunk", Value: 4096, Usage: "payload bytes per frame when not using --lines"},
	},
	Action: func(c *cli.Context) error {
		maxFrame, minCapacity, opts := codecOptions(c)
		codec, err := linecodec.NewWithLimit(maxFrame, minCapacity, opts...)
		if err != nil {
			return err
		}

		w, err := stream.NewWriter(c.App.Writer, codec.Encoder, stream.WithFlushThreshold(encodeFlushSize))
		if err != nil {
			return err
		}

		var next func() ([]byte, error)
		in := bufio.NewReader(c.App.Reader)
		if c.Bool("lines") {
			next = lineReader(in)
		} else {
			size := c.Int("chunk")
			if size <= 0 {
				return errors.Errorf("encode: chunk size must be positive (%d)", size)
			}
			chunk := make([]byte, size)
			next = func() ([]byte, error) {
				n, err := io.ReadFull(in, chunk)
				if err == io.ErrUnexpectedEOF {
					err = nil
				}
				return chunk[:n], err
			}
		}

		var frames, total uint64
		for {
			p, err := next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return errors.Wrap(err, "encode: failed to read input")
			}
			if err := w.WriteFrame(p); err != nil {
				return errors.Wrapf(err, "encode: frame %d", frames)
			}
			frames++
			total += uint64(len(p))
		}

		if err := w.Flush(); err != nil {
			return err
		}
		level.Debug(log).Log("event", "encoded", "frames", frames, "payload", humanize.Bytes(total))
		return nil
	},
}

var decodeCmd = &cli.Command{
	Name:  "decode",
	Usage: "read frames from stdin and write their payloads to stdout",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "newline", Usage: "write a newline after each payload"},
		&cli.BoolFlag{Name: "skip-malformed", Usage: "log and drop frames that are not valid base64"},
		&cli.BoolFlag{Name: "skip-oversized", Usage: "log and drop frames longer than --max-frame"},
	},
	Action: func(c *cli.Context) error {
		r, err := newFrameReader(c, c.App.Reader)
		if err != nil {
			return err
		}

		out := bufio.NewWriter(c.App.Writer)
		newline := c.Bool("newline")

		var frames, total uint64
		for {
			frame, err := r.ReadFrame()
			if err == io.EOF {
				break
			}
			if err != nil {
				err = errors.Wrapf(err, "decode: after %d frames", frames)
				if ferr := out.Flush(); ferr != nil {
					return multierror.Append(err, errors.Wrap(ferr, "decode: failed to write output"))
				}
				return err
			}

			if err := writeFrame(out, frame, newline); err != nil {
				return errors.Wrap(err, "decode: failed to write output")
			}
			frames++
			total += uint64(len(frame))
		}

		if err := out.Flush(); err != nil {
			return errors.Wrap(err, "decode: failed to write output")
		}
		level.Debug(log).Log("event", "decoded", "frames", frames, "payload", humanize.Bytes(total))
		return nil
	},
}

func writeFrame(w *bufio.Writer, frame []byte, newline bool) error {
	if _, err := w.Write(frame); err != nil {
		return err
	}
	if newline {
		return w.WriteByte('\n')
	}
	return nil
}

// lineReader returns the lines of r without their newline, then io.EOF.
// A last line without a newline is returned as well.
func lineReader(r io.Reader) func() ([]byte, error) {
	in := bufio.NewReader(r)
	return func() ([]byte, error) {
		line, err := in.ReadBytes('\n')
		if err == io.EOF && len(line) > 0 {
			err = nil
		}
		return bytes.TrimSuffix(line, []byte{'\n'}), err
	}
}

// newFrameReader builds a stream.Reader with the codec flags and the skip policy of the command.
func newFrameReader(c *cli.Context, input io.Reader) (*stream.Reader, error) {
	maxFrame, minCapacity, copts := codecOptions(c)
	dec, err := linecodec.NewDecoderWithLimit(maxFrame, minCapacity, copts...)
	if err != nil {
		return nil, err
	}
	return stream.NewReader(input, dec, readerOptions(c)...)
}

func readerOptions(c *cli.Context) []stream.ReaderOption {
	ropts := []stream.ReaderOption{stream.WithReaderLogger(log)}
	if boolSetting(c, "skip-malformed", fileConfig.SkipMalformed) {
		ropts = append(ropts, stream.WithSkipMalformed())
	}
	if boolSetting(c, "skip-oversized", fileConfig.SkipOversized) {
		ropts = append(ropts, stream.WithSkipOversized())
	}
	return ropts
}
