// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/ssbc/go-luigi"
	"github.com/ssbc/go-netwrap"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ssbc/go-linecodec/stream"
)

const defaultAddr = "localhost:8016"

func newAddrFlag() cli.Flag {
	return &cli.StringFlag{Name: "addr", Value: defaultAddr, Usage: "tcp address to listen on or connect to"}
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "echo every received frame back to its sender",
	Flags: []cli.Flag{
		newAddrFlag(),
		&cli.StringFlag{Name: "ws-addr", Usage: "if set, also accept websocket connections on this address"},
		&cli.BoolFlag{Name: "skip-malformed", Usage: "log and drop frames that are not valid base64"},
		&cli.BoolFlag{Name: "skip-oversized", Usage: "log and drop frames longer than --max-frame"},
	},
	Action: func(c *cli.Context) error {
		w, err := newWrapper(c)
		if err != nil {
			return err
		}

		addr, err := net.ResolveTCPAddr("tcp", stringSetting(c, "addr", fileConfig.Addr))
		if err != nil {
			return errors.Wrap(err, "serve: failed to resolve address")
		}

		lis, err := netwrap.Listen(addr, w.ListenerWrapper())
		if err != nil {
			return errors.Wrap(err, "serve: failed to listen")
		}
		level.Info(log).Log("event", "listening", "addr", lis.Addr().String())

		tracker := newConnTracker(connMetrics, log)
		g, ctx := errgroup.WithContext(c.Context)
		g.Go(func() error {
			return serveEcho(ctx, lis, tracker, log)
		})

		if wsAddr := stringSetting(c, "ws-addr", fileConfig.WebsocketAddress); wsAddr != "" {
			srv := &http.Server{
				Addr:    wsAddr,
				Handler: websocketHandler(ctx, w, tracker, log),
			}
			g.Go(func() error {
				<-ctx.Done()
				return srv.Close()
			})
			g.Go(func() error {
				level.Info(log).Log("event", "listening", "ws", wsAddr)
				err := srv.ListenAndServe()
				if err == http.ErrServerClosed {
					return nil
				}
				return errors.Wrap(err, "serve: websocket listener failed")
			})
		}

		return g.Wait()
	},
}

// serveEcho accepts framed connections from lis until ctx is canceled.
func serveEcho(ctx context.Context, lis net.Listener, tracker *connTracker, logger kitlog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		lis.Close()
		return tracker.CloseAll()
	})

	g.Go(func() error {
		for {
			conn, err := lis.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "serve: accept failed")
			}

			g.Go(func() error {
				echo(ctx, conn, tracker, logger)
				return nil
			})
		}
	})

	return g.Wait()
}

func echo(ctx context.Context, conn net.Conn, tracker *connTracker, logger kitlog.Logger) {
	connLog := kitlog.With(logger, "remote", conn.RemoteAddr().String())

	tracker.OnAccept(conn)
	defer func() {
		durr := tracker.OnClose(conn)
		level.Debug(connLog).Log("event", "disconnect", "took", durr)
	}()

	fc, ok := conn.(*stream.Conn)
	if !ok {
		level.Error(connLog).Log("event", "unframed connection", "type", fmt.Sprintf("%T", conn))
		conn.Close()
		return
	}

	snk := stream.NewSink(fc)
	err := luigi.Pump(ctx, snk, stream.NewSource(fc))
	if err != nil && ctx.Err() == nil {
		level.Warn(connLog).Log("event", "echo failed", "err", err)
		snk.(luigi.ErrorCloser).CloseWithError(err)
		return
	}
	if err := snk.Close(); err != nil {
		level.Debug(connLog).Log("event", "close failed", "err", err)
	}
}

var sendCmd = &cli.Command{
	Name:  "send",
	Usage: "send each stdin line as a frame and print the replies",
	Flags: []cli.Flag{
		newAddrFlag(),
		&cli.BoolFlag{Name: "skip-malformed", Usage: "log and drop reply frames that are not valid base64"},
		&cli.BoolFlag{Name: "skip-oversized", Usage: "log and drop reply frames longer than --max-frame"},
	},
	Action: func(c *cli.Context) error {
		w, err := newWrapper(c)
		if err != nil {
			return err
		}

		addr, err := net.ResolveTCPAddr("tcp", stringSetting(c, "addr", fileConfig.Addr))
		if err != nil {
			return errors.Wrap(err, "send: failed to resolve address")
		}

		conn, err := netwrap.Dial(addr, w.ConnWrapper())
		if err != nil {
			return errors.Wrapf(err, "send: failed to connect to %s", addr)
		}
		fc := conn.(*stream.Conn)
		defer fc.Close()

		return exchange(c.Context, fc, c.App.Reader, c.App.Writer)
	},
}

// exchange writes the lines of in as frames to fc and copies the replies to out, one per line.
func exchange(ctx context.Context, fc *stream.Conn, in io.Reader, out io.Writer) error {
	g, ctx := errgroup.WithContext(ctx)

	go func() {
		// also reached once Wait returned
		<-ctx.Done()
		fc.Close()
	}()

	g.Go(func() error {
		next := lineReader(in)
		for {
			line, err := next()
			if err == io.EOF {
				return fc.CloseWrite()
			}
			if err != nil {
				return errors.Wrap(err, "send: failed to read input")
			}
			if err := fc.WriteFrame(line); err != nil {
				return err
			}
		}
	})

	g.Go(func() error {
		bw := bufio.NewWriter(out)
		for {
			frame, err := fc.ReadFrame()
			if err == io.EOF {
				return errors.Wrap(bw.Flush(), "send: failed to write output")
			}
			if err != nil {
				return errors.Wrap(err, "send: failed to read reply")
			}
			if err := writeFrame(bw, frame, true); err != nil {
				return errors.Wrap(err, "send: failed to write output")
			}
		}
	})

	return g.Wait()
}

func newWrapper(c *cli.Context) (*stream.Wrapper, error) {
	maxFrame, minCapacity, opts := codecOptions(c)
	return stream.NewWrapper(maxFrame, minCapacity, opts, readerOptions(c)...)
}
