// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// b64frame encodes and decodes newline delimited base64 frames on stdio and over tcp
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/log/term"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	linecodec "github.com/ssbc/go-linecodec"
	config "github.com/ssbc/go-linecodec/internal/config-reader"
)

// Version and Build are set by ldflags
var (
	Version = "snapshot"
	Build   = ""
)

const defaultMaxFrame = 64 * 1024

var (
	log kitlog.Logger = kitlog.NewNopLogger()

	fileConfig config.FrameConfig

	codecMetrics = linecodec.NewNopMetrics()
	connMetrics  = newNopConnMetrics()
)

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:    "b64frame",
		Usage:   "encode, decode and exchange newline delimited base64 frames",
		Version: Version,

		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,

		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "~/.b64frame.toml", Usage: "toml file with a [b64frame] section, flags given on the command line win"},
			&cli.IntFlag{Name: "max-frame", Value: defaultMaxFrame, Usage: "longest encoded frame in bytes without the newline, 0 disables the limit"},
			&cli.IntFlag{Name: "min-capacity", Value: linecodec.DefaultMinCapacity, Usage: "capacity the read buffer grows to before decoding"},
			&cli.IntFlag{Name: "max-buffered", Value: 0, Usage: "give up when this many bytes are buffered without a frame, 0 disables the guard"},
			&cli.StringFlag{Name: "loglevel", Value: "info", Usage: "one of debug, info, warn, error"},
			&cli.StringFlag{Name: "metrics-addr", Value: "", Usage: "if set, serve prometheus metrics on this address"},
		},

		Before: initApp,
		Commands: []*cli.Command{
			encodeCmd,
			decodeCmd,
			serveCmd,
			sendCmd,
		},
	}
}

// Color by error type
func colorFn(keyvals ...interface{}) term.FgBgColor {
	for i := 1; i < len(keyvals); i += 2 {
		if _, ok := keyvals[i].(error); ok {
			return term.FgBgColor{Fg: term.Red}
		}
	}
	return term.FgBgColor{}
}

func levelFilter(name string) (level.Option, error) {
	switch strings.ToLower(name) {
	case "debug":
		return level.AllowDebug(), nil
	case "info", "":
		return level.AllowInfo(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	case "none":
		return level.AllowNone(), nil
	}
	return nil, errors.Errorf("unknown log level %q", name)
}

func initApp(c *cli.Context) error {
	base := term.NewColorLogger(kitlog.NewSyncWriter(c.App.ErrWriter), kitlog.NewLogfmtLogger, colorFn)
	base = kitlog.With(base, "ts", kitlog.DefaultTimestampUTC)
	log = level.NewFilter(base, level.AllowInfo())

	cfgPath, err := config.ExpandPath(c.String("config"))
	if err != nil {
		return err
	}
	fileConfig, _, err = config.Read(cfgPath, log)
	if err != nil {
		return err
	}

	lvl, err := levelFilter(stringSetting(c, "loglevel", fileConfig.LogLevel))
	if err != nil {
		return err
	}
	log = level.NewFilter(base, lvl)

	if addr := stringSetting(c, "metrics-addr", fileConfig.MetricsAddress); addr != "" {
		if err := startMetrics(addr); err != nil {
			return err
		}
	}
	return nil
}

// flags given on the command line win over the config file, which wins over flag defaults

func intSetting(c *cli.Context, name string, fromFile int) int {
	if c.IsSet(name) || !fileConfig.Has(name) {
		return c.Int(name)
	}
	return fromFile
}

func stringSetting(c *cli.Context, name string, fromFile string) string {
	if c.IsSet(name) || !fileConfig.Has(name) {
		return c.String(name)
	}
	return fromFile
}

func boolSetting(c *cli.Context, name string, fromFile config.ConfigBool) bool {
	if c.IsSet(name) || !fileConfig.Has(name) {
		return c.Bool(name)
	}
	return bool(fromFile)
}

// codecOptions collects the global codec flags.
func codecOptions(c *cli.Context) (maxFrame, minCapacity int, opts []linecodec.Option) {
	maxFrame = intSetting(c, "max-frame", fileConfig.MaxFrame)
	minCapacity = intSetting(c, "min-capacity", fileConfig.MinCapacity)
	opts = []linecodec.Option{
		linecodec.WithMaxBuffered(intSetting(c, "max-buffered", fileConfig.MaxBuffered)),
		linecodec.WithLogger(log),
		linecodec.WithMetrics(codecMetrics),
	}
	return maxFrame, minCapacity, opts
}

func main() {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintf(c.App.Writer, "%s (rev: %s, built: %s)\n", c.App.Version, Version, Build)
	}

	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		level.Error(log).Log("run-failure", err)
		os.Exit(1)
	}
}
