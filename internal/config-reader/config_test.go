// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	return p
}

func TestReadConfig(t *testing.T) {
	r := require.New(t)

	p := writeConfig(t, `
[b64frame]
max-frame = 4096
min-capacity = 512
skip-malformed = "yes"
skip-oversized = false
addr = "localhost:8016"
ws-addr = "localhost:8017"
loglevel = "debug"
`)

	conf, ok, err := Read(p, nil)
	r.NoError(err)
	r.True(ok)

	r.Equal(4096, conf.MaxFrame)
	r.Equal(512, conf.MinCapacity)
	r.Equal(0, conf.MaxBuffered)
	r.True(bool(conf.SkipMalformed))
	r.False(bool(conf.SkipOversized))
	r.Equal("localhost:8016", conf.Addr)
	r.Equal("localhost:8017", conf.WebsocketAddress)
	r.Equal("debug", conf.LogLevel)

	r.True(conf.Has("skip-oversized"), "explicit false is present")
	r.False(conf.Has("max-buffered"))
	r.False(conf.Has("metrics-addr"))
}

func TestReadConfigMissing(t *testing.T) {
	r := require.New(t)

	conf, ok, err := Read(filepath.Join(t.TempDir(), "nope.toml"), nil)
	r.NoError(err)
	r.False(ok)
	r.False(conf.Has("max-frame"))
}

func TestReadConfigOtherSection(t *testing.T) {
	r := require.New(t)

	p := writeConfig(t, `
[something-else]
max-frame = 10
`)
	conf, ok, err := Read(p, nil)
	r.NoError(err)
	r.True(ok)
	r.Equal(0, conf.MaxFrame)
	r.False(conf.Has("max-frame"))
}

func TestReadConfigInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"negative": "[b64frame]\nmax-frame = -1\n",
		"bad bool": "[b64frame]\nskip-malformed = \"perhaps\"\n",
		"bad type": "[b64frame]\nmin-capacity = \"lots\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := Read(writeConfig(t, content), nil)
			require.Error(t, err)
		})
	}
}

func TestExpandPath(t *testing.T) {
	r := require.New(t)

	home, err := os.UserHomeDir()
	r.NoError(err)

	for in, want := range map[string]string{
		"~/.b64frame.toml":   filepath.Join(home, ".b64frame.toml"),
		".b64frame.toml":     filepath.Join(home, ".b64frame.toml"),
		"/etc/b64frame.toml": "/etc/b64frame.toml",
	} {
		got, err := ExpandPath(in)
		r.NoError(err)
		r.Equal(want, got, in)
	}
}
