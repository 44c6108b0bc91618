// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package config reads the [b64frame] section of a TOML file into flag defaults.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/komkom/toml"
	"github.com/pkg/errors"
	"go.mindeco.de/log"
	"go.mindeco.de/log/level"
)

// Section is the TOML table this package reads.
const Section = "b64frame"

type ConfigBool bool

type FrameConfig struct {
	MaxFrame    int `json:"max-frame,omitempty"`
	MinCapacity int `json:"min-capacity,omitempty"`
	MaxBuffered int `json:"max-buffered,omitempty"`

	SkipMalformed ConfigBool `json:"skip-malformed"`
	SkipOversized ConfigBool `json:"skip-oversized"`

	Addr             string `json:"addr,omitempty"`
	WebsocketAddress string `json:"ws-addr,omitempty"`
	MetricsAddress   string `json:"metrics-addr,omitempty"`
	LogLevel         string `json:"loglevel,omitempty"`

	Presence map[string]interface{} `json:"-"`
}

type mergedConfig struct {
	B64Frame FrameConfig `json:"b64frame"`
}

// Has reports whether the file set flagname, so an explicit false or zero can win over a flag default.
func (config FrameConfig) Has(flagname string) bool {
	_, ok := config.Presence[flagname]
	return ok
}

// Read parses configPath. A missing file is not an error, it returns false.
func Read(configPath string, logger log.Logger) (FrameConfig, bool, error) {
	var conf mergedConfig
	conf.B64Frame.Presence = make(map[string]interface{})

	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = log.With(logger, "event", "read config", "path", configPath)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			level.Debug(logger).Log("msg", "no config detected")
			return conf.B64Frame, false, nil
		}
		return conf.B64Frame, false, errors.Wrap(err, "config: read failed")
	}

	level.Info(logger).Log("msg", "config detected")

	// 1) first we unmarshal into struct for type checks
	decoder := json.NewDecoder(toml.New(bytes.NewBuffer(data)))
	if err := decoder.Decode(&conf); err != nil {
		return conf.B64Frame, false, errors.Wrap(err, "config: decode into struct")
	}

	// 2) then we unmarshal into a map for presence check (to make sure bools are treated correctly)
	presence := make(map[string]interface{})
	decoder = json.NewDecoder(toml.New(bytes.NewBuffer(data)))
	if err := decoder.Decode(&presence); err != nil {
		return conf.B64Frame, false, errors.Wrap(err, "config: decode into presence map")
	}

	section, ok := presence[Section].(map[string]interface{})
	if !ok {
		level.Warn(logger).Log("msg", "no ["+Section+"] detected in config file - not reading anything from it")
		conf.B64Frame.Presence = make(map[string]interface{})
		return conf.B64Frame, true, nil
	}
	conf.B64Frame.Presence = section

	for _, n := range []struct {
		name string
		v    int
	}{
		{"max-frame", conf.B64Frame.MaxFrame},
		{"min-capacity", conf.B64Frame.MinCapacity},
		{"max-buffered", conf.B64Frame.MaxBuffered},
	} {
		if n.v < 0 {
			return conf.B64Frame, false, errors.Errorf("config: %s must not be negative (%d)", n.name, n.v)
		}
	}

	return conf.B64Frame, true, nil
}

// ExpandPath resolves a leading ~ and places relative paths in the home directory:
// * ~/.b64frame.toml  => /home/<user>/.b64frame.toml
// * .b64frame.toml    => /home/<user>/.b64frame.toml
// * /etc/b64frame.toml => /etc/b64frame.toml
func ExpandPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "config: could not get user home directory")
	}

	if strings.HasPrefix(p, "~") {
		p = strings.Replace(p, "~", home, 1)
	}

	// not relative path, not absolute path =>
	// place relative to home dir "~/<here>"
	if !filepath.IsAbs(p) {
		p = filepath.Join(home, p)
	}

	return p, nil
}

func (booly ConfigBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(booly))
}

func (booly *ConfigBool) UnmarshalJSON(b []byte) error {
	// unmarshal into interface{} first, as a bool can't be unmarshaled into a string
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return errors.Wrap(err, "unmarshal config bool")
	}

	// a proper boolean, or a boolish string (e.g. "true" or "1")
	switch tv := v.(type) {
	case bool:
		*booly = ConfigBool(tv)
	case string:
		switch strings.ToLower(tv) {
		case "true", "1", "yes", "on":
			*booly = true
		case "false", "0", "no", "off":
			*booly = false
		default:
			return errors.Errorf("non-boolean string %q found when unmarshaling boolish values", tv)
		}
	default:
		return errors.Errorf("unexpected %T for a boolean setting", v)
	}
	return nil
}
