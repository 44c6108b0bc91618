// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package testutils

import (
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
)

// NewRelativeTimeLogger writes logfmt lines to w (stderr if nil), a "t" field has the time since creation.
func NewRelativeTimeLogger(w io.Writer) log.Logger {
	if w == nil {
		w = os.Stderr
	}

	var rtl relTimeLogger
	rtl.start = time.Now()

	mainLog := log.NewLogfmtLogger(log.NewSyncWriter(w))
	return log.With(mainLog, "t", log.Valuer(rtl.diffTime))
}

// NewTestLogger routes relative time log lines into t.Log, so they only show up for failing or verbose tests.
func NewTestLogger(t testing.TB) log.Logger {
	return log.With(NewRelativeTimeLogger(testWriter{t}), "test", t.Name())
}

type testWriter struct{ t testing.TB }

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Helper()
	tw.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

type relTimeLogger struct {
	sync.Mutex

	start time.Time
}

func (rtl *relTimeLogger) diffTime() interface{} {
	rtl.Lock()
	defer rtl.Unlock()
	return time.Since(rtl.start)
}
