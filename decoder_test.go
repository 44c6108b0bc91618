// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package linecodec

import (
	"bytes"
	"encoding/base64"
	"math/rand"
	"strings"
	"sync"
	"testing"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/generic"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-linecodec/buffer"
	"github.com/ssbc/go-linecodec/internal/testutils"
)

// eventCounter keeps one total per label value set, shared by everything returned from With.
type eventCounter struct {
	mu     *sync.Mutex
	counts map[string]float64
	lvs    []string
}

func newEventCounter() *eventCounter {
	return &eventCounter{mu: new(sync.Mutex), counts: make(map[string]float64)}
}

func (c *eventCounter) With(lvs ...string) metrics.Counter {
	return &eventCounter{mu: c.mu, counts: c.counts, lvs: append(append([]string{}, c.lvs...), lvs...)}
}

func (c *eventCounter) Add(delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[strings.Join(c.lvs, "=")] += delta
}

func (c *eventCounter) get(event string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts["event="+event]
}

type testMetrics struct {
	events    *eventCounter
	discarded *generic.Counter
	scanned   *generic.Counter
}

func newTestMetrics() testMetrics {
	return testMetrics{
		events:    newEventCounter(),
		discarded: generic.NewCounter("discarded"),
		scanned:   generic.NewCounter("scanned"),
	}
}

func (tm testMetrics) option() Option {
	return WithMetrics(Metrics{Frames: tm.events, Discarded: tm.discarded, Scanned: tm.scanned})
}

func encodeLine(p string) string {
	return base64.RawStdEncoding.EncodeToString([]byte(p)) + "\n"
}

func TestDecodeEmptyBuffer(t *testing.T) {
	r := require.New(t)

	dec, err := NewDecoder(64)
	r.NoError(err)

	frame, ok, err := dec.Decode(buffer.New(0))
	r.NoError(err)
	r.False(ok)
	r.Nil(frame)
}

func TestDecodeEmptyFrame(t *testing.T) {
	r := require.New(t)

	dec, err := NewDecoderWithLimit(16, 64)
	r.NoError(err)

	buf := buffer.New(0)
	buf.Write([]byte("\n"))

	frame, ok, err := dec.Decode(buf)
	r.NoError(err)
	r.True(ok)
	r.NotNil(frame)
	r.Len(frame, 0)
	r.Equal(0, buf.Len())
}

func TestDecodeMultipleFrames(t *testing.T) {
	r := require.New(t)

	dec, err := NewDecoderWithLimit(1024, 64)
	r.NoError(err)

	buf := buffer.New(0)
	payloads := []string{"first", "second frame", "3"}
	for _, p := range payloads {
		buf.Write([]byte(encodeLine(p)))
	}

	for i, want := range payloads {
		frame, ok, err := dec.Decode(buf)
		r.NoError(err, "frame %d", i)
		r.True(ok, "frame %d", i)
		r.Equal(want, string(frame))
	}

	frame, ok, err := dec.Decode(buf)
	r.NoError(err)
	r.False(ok)
	r.Nil(frame)
	r.Equal(0, buf.Len())
}

func TestDecodeIncremental(t *testing.T) {
	r := require.New(t)

	rnd := rand.New(rand.NewSource(42))

	var (
		wire     []byte
		payloads [][]byte
	)
	for i := 0; i < 50; i++ {
		p := make([]byte, rnd.Intn(300))
		rnd.Read(p)
		payloads = append(payloads, p)
		wire = append(wire, encodeLine(string(p))...)
	}

	dec, err := NewDecoderWithLimit(512, 32)
	r.NoError(err)
	buf := buffer.New(0)

	var got [][]byte
	for len(wire) > 0 {
		n := 1 + rnd.Intn(40)
		if n > len(wire) {
			n = len(wire)
		}
		buf.Write(wire[:n])
		wire = wire[n:]

		for {
			frame, ok, err := dec.Decode(buf)
			r.NoError(err)
			r.LessOrEqual(dec.cursor, buf.Len(), "scan cursor must stay within the content")
			if !ok {
				break
			}
			got = append(got, frame)
		}
	}

	r.Len(got, len(payloads))
	for i := range payloads {
		r.True(bytes.Equal(payloads[i], got[i]), "payload %d differs", i)
	}
}

func TestDecodeDoesNotRescan(t *testing.T) {
	r := require.New(t)

	tm := newTestMetrics()
	dec, err := NewDecoder(64, tm.option())
	r.NoError(err)

	const n = 400
	line := strings.Repeat("QUFB", n/4)
	buf := buffer.New(0)

	lastCursor := 0
	for i := 0; i < n; i++ {
		buf.WriteByte(line[i])
		_, ok, err := dec.Decode(buf)
		r.NoError(err)
		r.False(ok)
		r.GreaterOrEqual(dec.cursor, lastCursor, "cursor went backwards")
		r.Equal(i+1, dec.cursor)
		lastCursor = dec.cursor
	}
	r.Equal(float64(n), tm.scanned.Value(), "every byte should be scanned exactly once")

	buf.WriteByte('\n')
	frame, ok, err := dec.Decode(buf)
	r.NoError(err)
	r.True(ok)
	r.Equal(strings.Repeat("AAA", n/4), string(frame))
	r.Equal(0, dec.cursor)
	r.Equal(float64(n+1), tm.scanned.Value())
}

func TestDecodeOversizeRecovery(t *testing.T) {
	r := require.New(t)

	tm := newTestMetrics()
	dec, err := NewDecoderWithLimit(8, 16, tm.option(), WithLogger(testutils.NewTestLogger(t)))
	r.NoError(err)

	buf := buffer.New(0)
	buf.Write([]byte("QUFBQUFBQUFB")) // 12 bytes, no delimiter

	_, ok, err := dec.Decode(buf)
	r.False(ok)
	r.True(errors.Is(err, ErrLengthExceeded), "got %v", err)
	r.True(dec.Discarding())
	r.Equal(1.0, tm.events.get(EventOversized))

	// the rest of the oversized frame keeps arriving
	for i := 0; i < 3; i++ {
		_, ok, err = dec.Decode(buf)
		r.NoError(err)
		r.False(ok)
		r.Equal(0, buf.Len(), "discarded input should be gone")
		r.True(dec.Discarding())
		buf.Write([]byte("QUFB"))
	}

	buf.Write([]byte("QUFB\n"))
	buf.Write([]byte(encodeLine("hi")))

	frame, ok, err := dec.Decode(buf)
	r.NoError(err)
	r.True(ok)
	r.Equal("hi", string(frame))
	r.False(dec.Discarding())
	r.Equal(0, buf.Len())
	r.Equal(float64(12+3*4+5), tm.discarded.Value())
}

func TestDecodeLimitBoundary(t *testing.T) {
	r := require.New(t)

	dec, err := NewDecoderWithLimit(8, 16)
	r.NoError(err)

	buf := buffer.New(0)
	buf.Write([]byte("QUFBQUFB\n")) // exactly at the limit
	frame, ok, err := dec.Decode(buf)
	r.NoError(err)
	r.True(ok)
	r.Equal("AAAAAA", string(frame))

	buf.Write([]byte("QUFBQUFBQ")) // one past it
	_, ok, err = dec.Decode(buf)
	r.Equal(ErrLengthExceeded, err)
	r.False(ok)
}

func TestDecodeOversizeWithFollowingFramesInOneBuffer(t *testing.T) {
	r := require.New(t)

	dec, err := NewDecoderWithLimit(4, 16)
	r.NoError(err)

	buf := buffer.New(0)
	buf.Write([]byte(strings.Repeat("Q", 30) + "\n"))
	buf.Write([]byte(encodeLine("ok")))

	_, _, err = dec.Decode(buf)
	r.Equal(ErrLengthExceeded, err)

	frame, ok, err := dec.Decode(buf)
	r.NoError(err)
	r.True(ok)
	r.Equal("ok", string(frame))
}

func TestDecodeMalformed(t *testing.T) {
	r := require.New(t)

	tm := newTestMetrics()
	dec, err := NewDecoderWithLimit(64, 16, tm.option())
	r.NoError(err)

	buf := buffer.New(0)
	buf.Write([]byte("!not-base64!\n"))
	buf.Write([]byte(encodeLine("fine")))

	_, ok, err := dec.Decode(buf)
	r.False(ok)
	r.Error(err)
	r.True(IsMalformed(err))

	var me *MalformedError
	r.True(errors.As(err, &me))
	r.Equal(12, me.Len)
	r.Equal(1.0, tm.events.get(EventMalformed))

	frame, ok, err := dec.Decode(buf)
	r.NoError(err)
	r.True(ok)
	r.Equal("fine", string(frame))
	r.Equal(1.0, tm.events.get(EventDecoded))
}

func TestDecodeAcceptsPadding(t *testing.T) {
	r := require.New(t)

	dec, err := NewDecoder(16)
	r.NoError(err)

	buf := buffer.New(0)
	buf.Write([]byte("QQ==\nQUI=\nQUJD\n"))
	for _, want := range []string{"A", "AB", "ABC"} {
		frame, ok, err := dec.Decode(buf)
		r.NoError(err)
		r.True(ok)
		r.Equal(want, string(frame))
	}
}

func TestDecodeOverflowGuard(t *testing.T) {
	r := require.New(t)

	var logged bytes.Buffer
	tm := newTestMetrics()
	dec, err := NewDecoderWithLimit(64, 16,
		WithMaxBuffered(16),
		WithLogger(kitlog.NewLogfmtLogger(&logged)),
		tm.option())
	r.NoError(err)

	buf := buffer.New(0)
	buf.Write([]byte(encodeLine("one") + encodeLine("two") + encodeLine("three")))
	before := buf.Len()
	r.Greater(before, 16)
	r.True(dec.Overflowed(buf))

	frame, ok, err := dec.Decode(buf)
	r.NoError(err)
	r.False(ok)
	r.Nil(frame)
	r.Equal(before, buf.Len(), "held input must stay untouched")
	r.Contains(logged.String(), "oversized input")
	r.Equal(1.0, tm.events.get(EventOverflow))

	// once the driver drains the buffer, decoding works again
	buf.Reset()
	buf.Write([]byte(encodeLine("four")))
	r.False(dec.Overflowed(buf))
	frame, ok, err = dec.Decode(buf)
	r.NoError(err)
	r.True(ok)
	r.Equal("four", string(frame))
}

func TestDecodeCapacityHint(t *testing.T) {
	r := require.New(t)

	bounded, err := NewDecoderWithLimit(1024, 64)
	r.NoError(err)
	buf := buffer.New(0)
	_, _, err = bounded.Decode(buf)
	r.NoError(err)
	r.GreaterOrEqual(buf.Cap(), 1025)

	unbounded, err := NewDecoder(64)
	r.NoError(err)
	buf = buffer.New(0)
	_, _, err = unbounded.Decode(buf)
	r.NoError(err)
	r.GreaterOrEqual(buf.Cap(), 64)
	r.Less(buf.Cap(), maxPrealloc)

	huge, err := NewDecoderWithLimit(1<<30, 64)
	r.NoError(err)
	buf = buffer.New(0)
	_, _, err = huge.Decode(buf)
	r.NoError(err)
	r.Less(buf.Cap(), 2*maxPrealloc, "hint must not allocate the whole frame limit")
}

func TestDecoderStateString(t *testing.T) {
	assert.Equal(t, "seeking", seeking.String())
	assert.Equal(t, "discarding", discarding.String())
	assert.Equal(t, "unknown", decoderState(9).String())
}
