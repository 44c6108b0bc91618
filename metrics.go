// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package linecodec

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// values of the "event" label on Metrics.Frames
const (
	EventDecoded   = "decoded"
	EventEncoded   = "encoded"
	EventMalformed = "malformed"
	EventOversized = "oversized"
	EventOverflow  = "overflow"
)

// Metrics are the counters a codec reports into.
type Metrics struct {
	// Frames counts codec events, labeled with "event"
	Frames metrics.Counter
	// Discarded counts bytes dropped while resynchronizing after an oversized frame
	Discarded metrics.Counter
	// Scanned counts bytes examined while looking for a delimiter
	Scanned metrics.Counter
}

func NewNopMetrics() Metrics {
	return Metrics{
		Frames:    discard.NewCounter(),
		Discarded: discard.NewCounter(),
		Scanned:   discard.NewCounter(),
	}
}

// NewPrometheusMetrics registers the codec counters with the default prometheus registry.
// Call it once per namespace.
func NewPrometheusMetrics(namespace string) Metrics {
	return Metrics{
		Frames: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "linecodec",
			Name:      "frames_total",
			Help:      "Frame events of the line codec.",
		}, []string{"event"}),
		Discarded: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "linecodec",
			Name:      "discarded_bytes_total",
			Help:      "Bytes dropped while skipping oversized frames.",
		}, []string{}),
		Scanned: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "linecodec",
			Name:      "scanned_bytes_total",
			Help:      "Bytes searched for a frame delimiter.",
		}, []string{}),
	}
}

func (m Metrics) validate() error {
	if m.Frames == nil || m.Discarded == nil || m.Scanned == nil {
		return errors.New("linecodec: incomplete metrics")
	}
	return nil
}

func (m Metrics) event(name string) {
	m.Frames.With("event", name).Add(1)
}
