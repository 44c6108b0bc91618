// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"net"
	"net/http"
	"sync"

	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	linecodec "github.com/ssbc/go-linecodec"
)

const metricsNamespace = "b64frame"

type connMetricSet struct {
	count    metrics.Gauge
	duration metrics.Histogram
}

func newNopConnMetrics() connMetricSet {
	return connMetricSet{
		count:    discard.NewGauge(),
		duration: discard.NewHistogram(),
	}
}

// the default registry refuses a second registration of the same names
var registerOnce sync.Once

func registerMetrics() {
	registerOnce.Do(func() {
		codecMetrics = linecodec.NewPrometheusMetrics(metricsNamespace)

		connMetrics = connMetricSet{
			count: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "serve",
				Name:      "connections",
				Help:      "Currently open echo connections.",
			}, []string{"part"}),
			duration: prometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
				Namespace: metricsNamespace,
				Subsystem: "serve",
				Name:      "connection_durations_seconds",
				Help:      "How long echo connections stayed open.",
			}, []string{"part"}),
		}
	})
}

func startMetrics(addr string) error {
	registerMetrics()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "metrics: failed to listen")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		level.Info(log).Log("event", "starting", "metrics", "addr", lis.Addr().String())
		err := http.Serve(lis, mux)
		level.Warn(log).Log("event", "metrics server stopped", "err", err)
	}()
	return nil
}
