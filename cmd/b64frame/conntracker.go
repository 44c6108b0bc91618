// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"net"
	"sync"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/hashicorp/go-multierror"
)

type connEntry struct {
	c       net.Conn
	started time.Time
}

// keyed by remote and then local address
type connLookupMap map[string]map[string]connEntry

// connTracker keeps the open echo connections so shutdown can close them
type connTracker struct {
	activeLock sync.Mutex
	active     connLookupMap

	metrics connMetricSet
	log     kitlog.Logger
}

func newConnTracker(m connMetricSet, logger kitlog.Logger) *connTracker {
	return &connTracker{
		active:  make(connLookupMap),
		metrics: m,
		log:     logger,
	}
}

func (ct *connTracker) OnAccept(conn net.Conn) {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()

	k := conn.RemoteAddr().String()
	conns, ok := ct.active[k]
	if !ok {
		conns = make(map[string]connEntry)
		ct.active[k] = conns
	}
	conns[conn.LocalAddr().String()] = connEntry{
		c:       conn,
		started: time.Now(),
	}
	ct.metrics.count.With("part", "tracked_conns").Add(1)
}

// OnClose returns how long conn was open, or 0 if it was not tracked.
func (ct *connTracker) OnClose(conn net.Conn) time.Duration {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()

	k := conn.RemoteAddr().String()
	conns, ok := ct.active[k]
	if !ok {
		return 0
	}

	lkey := conn.LocalAddr().String()
	who, ok := conns[lkey]
	if !ok {
		return 0
	}
	delete(conns, lkey)
	if len(conns) == 0 {
		delete(ct.active, k)
	}

	durr := time.Since(who.started)
	ct.metrics.count.With("part", "tracked_conns").Add(-1)
	ct.metrics.duration.With("part", "tracked_conns").Observe(durr.Seconds())
	return durr
}

func (ct *connTracker) Count() uint {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()

	var n uint
	for _, conns := range ct.active {
		n += uint(len(conns))
	}
	return n
}

func (ct *connTracker) CloseAll() error {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()

	var result *multierror.Error
	for remote, conns := range ct.active {
		for _, e := range conns {
			if err := e.c.Close(); err != nil {
				level.Debug(ct.log).Log("event", "close failed", "remote", remote, "err", err)
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}
