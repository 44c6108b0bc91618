// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"net/http"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/websocket"

	"github.com/ssbc/go-linecodec/stream"
)

// websocketHandler echoes frames sent over binary websocket messages until ctx is canceled.
func websocketHandler(ctx context.Context, w *stream.Wrapper, tracker *connTracker, logger kitlog.Logger) http.HandlerFunc {
	var upgrader = websocket.Upgrader{
		ReadBufferSize:  1024 * 4,
		WriteBufferSize: 1024 * 4,
		CheckOrigin: func(_ *http.Request) bool {
			return true
		},
		EnableCompression: false,
	}
	return func(rw http.ResponseWriter, req *http.Request) {
		wsConn, err := upgrader.Upgrade(rw, req, nil)
		if err != nil {
			level.Warn(logger).Log("event", "websocket upgrade failed", "err", err, "remote", req.RemoteAddr)
			return
		}

		fc, err := w.Wrap(stream.NewWebsocketConn(wsConn))
		if err != nil {
			level.Error(logger).Log("event", "failed wrap", "err", err, "remote", req.RemoteAddr)
			wsConn.Close()
			return
		}

		level.Debug(logger).Log("event", "new ws conn", "remote", req.RemoteAddr)
		echo(ctx, fc, tracker, logger)
	}
}
