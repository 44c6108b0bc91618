// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package stream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/ssbc/go-luigi"
	"github.com/stretchr/testify/require"
)

func TestWebsocketConn(t *testing.T) {
	r := require.New(t)

	w, err := NewWrapper(256, 16, nil)
	r.NoError(err)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		wsc, err := upgrader.Upgrade(rw, req, nil)
		if err != nil {
			return
		}
		fc, err := w.Wrap(NewWebsocketConn(wsc))
		if err != nil {
			wsc.Close()
			return
		}
		defer fc.Close()
		luigi.Pump(context.Background(), NewSink(fc), NewSource(fc))
	}))
	defer srv.Close()

	wsc, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	r.NoError(err)
	client, err := w.Wrap(NewWebsocketConn(wsc))
	r.NoError(err)
	defer client.Close()

	msgs := []string{"over", "", strings.Repeat("websocket ", 10)}
	for _, m := range msgs {
		r.NoError(client.WriteFrame([]byte(m)))
	}
	for _, m := range msgs {
		frame, err := client.ReadFrame()
		r.NoError(err)
		r.Equal(m, string(frame))
	}

	r.NoError(client.CloseWrite())
	_, err = client.ReadFrame()
	r.Equal(io.EOF, err, "the server closes after our close message")
}

func TestWebsocketConnRejectsText(t *testing.T) {
	r := require.New(t)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		wsc, err := upgrader.Upgrade(rw, req, nil)
		if err != nil {
			return
		}
		defer wsc.Close()
		wsc.WriteMessage(websocket.TextMessage, []byte("aGk\n"))
		wsc.ReadMessage()
	}))
	defer srv.Close()

	wsc, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	r.NoError(err)
	conn := NewWebsocketConn(wsc)
	defer conn.Close()

	_, err = conn.Read(make([]byte, 8))
	r.Error(err)
}
