// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package stream

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// NewWebsocketConn turns the binary messages of wsc into a byte stream, so it can be wrapped like any net.Conn.
// Message boundaries carry no meaning, a frame may span messages.
func NewWebsocketConn(wsc *websocket.Conn) net.Conn {
	return &wsConn{wsc: wsc}
}

type wsConn struct {
	wsc *websocket.Conn

	rmu sync.Mutex
	r   io.Reader

	wmu sync.Mutex
}

func (conn *wsConn) Read(data []byte) (int, error) {
	conn.rmu.Lock()
	defer conn.rmu.Unlock()

	for {
		if conn.r == nil {
			if err := conn.renewReader(); err != nil {
				return 0, err
			}
		}
		n, err := conn.r.Read(data)
		if err == io.EOF {
			conn.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (conn *wsConn) renewReader() error {
	mt, r, err := conn.wsc.NextReader()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return io.EOF
		}
		return errors.Wrap(err, "wsConn: failed to get reader")
	}
	if mt != websocket.BinaryMessage {
		return errors.Errorf("wsConn: not binary message: %v", mt)
	}
	conn.r = r
	return nil
}

func (conn *wsConn) Write(data []byte) (int, error) {
	conn.wmu.Lock()
	defer conn.wmu.Unlock()

	if err := conn.wsc.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return 0, errors.Wrap(err, "wsConn: failed to write message")
	}
	return len(data), nil
}

// CloseWrite sends a close message. The peer reads io.EOF, replies can still arrive.
func (conn *wsConn) CloseWrite() error {
	conn.wmu.Lock()
	defer conn.wmu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return conn.wsc.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (conn *wsConn) Close() error {
	return conn.wsc.Close()
}

func (conn *wsConn) LocalAddr() net.Addr  { return conn.wsc.LocalAddr() }
func (conn *wsConn) RemoteAddr() net.Addr { return conn.wsc.RemoteAddr() }

func (conn *wsConn) SetDeadline(t time.Time) error {
	if err := conn.wsc.SetReadDeadline(t); err != nil {
		return err
	}
	return conn.wsc.SetWriteDeadline(t)
}

func (conn *wsConn) SetReadDeadline(t time.Time) error  { return conn.wsc.SetReadDeadline(t) }
func (conn *wsConn) SetWriteDeadline(t time.Time) error { return conn.wsc.SetWriteDeadline(t) }
