// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package stream

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/ssbc/go-netwrap"

	linecodec "github.com/ssbc/go-linecodec"
)

const NetworkString = "b64-lines"

// Addr marks a connection as framed when wrapped around the transport address.
type Addr struct{}

// Network returns NetworkString.
// Can be used with netwrap.GetAddr to check if a connection is framed.
func (Addr) Network() string { return NetworkString }

func (Addr) String() string { return "b64-lines" }

// Conn is a net.Conn where each Write sends one frame and Read returns decoded payload bytes.
// A frame longer than the Read buffer is returned over several calls.
type Conn struct {
	conn net.Conn

	rmu     sync.Mutex
	r       *Reader
	pending []byte

	wmu sync.Mutex
	w   *Writer
}

// Wrapper creates framed connections with a fresh codec each.
type Wrapper struct {
	maxFrameLength, minCapacity int

	codecOpts  []linecodec.Option
	readerOpts []ReaderOption
}

// NewWrapper checks the codec configuration once, so wrapping connections can not fail on it later.
func NewWrapper(maxFrameLength, minCapacity int, codecOpts []linecodec.Option, readerOpts ...ReaderOption) (*Wrapper, error) {
	w := &Wrapper{
		maxFrameLength: maxFrameLength,
		minCapacity:    minCapacity,
		codecOpts:      codecOpts,
		readerOpts:     readerOpts,
	}
	if _, err := w.Wrap(nopConn{}); err != nil {
		return nil, err
	}
	return w, nil
}

// Wrap frames conn.
func (w *Wrapper) Wrap(conn net.Conn) (*Conn, error) {
	codec, err := linecodec.NewWithLimit(w.maxFrameLength, w.minCapacity, w.codecOpts...)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(conn, codec.Decoder, w.readerOpts...)
	if err != nil {
		return nil, err
	}
	fw, err := NewWriter(conn, codec.Encoder)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn, r: r, w: fw}, nil
}

// ConnWrapper returns the wrapper for netwrap.Dial.
func (w *Wrapper) ConnWrapper() netwrap.ConnWrapper {
	return func(conn net.Conn) (net.Conn, error) {
		fc, err := w.Wrap(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return fc, nil
	}
}

// ListenerWrapper returns the wrapper for netwrap.Listen.
func (w *Wrapper) ListenerWrapper() netwrap.ListenerWrapper {
	return netwrap.NewListenerWrapper(Addr{}, w.ConnWrapper())
}

// ReadFrame returns the next frame, or what is left of it after partial Reads.
func (c *Conn) ReadFrame() ([]byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if len(c.pending) > 0 {
		rest := c.pending
		c.pending = nil
		return rest, nil
	}
	return c.r.ReadFrame()
}

func (c *Conn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	// empty frames carry nothing a byte stream could show
	for len(c.pending) == 0 {
		frame, err := c.r.ReadFrame()
		if err != nil {
			return 0, err
		}
		c.pending = frame
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// WriteFrame sends p as one frame.
func (c *Conn) WriteFrame(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.w.WriteFrame(p)
}

// Write sends p as one frame.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.WriteFrame(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// CloseWrite shuts down the writing side, if the underlying connection can (like *net.TCPConn).
// The peer reads io.EOF after the last frame while replies can still be read.
func (c *Conn) CloseWrite() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.w.Flush(); err != nil {
		return err
	}
	cw, ok := c.conn.(interface{ CloseWrite() error })
	if !ok {
		return errors.Errorf("b64-lines: %T can not half-close", c.conn)
	}
	return cw.CloseWrite()
}

// Reader gives frame level access. It shares state with Read but not its lock.
func (c *Conn) Reader() *Reader { return c.r }

// Writer gives frame level access. It is not guarded by the lock of WriteFrame.
func (c *Conn) Writer() *Writer { return c.w }

// Close closes the underlying net.Conn
func (c *Conn) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return errors.Wrap(c.w.Close(), "b64-lines: error closing connection")
}

// LocalAddr returns the local net.Addr wrapped with Addr
func (c *Conn) LocalAddr() net.Addr {
	return netwrap.WrapAddr(c.conn.LocalAddr(), Addr{})
}

// RemoteAddr returns the remote net.Addr wrapped with Addr
func (c *Conn) RemoteAddr() net.Addr {
	return netwrap.WrapAddr(c.conn.RemoteAddr(), Addr{})
}

// SetDeadline passes the call to the underlying net.Conn
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline passes the call to the underlying net.Conn
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline passes the call to the underlying net.Conn
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// nopConn is only used to validate a Wrapper's configuration
type nopConn struct{ net.Conn }

var _ net.Conn = (*Conn)(nil)
