// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package buffer implements the growable byte deque the codec reads from and writes into.
//
// Bytes are appended at the back and consumed from the front. Consuming is O(1):
// only a read offset moves. The consumed prefix is reclaimed lazily, when an append
// needs more tail space than is left.
package buffer

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// minRead is the spare capacity Fill makes sure of before each read.
const minRead = 512

// Buffer is not safe for concurrent use.
type Buffer struct {
	buf []byte // content is buf[off:]
	off int
}

// New returns an empty buffer with room for capacity bytes.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the unconsumed content.
// The slice is only valid until the next call that modifies the buffer.
func (b *Buffer) Bytes() []byte { return b.buf[b.off:] }

// Len is the number of unconsumed bytes.
func (b *Buffer) Len() int { return len(b.buf) - b.off }

// Cap is the number of bytes the content can grow to from the current offset without reallocating.
func (b *Buffer) Cap() int { return cap(b.buf) - b.off }

// Available is the number of bytes that can be appended without compacting or reallocating.
func (b *Buffer) Available() int { return cap(b.buf) - len(b.buf) }

// Reserve makes sure at least n bytes can be appended without another allocation.
// It never shrinks the buffer.
func (b *Buffer) Reserve(n int) {
	if n < 0 {
		panic(fmt.Sprintf("buffer: negative reserve %d", n))
	}
	if b.Available() >= n {
		return
	}

	l := b.Len()
	if b.off > 0 && cap(b.buf)-l >= n {
		// enough room once the consumed prefix is gone
		copy(b.buf[:l], b.buf[b.off:])
		b.buf = b.buf[:l]
		b.off = 0
		return
	}

	newCap := 2*cap(b.buf) + n
	if newCap < l+n {
		newCap = l + n
	}
	grown := make([]byte, l, newCap)
	copy(grown, b.buf[b.off:])
	b.buf = grown
	b.off = 0
}

// Spare returns the writable region behind the content.
// Bytes written there become content after a call to Commit.
func (b *Buffer) Spare() []byte {
	return b.buf[len(b.buf):cap(b.buf)]
}

// Commit appends the first n bytes of Spare() to the content.
func (b *Buffer) Commit(n int) {
	if n < 0 || n > b.Available() {
		panic(fmt.Sprintf("buffer: commit %d out of range (available: %d)", n, b.Available()))
	}
	b.buf = b.buf[:len(b.buf)+n]
}

// Advance drops n bytes from the front of the buffer.
func (b *Buffer) Advance(n int) {
	if n < 0 || n > b.Len() {
		panic(fmt.Sprintf("buffer: advance %d out of range (len: %d)", n, b.Len()))
	}
	b.off += n
	if b.off == len(b.buf) {
		b.buf = b.buf[:0]
		b.off = 0
	}
}

// Reset drops all content but keeps the allocation.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.off = 0
}

// Write appends p. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Reserve(len(p))
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends c. It never fails.
func (b *Buffer) WriteByte(c byte) error {
	b.Reserve(1)
	b.buf = append(b.buf, c)
	return nil
}

// Fill does a single read from r into the spare capacity, reading at most max bytes if max > 0.
// One call maps to one read on the underlying transport. io.EOF is returned as it is.
func (b *Buffer) Fill(r io.Reader, max int) (int, error) {
	want := minRead
	if max > 0 && max < want {
		want = max
	}
	b.Reserve(want)
	spare := b.Spare()
	if max > 0 && len(spare) > max {
		spare = spare[:max]
	}
	n, err := r.Read(spare)
	if n < 0 || n > len(spare) {
		return 0, errors.Errorf("buffer: reader returned invalid count %d", n)
	}
	b.Commit(n)
	return n, err
}

// WriteTo writes the whole content to w and consumes what was written.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for b.Len() > 0 {
		n, err := w.Write(b.Bytes())
		if n > 0 {
			b.Advance(n)
			total += int64(n)
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

var (
	_ io.Writer     = (*Buffer)(nil)
	_ io.ByteWriter = (*Buffer)(nil)
	_ io.WriterTo   = (*Buffer)(nil)
)
