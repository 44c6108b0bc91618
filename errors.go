// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package linecodec

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrLengthExceeded is returned by Decode when no delimiter showed up within MaxFrameLength bytes.
// The decoder is discarding the rest of that frame; keep calling Decode to resynchronize.
var ErrLengthExceeded = errors.New("linecodec: frame length limit exceeded")

// ErrFrameTooLarge is returned by Encode if the encoded frame would be longer than MaxFrameLength.
var ErrFrameTooLarge = errors.New("linecodec: encoded frame exceeds length limit")

// ErrBufferOverflow is returned by stream readers once more than MaxBuffered bytes are pending without a frame.
var ErrBufferOverflow = errors.New("linecodec: buffered input exceeds limit")

// MalformedError is returned by Decode if the transform rejected a frame's payload.
// The frame was consumed from the buffer, the next call continues with the following frame.
type MalformedError struct {
	// Len is the encoded payload length, without the delimiter
	Len int
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("linecodec: malformed frame (%d encoded bytes): %s", e.Len, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// EncodeError is returned by Encode if the transform failed or produced unframeable output.
type EncodeError struct {
	Len int
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("linecodec: failed to encode %d byte payload: %s", e.Len, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// IsMalformed returns true if err is or wraps a *MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}
