// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package linecodec

import (
	"bytes"
	"encoding/base64"
)

// Transform is a reversible byte-to-text encoding applied to each frame payload.
// Its output must never contain the delimiter byte.
type Transform interface {
	// EncodedLen is the exact or upper bound length of encoding n bytes
	EncodedLen(n int) int
	// Encode writes the encoding of src into dst, which has at least EncodedLen(len(src)) bytes.
	Encode(dst, src []byte) (int, error)

	// DecodedLen is an upper bound for decoding n bytes
	DecodedLen(n int) int
	// Decode writes the decoding of src into dst, which has at least DecodedLen(len(src)) bytes.
	Decode(dst, src []byte) (int, error)
}

// Base64 is the wire transform: standard alphabet, written without padding.
// Padded input is accepted when decoding.
var Base64 Transform = base64Transform{}

type base64Transform struct{}

var enc = base64.RawStdEncoding

func (base64Transform) EncodedLen(n int) int { return enc.EncodedLen(n) }

func (base64Transform) Encode(dst, src []byte) (int, error) {
	enc.Encode(dst, src)
	return enc.EncodedLen(len(src)), nil
}

func (base64Transform) DecodedLen(n int) int { return enc.DecodedLen(n) }

func (base64Transform) Decode(dst, src []byte) (int, error) {
	return enc.Decode(dst, trimPadding(src))
}

// trimPadding strips at most two trailing '='.
func trimPadding(src []byte) []byte {
	for i := 0; i < 2 && len(src) > 0 && src[len(src)-1] == byte(base64.StdPadding); i++ {
		src = src[:len(src)-1]
	}
	return src
}

// containsDelimiter reports if a transform emitted a byte that would split the frame.
func containsDelimiter(p []byte) bool {
	return bytes.IndexByte(p, Delimiter) >= 0
}
