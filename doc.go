// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

/*
Package linecodec turns a byte stream into frames and back.

Wire format:

	( base64(payload) '\n' ) *

The payload is base64 encoded with the standard alphabet and without padding, so binary data
can travel over line oriented transports. There is no length prefix, frames end at the newline.

Decoding is incremental. A transport driver appends whatever it read to a buffer.Buffer and
calls Decoder.Decode until it reports that no complete frame is left:

	for {
		frame, ok, err := dec.Decode(buf)
		if err != nil {
			// ErrLengthExceeded or *MalformedError, the decoder can continue
			continue
		}
		if !ok {
			break // read more input
		}
		handle(frame)
	}

Package stream has ready made drivers for io.Reader, io.Writer, luigi and net.Conn.
*/
package linecodec
