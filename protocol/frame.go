// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Every PDU on the daemon socket is framed as:
//
//	[2 magic bytes] [CBOR unsigned integer: payload length] [CBOR payload]
//
// The length integer uses a definite-length CBOR head (major type 0),
// so the header is self-describing: its own width is 1, 2, 3, 5, or 9
// bytes depending on the payload size. SniffHeader decodes just the
// magic and the length head from a short prefix, which is all the
// frame reader needs to know how many bytes make up the full PDU.

// Frame magic bytes. The second byte is the protocol version.
const (
	frameMagic0 = 0x00
	frameMagic1 = 0x03
)

// SniffBufferSize is the prefix length that is guaranteed to contain a
// complete frame header for any PDU: 2 magic bytes plus the widest
// possible CBOR length head (9 bytes).
const SniffBufferSize = 16

// MaxPayloadLength caps the declared payload size. Query results over
// large trees run to tens of megabytes; a declared length beyond this
// means the stream is not framing-aligned.
const MaxPayloadLength = 1 << 30

// ErrShortHeader reports that the prefix handed to SniffHeader ended
// before the frame header was complete. More bytes from the stream may
// resolve it; any other SniffHeader error is a framing fault.
var ErrShortHeader = errors.New("protocol: incomplete frame header")

// SniffHeader decodes the frame header from a prefix of a PDU. It
// returns the offset at which the CBOR payload starts and the payload
// length in bytes, so the total frame size is start+length. A prefix
// that is too short to contain the full header yields ErrShortHeader.
func SniffHeader(prefix []byte) (start, length int, err error) {
	if len(prefix) < 3 {
		return 0, 0, ErrShortHeader
	}
	if prefix[0] != frameMagic0 || prefix[1] != frameMagic1 {
		return 0, 0, fmt.Errorf("protocol: bad frame magic 0x%02x%02x", prefix[0], prefix[1])
	}

	head := prefix[2]
	if head>>5 != 0 {
		return 0, 0, fmt.Errorf("protocol: frame length has CBOR major type %d, want unsigned integer", head>>5)
	}

	additional := head & 0x1f
	var headTail int // bytes following the initial head byte
	var payload uint64
	switch {
	case additional < 24:
		payload = uint64(additional)
	case additional == 24:
		headTail = 1
	case additional == 25:
		headTail = 2
	case additional == 26:
		headTail = 4
	case additional == 27:
		headTail = 8
	default:
		return 0, 0, fmt.Errorf("protocol: reserved CBOR additional info %d in frame length", additional)
	}

	if len(prefix) < 3+headTail {
		return 0, 0, ErrShortHeader
	}
	switch headTail {
	case 1:
		payload = uint64(prefix[3])
	case 2:
		payload = uint64(binary.BigEndian.Uint16(prefix[3:5]))
	case 4:
		payload = uint64(binary.BigEndian.Uint32(prefix[3:7]))
	case 8:
		payload = binary.BigEndian.Uint64(prefix[3:11])
	}

	if payload > MaxPayloadLength {
		return 0, 0, fmt.Errorf("protocol: declared payload length %d exceeds maximum %d", payload, MaxPayloadLength)
	}
	return 3 + headTail, int(payload), nil
}

// EncodeFrame wraps an encoded CBOR payload in a frame header. The
// length head uses the smallest CBOR encoding that fits, matching the
// deterministic-encoding rule used for the payload itself.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+11)
	frame = append(frame, frameMagic0, frameMagic1)
	frame = appendLengthHead(frame, uint64(len(payload)))
	return append(frame, payload...)
}

// appendLengthHead appends a minimal-width CBOR unsigned integer head.
func appendLengthHead(dst []byte, n uint64) []byte {
	switch {
	case n < 24:
		return append(dst, byte(n))
	case n <= 0xff:
		return append(dst, 24, byte(n))
	case n <= 0xffff:
		return binary.BigEndian.AppendUint16(append(dst, 25), uint16(n))
	case n <= 0xffffffff:
		return binary.BigEndian.AppendUint32(append(dst, 26), uint32(n))
	default:
		return binary.BigEndian.AppendUint64(append(dst, 27), n)
	}
}
