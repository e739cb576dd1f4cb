// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package vigil

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vigilwatch/vigil-go/protocol"
)

// frameReader owns the read half of the transport. It reassembles
// complete PDUs from the byte stream and forwards each payload to the
// coordinator. It knows nothing about PDU contents beyond how to sniff
// the frame header for the total message size.
type frameReader struct {
	reader io.Reader
	coord  *coordinator
	logger *slog.Logger

	// pending buffers stream bytes beyond the current frame: reads are
	// chunked, so a read that completes one frame routinely carries
	// the start of the following one.
	pending []byte
}

func newFrameReader(reader io.Reader, coord *coordinator) *frameReader {
	return &frameReader{reader: reader, coord: coord, logger: coord.logger}
}

// run forwards PDUs until the stream fails, then reports the failure
// to the coordinator so it can drain pending requests. Every exit path
// of this goroutine goes through that report; a reader that died
// silently would leave callers blocked forever.
func (r *frameReader) run() {
	for {
		payload, err := r.readPDU()
		if err != nil {
			r.logger.Debug("vigil frame reader exiting", "error", err)
			_ = r.coord.submit(connectionFailed{err: err})
			return
		}
		if err := r.coord.submit(receivedPDU{payload: payload}); err != nil {
			return
		}
	}
}

// readPDU reads exactly one complete PDU and returns its payload
// bytes. It sniffs the frame header from the first buffered chunk to
// learn the total frame size, then reads until that many bytes have
// arrived.
//
// End of stream before a frame completes is an error, not a retry: a
// frame boundary is the only place the stream may end.
func (r *frameReader) readPDU() ([]byte, error) {
	start, length, err := r.sniff()
	if err != nil {
		return nil, err
	}

	total := start + length
	frame := make([]byte, total)
	have := copy(frame, r.pending)
	r.pending = append(r.pending[:0], r.pending[have:]...)

	for have < total {
		read, err := r.fill(frame[have:])
		if err != nil {
			return nil, err
		}
		have += read
	}
	return frame[start:], nil
}

// sniff buffers stream bytes until the frame header is complete and
// returns the payload start offset and length. A header that fails to
// decode (beyond needing more bytes) means the stream is no longer
// framing-aligned; that is fatal for the connection, because resyncing
// to the next frame boundary is impossible.
func (r *frameReader) sniff() (start, length int, err error) {
	for {
		start, length, err = protocol.SniffHeader(r.pending)
		if err == nil {
			return start, length, nil
		}
		if !errors.Is(err, protocol.ErrShortHeader) {
			return 0, 0, fmt.Errorf("sniffing frame header: %w", err)
		}

		chunk := make([]byte, protocol.SniffBufferSize)
		read, err := r.fill(chunk)
		if err != nil {
			return 0, 0, err
		}
		r.pending = append(r.pending, chunk[:read]...)
	}
}

// fill performs one transport read into buffer. A zero-byte read means
// the peer closed the stream mid-frame (or between frames), which is
// terminal either way: the connection is done.
func (r *frameReader) fill(buffer []byte) (int, error) {
	read, err := r.reader.Read(buffer)
	if read > 0 {
		return read, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("reading frame: %w", io.ErrUnexpectedEOF)
	}
	return 0, fmt.Errorf("reading frame: %w", err)
}
