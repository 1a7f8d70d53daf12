// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the binary protocol spoken between
// cloudvault-server and its clients. Every frame is a 12-byte preamble
// (magic, version, header length, body length, all big-endian)
// followed by a newline-delimited key=value header block and then
// opaque body bytes. The preamble and header block together form the
// frame's "wire header"; the body is the command's payload (e.g. a
// directory listing or a chunk of file data).
//
// A [Decoder] owns a growable byte buffer fed by successive reads from
// a connection. Each [Decoder.Decode] call pulls one complete frame
// out of the buffer; when only a partial frame is available it
// reports that without consuming anything, so callers can read more
// bytes and try again.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// Magic identifies a CloudVault wire frame. The bytes spell "ECDR"
// (Enterprise Cloud Drive) packed into a big-endian uint32.
const Magic uint32 = 0x45434452

// Version is the only wire protocol version this package speaks.
const Version uint16 = 1

// preambleSize is the fixed byte length of magic + version + header
// length + body length.
const preambleSize = 4 + 2 + 2 + 4

// Message is a single protocol frame: a set of string headers plus an
// opaque body.
type Message struct {
	Headers map[string]string
	Body    []byte
}

// NewMessage builds a Message from the given headers with no body.
func NewMessage(headers map[string]string) Message {
	return Message{Headers: headers}
}

// Header returns the value of key, or fallback if key is not present.
func (m Message) Header(key, fallback string) string {
	if v, ok := m.Headers[key]; ok {
		return v
	}
	return fallback
}

// Encode serializes m into a wire frame.
func Encode(m Message) []byte {
	headerBlob := serializeHeaders(m.Headers)

	buf := make([]byte, preambleSize+len(headerBlob)+len(m.Body))
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint16(buf[4:6], Version)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(headerBlob)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(m.Body)))
	copy(buf[preambleSize:], headerBlob)
	copy(buf[preambleSize+len(headerBlob):], m.Body)
	return buf
}

// serializeHeaders renders headers as sorted "key=value\n" lines so
// that encoding the same headers twice always produces the same bytes.
func serializeHeaders(headers map[string]string) []byte {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(headers[k])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func parseHeaders(blob []byte) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(string(blob), "\n") {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		headers[line[:idx]] = line[idx+1:]
	}
	return headers
}

// Decoder incrementally decodes frames out of a stream of bytes. The
// zero value is ready to use.
type Decoder struct {
	buf    []byte
	offset int
}

// Feed appends newly read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// Decode attempts to extract one complete frame from the buffered
// bytes. It returns (message, true, nil) on success, (zero, false,
// nil) if not enough bytes have been buffered yet, and (zero, false,
// err) if the buffered bytes are not a valid frame at all (bad magic
// or unsupported version) — a fatal, unrecoverable condition for the
// connection.
func (d *Decoder) Decode() (Message, bool, error) {
	available := len(d.buf) - d.offset
	if available < preambleSize {
		return Message{}, false, nil
	}

	preamble := d.buf[d.offset : d.offset+preambleSize]
	magic := binary.BigEndian.Uint32(preamble[0:4])
	version := binary.BigEndian.Uint16(preamble[4:6])
	headerSize := int(binary.BigEndian.Uint16(preamble[6:8]))
	bodySize := int(binary.BigEndian.Uint32(preamble[8:12]))

	if magic != Magic {
		return Message{}, false, fmt.Errorf("wire: bad magic %#x", magic)
	}
	if version != Version {
		return Message{}, false, fmt.Errorf("wire: unsupported version %d", version)
	}

	frameSize := preambleSize + headerSize + bodySize
	if available < frameSize {
		return Message{}, false, nil
	}

	headerStart := d.offset + preambleSize
	headerBlob := d.buf[headerStart : headerStart+headerSize]
	bodyStart := headerStart + headerSize
	body := append([]byte(nil), d.buf[bodyStart:bodyStart+bodySize]...)

	msg := Message{Headers: parseHeaders(headerBlob), Body: body}

	d.offset += frameSize
	d.compact()
	return msg, true, nil
}

// compact drops already-consumed bytes once the read cursor has
// passed the midpoint of the buffer, bounding memory growth on a
// long-lived connection without copying on every single frame.
func (d *Decoder) compact() {
	if d.offset > 0 && d.offset > len(d.buf)/2 {
		remaining := len(d.buf) - d.offset
		copy(d.buf, d.buf[d.offset:])
		d.buf = d.buf[:remaining]
		d.offset = 0
	}
}
