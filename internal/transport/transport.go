// Package transport implements the framed message transport of spec.md §4.1 and §6:
// [u32 big-endian length][payload], payload optionally deflate-compressed, decoded
// frame is UTF-8 text. Grounded on the original implementation's
// application/connection.py (TemplateTCP.send_msg/recv_msg, CHUNK_SIZE=256KiB).
package transport

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/adriannosampaio/darkrenderer/internal/direrr"
)

// ChunkSize is the maximum read size per loop iteration while gathering a frame's
// payload, matching the original's CHUNK_SIZE = 256 * 1024.
const ChunkSize = 256 * 1024

// Conn wraps a net.Conn with the framed send/recv protocol. Exactly one goroutine
// owns a Conn at a time (spec.md §5: "TCP sockets are owned by exactly one
// goroutine/thread at a time").
type Conn struct {
	raw net.Conn
}

// New wraps an established net.Conn.
func New(raw net.Conn) *Conn {
	return &Conn{raw: raw}
}

// Send writes one frame: length prefix then payload, as a single underlying write.
func (c *Conn) Send(message string, compress bool) error {
	payload := []byte(message)
	if compress {
		compressed, err := deflate(payload)
		if err != nil {
			return fmt.Errorf("transport: compress: %w", err)
		}
		payload = compressed
	}

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)

	if _, err := c.raw.Write(frame); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Recv reads exactly one frame: 4 byte length prefix, then loops reading up to
// ChunkSize bytes until length bytes are gathered, then optionally inflates.
func (c *Conn) Recv(decompress bool) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.raw, lenBuf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return "", direrr.ErrPeerClosed
		}
		return "", fmt.Errorf("transport: recv length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])

	payload := make([]byte, 0, length)
	for uint32(len(payload)) < length {
		remaining := length - uint32(len(payload))
		want := remaining
		if want > ChunkSize {
			want = ChunkSize
		}
		chunk := make([]byte, want)
		n, err := io.ReadFull(c.raw, chunk)
		if n > 0 {
			payload = append(payload, chunk[:n]...)
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return "", direrr.ErrPeerClosed
			}
			return "", fmt.Errorf("transport: recv payload: %w", err)
		}
	}

	if decompress {
		inflated, err := inflate(payload)
		if err != nil {
			return "", fmt.Errorf("transport: decompress: %w", err)
		}
		payload = inflated
	}
	return string(payload), nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}
