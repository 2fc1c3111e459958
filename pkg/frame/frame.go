// Package frame implements the length-prefixed message transport shared by
// every tier: a frame is a big-endian uint32 length followed by that many
// payload bytes. When compression is enabled for the session the payload is
// the deflate (zlib) form of the logical message. The decoded frame is UTF-8
// text.
package frame

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultChunkSize bounds a single read while gathering a frame body.
const DefaultChunkSize = 256 * 1024

var (
	metricBytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "darkrenderer",
		Name:      "frame_sent_bytes_total",
		Help:      "Total bytes written to peers, headers included.",
	})
	metricBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "darkrenderer",
		Name:      "frame_received_bytes_total",
		Help:      "Total bytes read from peers, headers included.",
	})
)

// Conn frames messages over a single stream connection. It is owned by
// exactly one goroutine at a time.
type Conn struct {
	conn      net.Conn
	chunkSize int
}

// New wraps a stream connection. chunkSize <= 0 selects DefaultChunkSize.
func New(conn net.Conn, chunkSize int) *Conn {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Conn{
		conn:      conn,
		chunkSize: chunkSize,
	}
}

// Send writes one frame: the payload length then the payload, as one write.
func (c *Conn) Send(msg []byte, compress bool) error {
	payload := msg
	if compress {
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(msg); err != nil {
			return errors.Wrap(err, "compressing frame")
		}
		if err := w.Close(); err != nil {
			return errors.Wrap(err, "flushing compressed frame")
		}
		payload = buf.Bytes()
	}

	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)

	if _, err := c.conn.Write(out); err != nil {
		return errors.Wrap(err, "writing frame")
	}
	metricBytesSent.Add(float64(len(out)))
	return nil
}

// Recv reads exactly one frame. A zero-byte read on the header is a peer
// close and surfaces as io.EOF.
func (c *Conn) Recv(decompress bool) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "reading frame header")
	}
	size := binary.BigEndian.Uint32(header[:])

	payload := make([]byte, size)
	for read := 0; read < int(size); {
		chunk := int(size) - read
		if chunk > c.chunkSize {
			chunk = c.chunkSize
		}
		n, err := c.conn.Read(payload[read : read+chunk])
		read += n
		// A read can deliver the last bytes of the frame together with
		// io.EOF. The frame is complete then; the close surfaces on the
		// next Recv.
		if err != nil && read < int(size) {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, errors.Wrap(err, "reading frame body")
		}
	}
	metricBytesReceived.Add(float64(4 + size))

	if !decompress {
		return payload, nil
	}

	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "opening compressed frame")
	}
	defer r.Close()
	msg, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing frame")
	}
	return msg, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr reports the peer address for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
