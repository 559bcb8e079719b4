// Package p2p implements the wire framing and handshake boundary layer used
// to disseminate transactions and blocks between nodes. It deliberately does
// not implement peer discovery, routing, or NAT traversal — callers are
// expected to supply already-connected net.Conns.
package p2p

// frame.go defines the wire frame every message on a session is wrapped in:
// a fixed 16-byte header (msg_type, seq, payload_len) followed by the
// payload itself, capped at 5 MiB.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxPayloadBytes is the hard cap on a single frame's payload size.
const MaxPayloadBytes = 5 * 1024 * 1024

// Message types recognized at the framing layer. Application-specific
// payload types (transaction, block) are carried as opaque bytes and
// interpreted above this package.
const (
	MsgHello       uint32 = 1
	MsgChallenge   uint32 = 2
	MsgHandshakeOK uint32 = 3
	MsgTx          uint32 = 10
	MsgBlock       uint32 = 11

	// MsgQueryMempool and MsgMempoolReport carry a node's local management
	// surface (CLI introspection) over the same session framing as the
	// gossip messages above; they are never part of consensus.
	MsgQueryMempool  uint32 = 20
	MsgMempoolReport uint32 = 21
)

// ErrFrameTooLarge is returned when a frame's declared payload length
// exceeds MaxPayloadBytes.
var ErrFrameTooLarge = errors.New("p2p: frame payload exceeds 5 MiB cap")

// Frame is a single unit on the wire: {msg_type:u32, seq:u64,
// payload_len:u32, payload:bytes}.
type Frame struct {
	MsgType uint32
	Seq     uint64
	Payload []byte
}

// WriteFrame writes f to w in wire format.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxPayloadBytes {
		return ErrFrameTooLarge
	}
	var header [16]byte
	binary.BigEndian.PutUint32(header[0:4], f.MsgType)
	binary.BigEndian.PutUint64(header[4:12], f.Seq)
	binary.BigEndian.PutUint32(header[12:16], uint32(len(f.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("p2p: write frame header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("p2p: write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads a single frame from r, rejecting any payload_len above
// MaxPayloadBytes before allocating a buffer for it.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [16]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("p2p: read frame header: %w", err)
	}
	f := Frame{
		MsgType: binary.BigEndian.Uint32(header[0:4]),
		Seq:     binary.BigEndian.Uint64(header[4:12]),
	}
	payloadLen := binary.BigEndian.Uint32(header[12:16])
	if payloadLen > MaxPayloadBytes {
		return Frame{}, ErrFrameTooLarge
	}
	if payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return Frame{}, fmt.Errorf("p2p: read frame payload: %w", err)
		}
	}
	return f, nil
}
