package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Message type constants for the wire format. Each message is a 5-byte
// header (1 byte type + 4 byte big-endian payload length) followed by
// a CBOR payload.
const (
	// TypeHello opens every connection in both directions.
	TypeHello byte = 0x01
	// TypeHeartbeat keeps idle connections alive.
	TypeHeartbeat byte = 0x02
	// TypeError carries a terminal protocol error description before
	// the sender closes the connection.
	TypeError byte = 0x03

	// TypeSubscribe is a session request to the state authority.
	TypeSubscribe byte = 0x10
	// TypeSnapshot is a full world copy at a version.
	TypeSnapshot byte = 0x11
	// TypeDelta is one committed transaction's broadcast record.
	TypeDelta byte = 0x12

	// TypePropose is a transaction proposal to the state authority.
	TypePropose byte = 0x20
	// TypeTransactionResult answers a proposal.
	TypeTransactionResult byte = 0x21

	// TypeIntent is a raw action request to the logic engine.
	TypeIntent byte = 0x30
	// TypeIntentResult answers an intent.
	TypeIntentResult byte = 0x31

	// TypeView is a rendered terminal view pushed by the backend
	// aggregator to a front-end session.
	TypeView byte = 0x40
)

// headerLength is the fixed size of a frame header: 1 byte type +
// 4 bytes payload length.
const headerLength = 5

// maxPayloadLength bounds a single frame. A full snapshot of a large
// level fits comfortably; anything bigger is a framing error, not a
// legitimate message.
const maxPayloadLength = 16 * 1024 * 1024

// Frame is a single protocol frame: a type byte and its raw payload.
type Frame struct {
	Type    byte
	Payload []byte
}

// WriteFrame writes a framed message to w. The frame format is:
// [1 byte type] [4 bytes payload length, big-endian uint32] [payload].
func WriteFrame(w io.Writer, frame Frame) error {
	if len(frame.Payload) > maxPayloadLength {
		return fmt.Errorf("payload length %d exceeds maximum %d", len(frame.Payload), maxPayloadLength)
	}
	var header [headerLength]byte
	header[0] = frame.Type
	binary.BigEndian.PutUint32(header[1:5], uint32(len(frame.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(frame.Payload) > 0 {
		if _, err := w.Write(frame.Payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads a framed message from r. Returns an error if the
// stream is malformed or the payload exceeds maxPayloadLength.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}
	frameType := header[0]
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > maxPayloadLength {
		return Frame{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, maxPayloadLength)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return Frame{Type: frameType, Payload: payload}, nil
}
