// internal/protocol/frame.go
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HeaderSize is the fixed response header length:
//
//	ResponseID(1) Status(1) Sequence(1) Length(2, LE)
const HeaderSize = 5

// CommandHeaderSize is the fixed command header length:
//
//	CommandID(1) Sequence(1) Length(2, LE)
const CommandHeaderSize = 4

// MaxCommandPayload is the largest payload the u16 length field can describe.
const MaxCommandPayload = math.MaxUint16

// StatusSuccess is the only status code that means the device accepted the command.
const StatusSuccess uint8 = 0x00

// CommandFrame is one outbound message to a device.
type CommandFrame struct {
	CommandID uint8
	Sequence  uint8
	Payload   []byte
}

// PayloadLength is always derived from the payload, so the header can never disagree with it.
func (f CommandFrame) PayloadLength() uint16 {
	return uint16(len(f.Payload))
}

// ResponseHeader is the decoded 5-byte response header.
type ResponseHeader struct {
	ResponseID    uint8
	Status        uint8
	Sequence      uint8
	PayloadLength uint16
}

// ResponseFrame is a decoded inbound reply.
type ResponseFrame struct {
	ResponseHeader
	Payload []byte
}

// OK reports whether the device returned StatusSuccess.
func (r ResponseFrame) OK() bool { return r.Status == StatusSuccess }

// CheckCommandPayload reports ErrPayloadTooLarge for payloads EncodeCommand
// cannot describe.
func CheckCommandPayload(payload []byte) error {
	if len(payload) > MaxCommandPayload {
		return fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(payload), MaxCommandPayload)
	}
	return nil
}

// EncodeCommand builds the wire form of a command. It never fails; payloads
// longer than MaxCommandPayload get a wrapped length, so callers run
// CheckCommandPayload first.
func EncodeCommand(commandID, sequence uint8, payload []byte) []byte {
	out := make([]byte, CommandHeaderSize+len(payload))
	out[0] = commandID
	out[1] = sequence
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(payload)))
	copy(out[CommandHeaderSize:], payload)
	return out
}

// Encode is EncodeCommand for an already assembled frame.
func (f CommandFrame) Encode() []byte {
	return EncodeCommand(f.CommandID, f.Sequence, f.Payload)
}

// DecodeCommandHeader is the inverse of EncodeCommand for the header fields.
// Used by test fakes.
func DecodeCommandHeader(buf []byte) (CommandFrame, error) {
	if len(buf) < CommandHeaderSize {
		return CommandFrame{}, fmt.Errorf("%w: got %d bytes, want >= %d", ErrHeaderTooShort, len(buf), CommandHeaderSize)
	}
	n := binary.LittleEndian.Uint16(buf[2:4])
	rest := buf[CommandHeaderSize:]
	if int(n) != len(rest) {
		return CommandFrame{}, fmt.Errorf("%w: header says %d, got %d", ErrLengthMismatch, n, len(rest))
	}
	return CommandFrame{CommandID: buf[0], Sequence: buf[1], Payload: rest}, nil
}

// DecodeResponseHeader validates and decodes the response header.
// The declared payload length must equal the bytes remaining after the header.
func DecodeResponseHeader(buf []byte) (ResponseHeader, error) {
	if len(buf) < HeaderSize {
		return ResponseHeader{}, fmt.Errorf("%w: got %d bytes, want >= %d", ErrHeaderTooShort, len(buf), HeaderSize)
	}

	h := ResponseHeader{
		ResponseID:    buf[0],
		Status:        buf[1],
		Sequence:      buf[2],
		PayloadLength: binary.LittleEndian.Uint16(buf[3:5]),
	}

	if remaining := len(buf) - HeaderSize; int(h.PayloadLength) != remaining {
		return h, fmt.Errorf("%w: header says %d, got %d", ErrLengthMismatch, h.PayloadLength, remaining)
	}
	return h, nil
}

// DecodeResponse decodes the header and slices out the payload.
// The payload aliases buf.
func DecodeResponse(buf []byte) (ResponseFrame, error) {
	h, err := DecodeResponseHeader(buf)
	if err != nil {
		return ResponseFrame{}, err
	}
	return ResponseFrame{ResponseHeader: h, Payload: buf[HeaderSize:]}, nil
}

// EncodeResponse builds a response frame. Used by test fakes.
func EncodeResponse(responseID, status, sequence uint8, payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	out[0] = responseID
	out[1] = status
	out[2] = sequence
	binary.LittleEndian.PutUint16(out[3:5], uint16(len(payload)))
	copy(out[HeaderSize:], payload)
	return out
}

// NextSequence advances a per-session counter. uint8 arithmetic wraps 255 -> 0.
func NextSequence(seq uint8) uint8 {
	return seq + 1
}
