package parser

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownType          = errors.New("unknown packet type")
	ErrTruncated            = errors.New("truncated packet")
	ErrInvalidNamespace     = errors.New("invalid namespace")
	ErrInvalidID            = errors.New("invalid packet id")
	ErrInvalidPayload       = errors.New("invalid payload")
	ErrAttachmentMismatch   = errors.New("attachment count mismatch")
	ErrUnexpectedAttachment = errors.New("unexpected binary attachment")
	ErrBinaryInTextPacket   = errors.New("binary data in non-binary packet")
)

const maxQuotedFrame = 64

// DecodeError reports a frame that could not be decoded. The frame is
// dropped; the connection that delivered it stays usable.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	frame := e.Frame
	if len(frame) > maxQuotedFrame {
		frame = frame[:maxQuotedFrame]
	}
	return fmt.Sprintf("parser: decode %q: %v", frame, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(frame []byte, err error) *DecodeError {
	return &DecodeError{Frame: frame, Err: err}
}

// EncodeError reports a packet that cannot be represented on the wire.
type EncodeError struct {
	Packet Packet
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("parser: encode %s: %v", e.Packet, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
