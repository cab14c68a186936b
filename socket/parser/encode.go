package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Encode returns the wire frames for p: the text frame first, followed by
// one binary frame per attachment in placeholder order.
func Encode(p Packet) ([][]byte, error) {
	if err := validate(p); err != nil {
		return nil, &EncodeError{Packet: p, Err: err}
	}

	var buf bytes.Buffer
	buf.WriteByte('0' + byte(p.Type))

	var buffers [][]byte
	if p.Type.IsBinary() {
		buffers = make([][]byte, 0, CountBinary(p.Data))
	}

	var payload bytes.Buffer
	switch {
	case p.Type.IsEvent() || p.Type.IsAck():
		if err := Array(p.Data...).writeJSON(&payload, bufferSink(p.Type, &buffers)); err != nil {
			return nil, &EncodeError{Packet: p, Err: err}
		}
	case len(p.Data) == 1:
		if err := p.Data[0].writeJSON(&payload, nil); err != nil {
			return nil, &EncodeError{Packet: p, Err: err}
		}
	}

	if p.Type.IsBinary() {
		buf.WriteString(strconv.Itoa(len(buffers)))
		buf.WriteByte('-')
	}
	if nsp := p.nsp(); nsp != DefaultNamespace {
		buf.WriteString(nsp)
		buf.WriteByte(',')
	}
	if p.HasID {
		buf.WriteString(strconv.FormatUint(uint64(p.ID), 10))
	}
	buf.Write(payload.Bytes())

	frames := make([][]byte, 0, 1+len(buffers))
	frames = append(frames, buf.Bytes())
	frames = append(frames, buffers...)
	return frames, nil
}

func bufferSink(t Type, buffers *[][]byte) *[][]byte {
	if t.IsBinary() {
		return buffers
	}
	return nil
}

func validate(p Packet) error {
	if !p.Type.Valid() {
		return ErrUnknownType
	}
	nsp := p.nsp()
	if !strings.HasPrefix(nsp, "/") || strings.ContainsRune(nsp, ',') {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, nsp)
	}
	if !p.Type.IsBinary() && CountBinary(p.Data) > 0 {
		return ErrBinaryInTextPacket
	}

	switch p.Type {
	case Connect, Error:
		if p.HasID {
			return fmt.Errorf("%w: %s packets carry no id", ErrInvalidID, p.Type)
		}
		if len(p.Data) > 1 {
			return fmt.Errorf("%w: %s takes at most one value", ErrInvalidPayload, p.Type)
		}
		if p.Type == Connect && len(p.Data) == 1 && p.Data[0].Kind() != KindObject {
			return fmt.Errorf("%w: CONNECT payload must be an object", ErrInvalidPayload)
		}
	case Disconnect:
		if p.HasID || len(p.Data) > 0 {
			return fmt.Errorf("%w: DISCONNECT carries nothing", ErrInvalidPayload)
		}
	case Event, BinaryEvent:
		if _, ok := p.EventName(); !ok {
			return fmt.Errorf("%w: event name must be a string", ErrInvalidPayload)
		}
	case Ack, BinaryAck:
		if !p.HasID {
			return fmt.Errorf("%w: %s requires an id", ErrInvalidID, p.Type)
		}
	}
	return nil
}
