package parser

import (
	"fmt"
	"strconv"
)

// MaxAttachments bounds the attachment count a binary packet header may
// announce. Larger counts are rejected before anything is buffered.
const MaxAttachments = 1024

// Decode parses a text frame and, for binary packet types, the attachment
// frames that followed it. The number of attachments must match the count
// announced in the header.
func Decode(frame []byte, attachments ...[]byte) (Packet, error) {
	p, payload, err := decodeHeader(frame)
	if err != nil {
		return Packet{}, err
	}

	if p.Type.IsBinary() {
		if p.Attachments != len(attachments) {
			return Packet{}, decodeError(frame, fmt.Errorf("%w: header announces %d, got %d",
				ErrAttachmentMismatch, p.Attachments, len(attachments)))
		}
	} else if len(attachments) > 0 {
		return Packet{}, decodeError(frame, fmt.Errorf("%w: %s takes no attachments",
			ErrAttachmentMismatch, p.Type))
	}

	data, err := decodePayload(p.Type, payload)
	if err != nil {
		return Packet{}, decodeError(frame, err)
	}
	if p.Type.IsBinary() {
		if data, err = reconstruct(data, attachments); err != nil {
			return Packet{}, decodeError(frame, err)
		}
	}
	p.Data = data
	return p, nil
}

// decodeHeader parses everything before the JSON payload and returns the
// remaining bytes.
func decodeHeader(frame []byte) (Packet, []byte, error) {
	if len(frame) == 0 {
		return Packet{}, nil, decodeError(frame, ErrTruncated)
	}

	c := frame[0]
	if c < '0' || c > '0'+byte(BinaryAck) {
		return Packet{}, nil, decodeError(frame, fmt.Errorf("%w: %q", ErrUnknownType, c))
	}
	p := Packet{Type: Type(c - '0'), Namespace: DefaultNamespace}
	i := 1

	if p.Type.IsBinary() {
		start := i
		for i < len(frame) && frame[i] != '-' {
			if !isDigit(frame[i]) {
				return Packet{}, nil, decodeError(frame, fmt.Errorf("%w: non-numeric attachment count", ErrAttachmentMismatch))
			}
			i++
		}
		if i == len(frame) || i == start {
			return Packet{}, nil, decodeError(frame, fmt.Errorf("%w: missing attachment count", ErrTruncated))
		}
		n, err := strconv.ParseUint(string(frame[start:i]), 10, 31)
		if err != nil {
			return Packet{}, nil, decodeError(frame, fmt.Errorf("%w: %v", ErrAttachmentMismatch, err))
		}
		if n > MaxAttachments {
			return Packet{}, nil, decodeError(frame, fmt.Errorf("%w: %d attachments exceeds limit of %d",
				ErrAttachmentMismatch, n, MaxAttachments))
		}
		p.Attachments = int(n)
		i++
	}

	if i < len(frame) && frame[i] == '/' {
		start := i
		for i < len(frame) && frame[i] != ',' {
			i++
		}
		p.Namespace = string(frame[start:i])
		if i < len(frame) {
			i++
		}
	}

	if i < len(frame) && isDigit(frame[i]) {
		start := i
		for i < len(frame) && isDigit(frame[i]) {
			i++
		}
		id, err := strconv.ParseUint(string(frame[start:i]), 10, 32)
		if err != nil {
			return Packet{}, nil, decodeError(frame, fmt.Errorf("%w: %v", ErrInvalidID, err))
		}
		p.ID = uint32(id)
		p.HasID = true
	}

	switch p.Type {
	case Connect, Disconnect, Error:
		if p.HasID {
			return Packet{}, nil, decodeError(frame, fmt.Errorf("%w: %s packets carry no id", ErrInvalidID, p.Type))
		}
	case Ack, BinaryAck:
		if !p.HasID {
			return Packet{}, nil, decodeError(frame, fmt.Errorf("%w: %s requires an id", ErrInvalidID, p.Type))
		}
	}

	return p, frame[i:], nil
}

func decodePayload(t Type, payload []byte) ([]Value, error) {
	if len(payload) == 0 {
		switch t {
		case Connect, Disconnect, Error:
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s requires a payload", ErrInvalidPayload, t)
	}
	if t == Disconnect {
		return nil, fmt.Errorf("%w: DISCONNECT carries no payload", ErrInvalidPayload)
	}

	v, err := parseJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch t {
	case Connect:
		if v.Kind() != KindObject {
			return nil, fmt.Errorf("%w: CONNECT payload must be an object", ErrInvalidPayload)
		}
		return []Value{v}, nil
	case Error:
		if v.Kind() != KindObject && v.Kind() != KindString {
			return nil, fmt.Errorf("%w: ERROR payload must be an object or string", ErrInvalidPayload)
		}
		return []Value{v}, nil
	}

	items, ok := v.AsArray()
	if !ok {
		return nil, fmt.Errorf("%w: %s payload must be an array", ErrInvalidPayload, t)
	}
	if t.IsEvent() {
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: event without a name", ErrInvalidPayload)
		}
		if _, ok := items[0].AsString(); !ok {
			return nil, fmt.Errorf("%w: event name must be a string", ErrInvalidPayload)
		}
	}
	return items, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
