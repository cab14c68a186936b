package parser

import (
	"errors"
	"fmt"
)

// Decoder reassembles binary packets from a stream of frames. A BINARY_EVENT
// or BINARY_ACK header is held until the announced number of binary frames
// has arrived; every other frame decodes immediately.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	header  []byte
	want    int
	buffers [][]byte
}

// Add feeds one frame. ok is true when a complete packet is returned.
//
// A text frame arriving while attachments are outstanding drops the partial
// packet and is then decoded normally: err reports the dropped packet and
// ok reports whether the new frame produced one.
func (d *Decoder) Add(frame []byte, binary bool) (p Packet, ok bool, err error) {
	if binary {
		if d.header == nil {
			return Packet{}, false, decodeError(nil, ErrUnexpectedAttachment)
		}
		d.buffers = append(d.buffers, frame)
		if len(d.buffers) < d.want {
			return Packet{}, false, nil
		}
		header, buffers := d.header, d.buffers
		d.Reset()
		p, err = Decode(header, buffers...)
		return p, err == nil, err
	}

	if d.header != nil {
		header, missing := d.header, d.want-len(d.buffers)
		d.Reset()
		dropped := decodeError(header, fmt.Errorf("%w: text frame while waiting for %d attachments",
			ErrAttachmentMismatch, missing))
		p, ok, err = d.addText(frame)
		return p, ok, errors.Join(dropped, err)
	}
	return d.addText(frame)
}

func (d *Decoder) addText(frame []byte) (p Packet, ok bool, err error) {
	h, _, err := decodeHeader(frame)
	if err != nil {
		return Packet{}, false, err
	}
	if h.Type.IsBinary() && h.Attachments > 0 {
		d.header = frame
		d.want = h.Attachments
		d.buffers = nil
		return Packet{}, false, nil
	}

	p, err = Decode(frame)
	return p, err == nil, err
}

// Pending reports whether a binary header is waiting for attachments.
func (d *Decoder) Pending() bool {
	return d.header != nil
}

// Reset drops any partially assembled packet.
func (d *Decoder) Reset() {
	d.header = nil
	d.want = 0
	d.buffers = nil
}
