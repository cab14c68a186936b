// Package parser encodes and decodes socket.io protocol packets.
//
// The codec is pure: Encode and Decode hold no state and perform no I/O.
// Decoder is the only stateful type and exists to buffer a binary packet
// header until all of its attachment frames have arrived.
package parser

import "fmt"

// Protocol is the socket.io protocol revision implemented by this package.
const Protocol = 5

// DefaultNamespace is used when a packet names no namespace.
const DefaultNamespace = "/"

type Type byte

const (
	Connect Type = iota
	Disconnect
	Event
	Ack
	Error
	BinaryEvent
	BinaryAck
)

var typeNames = [...]string{
	Connect:     "CONNECT",
	Disconnect:  "DISCONNECT",
	Event:       "EVENT",
	Ack:         "ACK",
	Error:       "ERROR",
	BinaryEvent: "BINARY_EVENT",
	BinaryAck:   "BINARY_ACK",
}

func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", byte(t))
}

func (t Type) Valid() bool {
	return t <= BinaryAck
}

// IsBinary reports whether packets of this type carry attachments.
func (t Type) IsBinary() bool {
	return t == BinaryEvent || t == BinaryAck
}

// IsEvent reports whether t is EVENT or BINARY_EVENT.
func (t Type) IsEvent() bool {
	return t == Event || t == BinaryEvent
}

// IsAck reports whether t is ACK or BINARY_ACK.
func (t Type) IsAck() bool {
	return t == Ack || t == BinaryAck
}

// Packet is one protocol message.
//
// ID is meaningful only when HasID is set. Attachments is the number of
// binary frames that follow a BINARY_EVENT or BINARY_ACK header.
type Packet struct {
	Type        Type
	Namespace   string
	ID          uint32
	HasID       bool
	Data        []Value
	Attachments int
}

// NewEvent builds an EVENT packet, upgrading it to BINARY_EVENT when any
// argument holds binary data.
func NewEvent(nsp, name string, args []Value) Packet {
	data := make([]Value, 0, len(args)+1)
	data = append(data, String(name))
	data = append(data, args...)

	p := Packet{Type: Event, Namespace: nsp, Data: data}
	if n := CountBinary(data); n > 0 {
		p.Type = BinaryEvent
		p.Attachments = n
	}
	return p
}

// NewAck builds the reply to the event with the given id.
func NewAck(nsp string, id uint32, args []Value) Packet {
	p := Packet{Type: Ack, Namespace: nsp, ID: id, HasID: true, Data: args}
	if p.Data == nil {
		p.Data = []Value{}
	}
	if n := CountBinary(p.Data); n > 0 {
		p.Type = BinaryAck
		p.Attachments = n
	}
	return p
}

// EventName returns the name of an EVENT or BINARY_EVENT packet.
func (p Packet) EventName() (string, bool) {
	if !p.Type.IsEvent() || len(p.Data) == 0 {
		return "", false
	}
	return p.Data[0].AsString()
}

// Args returns the event arguments that follow the event name.
func (p Packet) Args() []Value {
	if p.Type.IsEvent() {
		if len(p.Data) == 0 {
			return nil
		}
		return p.Data[1:]
	}
	return p.Data
}

func (p Packet) nsp() string {
	if p.Namespace == "" {
		return DefaultNamespace
	}
	return p.Namespace
}

func (p Packet) String() string {
	if p.HasID {
		return fmt.Sprintf("%s nsp=%s id=%d args=%d", p.Type, p.nsp(), p.ID, len(p.Data))
	}
	return fmt.Sprintf("%s nsp=%s args=%d", p.Type, p.nsp(), len(p.Data))
}
