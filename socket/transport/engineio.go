package transport

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// EngineIOVersion is the engine.io protocol revision spoken by the transports.
const EngineIOVersion = "4"

const DefaultPath = "/socket.io/"

const (
	packetOpen    byte = '0'
	packetClose   byte = '1'
	packetPing    byte = '2'
	packetPong    byte = '3'
	packetMessage byte = '4'
	packetUpgrade byte = '5'
	packetNoop    byte = '6'
)

const recordSeparator = 0x1e

// Handshake is the payload of the engine.io OPEN packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// HeartbeatTimeout is how long the connection may stay silent before the
// server is considered gone.
func (h Handshake) HeartbeatTimeout() time.Duration {
	return time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
}

func parseHandshake(packet []byte) (Handshake, error) {
	if len(packet) == 0 || packet[0] != packetOpen {
		return Handshake{}, fmt.Errorf("%w: expected open packet, got %q", ErrBadHandshake, truncate(packet))
	}
	var h Handshake
	if err := json.Unmarshal(packet[1:], &h); err != nil {
		return Handshake{}, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	if h.SID == "" {
		return Handshake{}, fmt.Errorf("%w: missing sid", ErrBadHandshake)
	}
	return h, nil
}

// endpoint builds the engine.io URL for uri. The uri path is ignored; it
// names a namespace, not an HTTP route.
func endpoint(uri, path, transportName string, query url.Values, websocket bool) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "http"
		if websocket {
			u.Scheme = "ws"
		}
	case "https", "wss":
		u.Scheme = "https"
		if websocket {
			u.Scheme = "wss"
		}
	default:
		return "", fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
	}

	if path == "" {
		path = DefaultPath
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = path

	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("EIO", EngineIOVersion)
	q.Set("transport", transportName)
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

type eioPacket struct {
	typ    byte
	data   []byte
	binary bool
}

// encodePayload joins packets for an HTTP long-polling body.
func encodePayload(frames []Frame) []byte {
	var buf bytes.Buffer
	for i, f := range frames {
		if i > 0 {
			buf.WriteByte(recordSeparator)
		}
		if f.Binary {
			buf.WriteByte('b')
			buf.WriteString(base64.StdEncoding.EncodeToString(f.Data))
			continue
		}
		buf.WriteByte(packetMessage)
		buf.Write(f.Data)
	}
	return buf.Bytes()
}

func encodeControl(typ byte) []byte {
	return []byte{typ}
}

// decodePayload splits an HTTP long-polling body into engine.io packets.
func decodePayload(body []byte) ([]eioPacket, error) {
	if len(body) == 0 {
		return nil, nil
	}
	records := bytes.Split(body, []byte{recordSeparator})
	out := make([]eioPacket, 0, len(records))
	for _, rec := range records {
		if len(rec) == 0 {
			return nil, fmt.Errorf("transport: empty packet in payload")
		}
		if rec[0] == 'b' {
			data, err := base64.StdEncoding.DecodeString(string(rec[1:]))
			if err != nil {
				return nil, fmt.Errorf("transport: bad base64 packet: %w", err)
			}
			out = append(out, eioPacket{typ: packetMessage, data: data, binary: true})
			continue
		}
		out = append(out, eioPacket{typ: rec[0], data: rec[1:]})
	}
	return out, nil
}

func truncate(b []byte) []byte {
	if len(b) > 64 {
		return b[:64]
	}
	return b
}
