// Package sio encodes and decodes the Engine.IO v4 and Socket.IO v5 text
// packets exchanged over the polling and websocket transports.
//
// A Socket.IO packet travels inside an Engine.IO message packet:
//
//	4<type>[<attachments>-][/nsp,][ackId][json]
package sio

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidPacket is returned for frames that do not parse.
var ErrInvalidPacket = errors.New("invalid packet")

// EngineType is an Engine.IO packet type.
type EngineType byte

const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

// PacketType is a Socket.IO packet type.
type PacketType byte

const (
	Connect      PacketType = '0'
	Disconnect   PacketType = '1'
	Event        PacketType = '2'
	Ack          PacketType = '3'
	ConnectError PacketType = '4'
	BinaryEvent  PacketType = '5'
	BinaryAck    PacketType = '6'
)

func (t PacketType) String() string {
	switch t {
	case Connect:
		return "CONNECT"
	case Disconnect:
		return "DISCONNECT"
	case Event:
		return "EVENT"
	case Ack:
		return "ACK"
	case ConnectError:
		return "CONNECT_ERROR"
	case BinaryEvent:
		return "BINARY_EVENT"
	case BinaryAck:
		return "BINARY_ACK"
	}
	return "UNKNOWN"
}

// RootNamespace is the namespace used when a packet names none.
const RootNamespace = "/"

// Open is the payload of the Engine.IO OPEN packet.
type Open struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

// EncodeOpen returns the Engine.IO OPEN frame for o.
func EncodeOpen(o Open) (string, error) {
	if o.Upgrades == nil {
		o.Upgrades = []string{}
	}
	b, err := json.Marshal(o)
	if err != nil {
		return "", errors.Wrap(err, "encoding open packet")
	}
	return string(EngineOpen) + string(b), nil
}

// DecodeEngine splits an Engine.IO text frame into its type and payload.
func DecodeEngine(frame string) (EngineType, string, error) {
	if frame == "" {
		return 0, "", errors.Wrap(ErrInvalidPacket, "empty frame")
	}
	t := EngineType(frame[0])
	if t < EngineOpen || t > EngineNoop {
		return 0, "", errors.Wrapf(ErrInvalidPacket, "unknown engine packet type %q", frame[0])
	}
	return t, frame[1:], nil
}

// EncodeEngine joins an Engine.IO type and payload into a text frame.
func EncodeEngine(t EngineType, payload string) string {
	return string(t) + payload
}

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type        PacketType
	Namespace   string
	ID          *int64
	Attachments int
	Data        json.RawMessage
}

// Frame returns p encoded as an Engine.IO message frame.
func (p Packet) Frame() string {
	return string(EngineMessage) + p.Encode()
}

// Encode returns the Socket.IO text encoding of p.
func (p Packet) Encode() string {
	var sb strings.Builder
	sb.WriteByte(byte(p.Type))
	if p.Type == BinaryEvent || p.Type == BinaryAck {
		sb.WriteString(strconv.Itoa(p.Attachments))
		sb.WriteByte('-')
	}
	if p.Namespace != "" && p.Namespace != RootNamespace {
		sb.WriteString(p.Namespace)
		sb.WriteByte(',')
	}
	if p.ID != nil {
		sb.WriteString(strconv.FormatInt(*p.ID, 10))
	}
	if len(p.Data) > 0 {
		sb.Write(p.Data)
	}
	return sb.String()
}

// Decode parses a Socket.IO packet, without the Engine.IO prefix.
func Decode(s string) (Packet, error) {
	if s == "" {
		return Packet{}, errors.Wrap(ErrInvalidPacket, "empty packet")
	}
	p := Packet{Type: PacketType(s[0]), Namespace: RootNamespace}
	if p.Type < Connect || p.Type > BinaryAck {
		return Packet{}, errors.Wrapf(ErrInvalidPacket, "unknown packet type %q", s[0])
	}
	rest := s[1:]

	if p.Type == BinaryEvent || p.Type == BinaryAck {
		i := strings.IndexByte(rest, '-')
		if i <= 0 || !isDigits(rest[:i]) {
			return Packet{}, errors.Wrap(ErrInvalidPacket, "missing attachment count")
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return Packet{}, errors.Wrapf(ErrInvalidPacket, "attachment count: %v", err)
		}
		p.Attachments = n
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "/") {
		i := strings.IndexByte(rest, ',')
		if i < 0 {
			p.Namespace = rest
			rest = ""
		} else {
			p.Namespace = rest[:i]
			rest = rest[i+1:]
		}
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 {
		id, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil {
			return Packet{}, errors.Wrapf(ErrInvalidPacket, "ack id: %v", err)
		}
		p.ID = &id
		rest = rest[i:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return Packet{}, errors.Wrap(ErrInvalidPacket, "payload is not valid JSON")
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// EventArgs extracts the event name and arguments of an EVENT packet.
func (p Packet) EventArgs() (string, []any, error) {
	if p.Type != Event && p.Type != BinaryEvent {
		return "", nil, errors.Wrapf(ErrInvalidPacket, "%s is not an event", p.Type)
	}
	var arr []any
	if err := json.Unmarshal(p.Data, &arr); err != nil {
		return "", nil, errors.Wrapf(ErrInvalidPacket, "event payload: %v", err)
	}
	if len(arr) == 0 {
		return "", nil, errors.Wrap(ErrInvalidPacket, "event without name")
	}
	name, ok := arr[0].(string)
	if !ok || name == "" {
		return "", nil, errors.Wrap(ErrInvalidPacket, "event name is not a string")
	}
	return name, arr[1:], nil
}

// NewEvent builds an EVENT packet for event with args.
func NewEvent(namespace, event string, args []any) (Packet, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, event)
	payload = append(payload, args...)
	data, err := json.Marshal(payload)
	if err != nil {
		return Packet{}, errors.Wrapf(err, "encoding event %q", event)
	}
	return Packet{Type: Event, Namespace: namespace, Data: data}, nil
}

// NewAck builds an ACK packet answering id.
func NewAck(namespace string, id int64, args []any) (Packet, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return Packet{}, errors.Wrap(err, "encoding ack")
	}
	return Packet{Type: Ack, Namespace: namespace, ID: &id, Data: data}, nil
}

// NewConnect builds the CONNECT packet accepting a namespace.
func NewConnect(namespace, sid string) Packet {
	data, _ := json.Marshal(map[string]string{"sid": sid})
	return Packet{Type: Connect, Namespace: namespace, Data: data}
}

// NewConnectError builds a CONNECT_ERROR packet. data is omitted when nil.
func NewConnectError(namespace, message string, data any) (Packet, error) {
	body := map[string]any{"message": message}
	if data != nil {
		body["data"] = data
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Packet{}, errors.Wrap(err, "encoding connect error")
	}
	return Packet{Type: ConnectError, Namespace: namespace, Data: raw}, nil
}

// NewDisconnect builds a DISCONNECT packet for namespace.
func NewDisconnect(namespace string) Packet {
	return Packet{Type: Disconnect, Namespace: namespace}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
