// Package wire implements the RUDP on-wire packet format: pure
// encode/decode functions with no state and no I/O.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// PacketType identifies the kind of RUDP segment carried in a packet.
type PacketType uint16

const (
	DATA PacketType = 1
	ACK  PacketType = 2
	SYN  PacketType = 4
	FIN  PacketType = 5
)

func (t PacketType) String() string {
	switch t {
	case DATA:
		return "DATA"
	case ACK:
		return "ACK"
	case SYN:
		return "SYN"
	case FIN:
		return "FIN"
	default:
		return "BAD"
	}
}

const (
	// Version is the only protocol version this codec understands.
	Version uint16 = 1

	// HeaderSize is the fixed size, in bytes, of the RUDP header.
	HeaderSize = 8

	// MaxPayload is the largest payload a single RUDP packet may carry.
	MaxPayload = 1000
)

// Packet is the decoded form of an RUDP segment.
type Packet struct {
	Type   PacketType
	Seqno  uint32
	Payload []byte
}

// ErrDecode is wrapped by every rejection Decode returns.
var ErrDecode = errors.New("rudp: malformed packet")

// Encode serializes p into network byte order. The returned slice is
// freshly allocated and safe for the caller to retain.
func Encode(p Packet) []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	binary.BigEndian.PutUint16(buf[0:2], Version)
	binary.BigEndian.PutUint16(buf[2:4], uint16(p.Type))
	binary.BigEndian.PutUint32(buf[4:8], p.Seqno)
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// Decode parses b into a Packet. It rejects a short header, an
// unsupported version, an unknown type, and an oversized payload -
// it never panics on hostile input.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, errors.Wrap(ErrDecode, "short header")
	}
	version := binary.BigEndian.Uint16(b[0:2])
	if version != Version {
		return Packet{}, errors.Wrapf(ErrDecode, "unsupported version %d", version)
	}
	typ := PacketType(binary.BigEndian.Uint16(b[2:4]))
	switch typ {
	case DATA, ACK, SYN, FIN:
	default:
		return Packet{}, errors.Wrapf(ErrDecode, "unknown type %d", typ)
	}
	seqno := binary.BigEndian.Uint32(b[4:8])
	payload := b[HeaderSize:]
	if len(payload) > MaxPayload {
		return Packet{}, errors.Wrapf(ErrDecode, "payload too large: %d bytes", len(payload))
	}
	out := Packet{Type: typ, Seqno: seqno}
	if len(payload) > 0 {
		out.Payload = make([]byte, len(payload))
		copy(out.Payload, payload)
	}
	return out, nil
}
