// Package xferfile implements a small application-layer framing for
// sending files over a rudp.Socket: a Begin message carrying a
// filename, repeated Data messages carrying file content, and an End
// message, in the spirit of the original vsftp.h/vs_send.c/vs_recv.c
// sample tools built on top of the RUDP API.
package xferfile

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/go-rudp/rudp/internal/wire"
)

// MessageType identifies the kind of xferfile frame.
type MessageType uint32

const (
	MessageBegin MessageType = 1
	MessageData  MessageType = 2
	MessageEnd   MessageType = 3
)

// typeSize is the size, in bytes, of the leading type tag.
const typeSize = 4

// MaxFilenameLen caps a Begin message's filename, mirroring
// VS_FILENAMELENGTH but unbounded by a fixed struct field.
const MaxFilenameLen = 255

// MaxChunkLen caps a Data message's payload so that a whole frame,
// including its 4-byte type tag, never exceeds wire.MaxPayload. This
// widens the original's 128-byte VS_MAXDATA to use the full RUDP
// payload budget.
const MaxChunkLen = wire.MaxPayload - typeSize

// ErrFrame is wrapped by every rejection Decode returns.
var ErrFrame = errors.New("xferfile: malformed frame")

// Frame is the decoded form of one xferfile message.
type Frame struct {
	Type     MessageType
	Filename string // set only for MessageBegin
	Chunk    []byte // set only for MessageData
}

// EncodeBegin builds a Begin frame announcing filename. It errors if
// filename exceeds MaxFilenameLen.
func EncodeBegin(filename string) ([]byte, error) {
	if len(filename) > MaxFilenameLen {
		return nil, errors.Errorf("xferfile: filename %q exceeds %d bytes", filename, MaxFilenameLen)
	}
	buf := make([]byte, typeSize+len(filename))
	binary.BigEndian.PutUint32(buf[:typeSize], uint32(MessageBegin))
	copy(buf[typeSize:], filename)
	return buf, nil
}

// EncodeData builds a Data frame carrying chunk. It errors if chunk
// exceeds MaxChunkLen.
func EncodeData(chunk []byte) ([]byte, error) {
	if len(chunk) > MaxChunkLen {
		return nil, errors.Errorf("xferfile: chunk of %d bytes exceeds %d", len(chunk), MaxChunkLen)
	}
	buf := make([]byte, typeSize+len(chunk))
	binary.BigEndian.PutUint32(buf[:typeSize], uint32(MessageData))
	copy(buf[typeSize:], chunk)
	return buf, nil
}

// EncodeEnd builds an End frame.
func EncodeEnd() []byte {
	buf := make([]byte, typeSize)
	binary.BigEndian.PutUint32(buf, uint32(MessageEnd))
	return buf
}

// Decode parses b into a Frame. It never panics on hostile input.
func Decode(b []byte) (Frame, error) {
	if len(b) < typeSize {
		return Frame{}, errors.Wrap(ErrFrame, "short frame")
	}
	typ := MessageType(binary.BigEndian.Uint32(b[:typeSize]))
	body := b[typeSize:]
	switch typ {
	case MessageBegin:
		return Frame{Type: typ, Filename: string(body)}, nil
	case MessageData:
		chunk := make([]byte, len(body))
		copy(chunk, body)
		return Frame{Type: typ, Chunk: chunk}, nil
	case MessageEnd:
		if len(body) != 0 {
			return Frame{}, errors.Wrap(ErrFrame, "END frame carries a body")
		}
		return Frame{Type: typ}, nil
	default:
		return Frame{}, errors.Wrapf(ErrFrame, "unknown message type %d", typ)
	}
}
