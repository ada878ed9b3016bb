package frame

import (
	"encoding/binary"
	"fmt"
)

//  0      1         3             7                  size+7 size+8
//  +------+---------+-------------+  +------------+  +-----------+
//  | type | channel |    size     |  |  payload   |  | frame-end |
//  +------+---------+-------------+  +------------+  +-----------+
//   octet   short       long          size octets       octet

const (
	HeaderSize      = 7
	FrameEnd   byte = 0xCE
	// Overhead is the wire length of a frame with an empty payload.
	Overhead = HeaderSize + 1
)

// Type is the frame type octet.
type Type uint8

const (
	TypeMethod    Type = 1
	TypeHeader    Type = 2
	TypeBody      Type = 3
	TypeHeartbeat Type = 8
)

func (t Type) String() string {
	switch t {
	case TypeMethod:
		return "method"
	case TypeHeader:
		return "header"
	case TypeBody:
		return "body"
	case TypeHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// RawHeader is the fixed 7-byte frame header.
type RawHeader struct {
	Type    Type
	Channel uint16
	Size    uint32
}

// WireLen is the full wire length of the frame this header introduces.
func (h RawHeader) WireLen() int {
	return Overhead + int(h.Size)
}

func (h RawHeader) String() string {
	return fmt.Sprintf("Type:%s Channel:%d Size:%d", h.Type, h.Channel, h.Size)
}

func EncodeHeader(h RawHeader) []byte {
	return AppendHeader(make([]byte, 0, HeaderSize), h)
}

func AppendHeader(dst []byte, h RawHeader) []byte {
	dst = append(dst, byte(h.Type))
	dst = binary.BigEndian.AppendUint16(dst, h.Channel)
	return binary.BigEndian.AppendUint32(dst, h.Size)
}

// DecodeHeader reads the first HeaderSize bytes of b. Trailing bytes are ignored.
func DecodeHeader(b []byte) (RawHeader, error) {
	if len(b) < HeaderSize {
		return RawHeader{}, fmt.Errorf("%w: have %d of %d bytes", ErrTruncatedHeader, len(b), HeaderSize)
	}
	return RawHeader{
		Type:    Type(b[0]),
		Channel: binary.BigEndian.Uint16(b[1:3]),
		Size:    binary.BigEndian.Uint32(b[3:7]),
	}, nil
}
