package frame

import (
	"encoding/binary"
)

// Frame is one complete wire frame. The implementations are closed:
// *MethodFrame, *HeaderFrame, *BodyFrame and *HeartbeatFrame, so a type
// switch over those four is exhaustive.
//
// Payload returns the frame's own bytes; callers must not modify them.
type Frame interface {
	Type() Type
	Channel() uint16
	Payload() []byte
	sealed()
}

type base struct {
	channel uint16
	payload []byte
}

func (b base) Channel() uint16 { return b.channel }
func (b base) Payload() []byte { return b.payload }
func (base) sealed()           {}

// Limits constrains frame decode memory use. Zero fields are unlimited.
type Limits struct {
	MaxPayloadBytes uint32
}

// DefaultFrameMax is the frame_max most brokers advertise before tuning.
const DefaultFrameMax uint32 = 131072

func DefaultLimits() Limits {
	return LimitsForFrameMax(DefaultFrameMax)
}

// LimitsForFrameMax converts a negotiated frame_max, which counts the
// header and frame-end octets, into payload limits. Zero means unlimited.
func LimitsForFrameMax(frameMax uint32) Limits {
	if frameMax == 0 {
		return Limits{}
	}
	if frameMax <= Overhead {
		return Limits{MaxPayloadBytes: 1}
	}
	return Limits{MaxPayloadBytes: frameMax - Overhead}
}

func (l Limits) check(size uint32) error {
	if l.MaxPayloadBytes != 0 && size > l.MaxPayloadBytes {
		return &FrameTooLargeError{Size: size, Max: l.MaxPayloadBytes}
	}
	return nil
}

// Wire returns the serialized frame: header, payload, frame-end.
func Wire(f Frame) []byte {
	return AppendWire(make([]byte, 0, Overhead+len(f.Payload())), f)
}

func AppendWire(dst []byte, f Frame) []byte {
	payload := f.Payload()
	dst = AppendHeader(dst, RawHeader{Type: f.Type(), Channel: f.Channel(), Size: uint32(len(payload))})
	dst = append(dst, payload...)
	return append(dst, FrameEnd)
}

// MethodFrame carries one class/method invocation. Argument decoding
// belongs to the method codecs, so Args stays opaque here.
type MethodFrame struct {
	base
	ClassID  uint16
	MethodID uint16
}

const methodIDsLen = 4

func NewMethodFrame(channel, classID, methodID uint16, args []byte) *MethodFrame {
	payload := make([]byte, methodIDsLen, methodIDsLen+len(args))
	binary.BigEndian.PutUint16(payload[0:2], classID)
	binary.BigEndian.PutUint16(payload[2:4], methodID)
	payload = append(payload, args...)
	return &MethodFrame{base: base{channel: channel, payload: payload}, ClassID: classID, MethodID: methodID}
}

// DecodeMethodFrame is the Constructor for TypeMethod.
func DecodeMethodFrame(channel uint16, payload []byte) (Frame, error) {
	if len(payload) < methodIDsLen {
		return nil, ErrShortMethodPayload
	}
	return &MethodFrame{
		base:     base{channel: channel, payload: payload},
		ClassID:  binary.BigEndian.Uint16(payload[0:2]),
		MethodID: binary.BigEndian.Uint16(payload[2:4]),
	}, nil
}

func (*MethodFrame) Type() Type { return TypeMethod }

func (f *MethodFrame) Args() []byte { return f.payload[methodIDsLen:] }

// ContentHeader is the fixed part of a content header payload. Properties
// holds the encoded property list selected by PropertyFlags.
type ContentHeader struct {
	ClassID       uint16
	Weight        uint16
	BodySize      uint64
	PropertyFlags uint16
	Properties    []byte
}

const contentHeaderLen = 2 + 2 + 8 + 2

type HeaderFrame struct {
	base
	ContentHeader
}

func NewHeaderFrame(channel uint16, h ContentHeader) *HeaderFrame {
	payload := make([]byte, contentHeaderLen, contentHeaderLen+len(h.Properties))
	binary.BigEndian.PutUint16(payload[0:2], h.ClassID)
	binary.BigEndian.PutUint16(payload[2:4], h.Weight)
	binary.BigEndian.PutUint64(payload[4:12], h.BodySize)
	binary.BigEndian.PutUint16(payload[12:14], h.PropertyFlags)
	payload = append(payload, h.Properties...)
	h.Properties = payload[contentHeaderLen:]
	return &HeaderFrame{base: base{channel: channel, payload: payload}, ContentHeader: h}
}

// DecodeHeaderFrame is the Constructor for TypeHeader.
func DecodeHeaderFrame(channel uint16, payload []byte) (Frame, error) {
	if len(payload) < contentHeaderLen {
		return nil, ErrShortContentHeader
	}
	return &HeaderFrame{
		base: base{channel: channel, payload: payload},
		ContentHeader: ContentHeader{
			ClassID:       binary.BigEndian.Uint16(payload[0:2]),
			Weight:        binary.BigEndian.Uint16(payload[2:4]),
			BodySize:      binary.BigEndian.Uint64(payload[4:12]),
			PropertyFlags: binary.BigEndian.Uint16(payload[12:14]),
			Properties:    payload[contentHeaderLen:],
		},
	}, nil
}

func (*HeaderFrame) Type() Type { return TypeHeader }

type BodyFrame struct {
	base
}

func NewBodyFrame(channel uint16, body []byte) *BodyFrame {
	return &BodyFrame{base: base{channel: channel, payload: append([]byte(nil), body...)}}
}

// DecodeBodyFrame is the Constructor for TypeBody.
func DecodeBodyFrame(channel uint16, payload []byte) (Frame, error) {
	return &BodyFrame{base: base{channel: channel, payload: payload}}, nil
}

func (*BodyFrame) Type() Type { return TypeBody }

func (f *BodyFrame) Body() []byte { return f.payload }

type HeartbeatFrame struct {
	base
}

// NewHeartbeatFrame returns a heartbeat on channel 0.
func NewHeartbeatFrame() *HeartbeatFrame {
	return &HeartbeatFrame{base: base{payload: []byte{}}}
}

// DecodeHeartbeatFrame is the Constructor for TypeHeartbeat.
func DecodeHeartbeatFrame(channel uint16, payload []byte) (Frame, error) {
	if len(payload) != 0 {
		return nil, ErrHeartbeatPayload
	}
	return &HeartbeatFrame{base: base{channel: channel, payload: payload}}, nil
}

func (*HeartbeatFrame) Type() Type { return TypeHeartbeat }
