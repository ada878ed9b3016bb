package frame

import (
	"errors"
	"fmt"
)

var (
	ErrTruncatedHeader   = errors.New("frame: truncated header")
	ErrTruncatedPayload  = errors.New("frame: truncated payload")
	ErrInvalidTerminator = errors.New("frame: invalid frame end")
	ErrUnknownFrameType  = errors.New("frame: unknown frame type")
	ErrFrameTooLarge     = errors.New("frame: payload too large")
	ErrEmptyRegistry     = errors.New("frame: no frame types registered")
	ErrTypeRegistered    = errors.New("frame: frame type already registered")
	ErrConstructorNil    = errors.New("frame: constructor is nil")
	ErrTypeMismatch      = errors.New("frame: constructor produced wrong frame type")

	ErrShortMethodPayload = errors.New("frame: method payload shorter than class and method ids")
	ErrShortContentHeader = errors.New("frame: content header payload too short")
	ErrHeartbeatPayload   = errors.New("frame: heartbeat frames must not carry a payload")
)

// TruncatedPayloadError reports a declared payload size larger than the bytes available.
type TruncatedPayloadError struct {
	Want uint32
	Got  int
}

func (e *TruncatedPayloadError) Error() string {
	return fmt.Sprintf("frame: truncated payload: want %d bytes, got %d", e.Want, e.Got)
}

func (e *TruncatedPayloadError) Is(target error) bool {
	return target == ErrTruncatedPayload
}

// InvalidTerminatorError is fatal for the stream it came from: framing is desynchronized.
type InvalidTerminatorError struct {
	Actual byte
}

func (e *InvalidTerminatorError) Error() string {
	return fmt.Sprintf("frame: invalid frame end: got 0x%02x want 0x%02x", e.Actual, FrameEnd)
}

func (e *InvalidTerminatorError) Is(target error) bool {
	return target == ErrInvalidTerminator
}

type UnknownFrameTypeError struct {
	Type Type
}

func (e *UnknownFrameTypeError) Error() string {
	return fmt.Sprintf("frame: unknown frame type %d", uint8(e.Type))
}

func (e *UnknownFrameTypeError) Is(target error) bool {
	return target == ErrUnknownFrameType
}

type FrameTooLargeError struct {
	Size uint32
	Max  uint32
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame: payload too large: %d bytes exceeds limit %d", e.Size, e.Max)
}

func (e *FrameTooLargeError) Is(target error) bool {
	return target == ErrFrameTooLarge
}
