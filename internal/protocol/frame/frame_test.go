package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/amqpwire/internal/testutil/testlog"
)

func sameFrame(a, b Frame) bool {
	return a.Type() == b.Type() && a.Channel() == b.Channel() && bytes.Equal(a.Payload(), b.Payload())
}

func TestMethodFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := NewMethodFrame(1, 60, 40, []byte{0, 0, 3, 'a', 'm', 'q'})
	out, err := ParseAll(NewStandardRegistry(), Wire(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("frames=%d", len(out))
	}
	m, ok := out[0].(*MethodFrame)
	if !ok {
		t.Fatalf("expected *MethodFrame, got %T", out[0])
	}
	if m.Channel() != 1 || m.ClassID != 60 || m.MethodID != 40 {
		t.Fatalf("method mismatch: %+v", m)
	}
	if !bytes.Equal(m.Args(), []byte{0, 0, 3, 'a', 'm', 'q'}) {
		t.Fatalf("args mismatch: %x", m.Args())
	}
}

func TestHeaderFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := NewHeaderFrame(7, ContentHeader{
		ClassID:       60,
		BodySize:      1 << 33,
		PropertyFlags: 0x8000,
		Properties:    []byte{10, 't', 'e', 'x', 't', '/', 'p', 'l', 'a', 'i', 'n'},
	})
	out, err := ParseAll(NewStandardRegistry(), Wire(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	h, ok := out[0].(*HeaderFrame)
	if !ok {
		t.Fatalf("expected *HeaderFrame, got %T", out[0])
	}
	if h.ClassID != 60 || h.BodySize != 1<<33 || h.PropertyFlags != 0x8000 || h.Channel() != 7 {
		t.Fatalf("content header mismatch: %+v", h.ContentHeader)
	}
	if !bytes.Equal(h.Properties, in.Properties) {
		t.Fatalf("properties mismatch: %x", h.Properties)
	}
}

func TestBodyAndHeartbeatFrames(t *testing.T) {
	testlog.Start(t)
	wire := append(Wire(NewBodyFrame(3, []byte("payload"))), Wire(NewHeartbeatFrame())...)
	out, err := ParseAll(NewStandardRegistry(), wire)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("frames=%d", len(out))
	}
	for _, f := range out {
		switch v := f.(type) {
		case *BodyFrame:
			if string(v.Body()) != "payload" || v.Channel() != 3 {
				t.Fatalf("body mismatch: %q ch=%d", v.Body(), v.Channel())
			}
		case *HeartbeatFrame:
			if len(v.Payload()) != 0 || v.Channel() != 0 {
				t.Fatalf("heartbeat mismatch")
			}
		default:
			t.Fatalf("unexpected frame %T", f)
		}
	}
}

func TestZeroLengthPayloadWireLength(t *testing.T) {
	testlog.Start(t)
	wire := Wire(NewHeartbeatFrame())
	if len(wire) != Overhead {
		t.Fatalf("wire len=%d want=%d", len(wire), Overhead)
	}
	want := []byte{8, 0, 0, 0, 0, 0, 0, 0xCE}
	if !bytes.Equal(wire, want) {
		t.Fatalf("wire=%x want=%x", wire, want)
	}
}

func TestVariantPayloadErrors(t *testing.T) {
	testlog.Start(t)
	reg := NewStandardRegistry()
	cases := []struct {
		name string
		typ  Type
		body []byte
		want error
	}{
		{"short method", TypeMethod, []byte{0, 10, 0}, ErrShortMethodPayload},
		{"short content header", TypeHeader, make([]byte, 13), ErrShortContentHeader},
		{"heartbeat payload", TypeHeartbeat, []byte{1}, ErrHeartbeatPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := reg.Create(tc.typ, 0, tc.body)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if f != nil {
				t.Fatalf("expected no frame, got %T", f)
			}
		})
	}
}

func TestLimitsForFrameMax(t *testing.T) {
	testlog.Start(t)
	if got := LimitsForFrameMax(0); got.MaxPayloadBytes != 0 {
		t.Fatalf("zero frame_max should be unlimited, got %d", got.MaxPayloadBytes)
	}
	if got := LimitsForFrameMax(4096); got.MaxPayloadBytes != 4096-Overhead {
		t.Fatalf("frame_max 4096 got %d", got.MaxPayloadBytes)
	}
	if got := DefaultLimits(); got.MaxPayloadBytes != DefaultFrameMax-Overhead {
		t.Fatalf("default limits got %d", got.MaxPayloadBytes)
	}
}
