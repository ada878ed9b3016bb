package tap

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/amqpwire/internal/protocol/frame"
	"github.com/danmuck/amqpwire/internal/protocol/schema"
	"github.com/danmuck/amqpwire/internal/protocol/session"
	"github.com/danmuck/amqpwire/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

// fakeBroker accepts one connection, checks the preamble, sends
// connection.start and echoes every body frame it receives.
func fakeBroker(t *testing.T) (addr string, got chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	got = make(chan []byte, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := session.ReadProtocolHeader(conn); err != nil {
			return
		}
		start := frame.NewMethodFrame(0, 10, 10, []byte{0, 9})
		if err := frame.WriteFrame(conn, start); err != nil {
			return
		}
		reg := frame.NewStandardRegistry()
		for {
			f, err := frame.ReadFrame(conn, reg, frame.DefaultLimits())
			if err != nil {
				raw, _ := io.ReadAll(conn)
				got <- raw
				return
			}
			if body, ok := f.(*frame.BodyFrame); ok {
				if err := frame.WriteFrame(conn, frame.NewBodyFrame(f.Channel(), body.Body())); err != nil {
					return
				}
			}
		}
	}()
	return ln.Addr().String(), got
}

func startProxy(t *testing.T, upstream string) (*Proxy, string) {
	t.Helper()
	return startProxyWithSpec(t, upstream, nil)
}

func startProxyWithSpec(t *testing.T, upstream string, spec *schema.Spec) (*Proxy, string) {
	t.Helper()
	cfg := Config{
		Upstream:   upstream,
		Session:    session.DefaultConfig(),
		TraceRate:  100,
		TraceBurst: 10,
	}
	p, err := New(cfg, spec)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Errorf("proxy did not stop")
		}
	})
	return p, ln.Addr().String()
}

func TestProxyRelaysAndDecodesBothDirections(t *testing.T) {
	testlog.Start(t)
	upstream, _ := fakeBroker(t)
	p, addr := startProxy(t, upstream)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, session.WriteProtocolHeader(conn))

	reg := frame.NewStandardRegistry()
	start, err := frame.ReadFrame(conn, reg, frame.DefaultLimits())
	require.NoError(t, err)
	m, ok := start.(*frame.MethodFrame)
	require.True(t, ok)
	require.Equal(t, uint16(10), m.ClassID)

	require.NoError(t, frame.WriteFrame(conn, frame.NewBodyFrame(1, []byte("ping"))))
	echo, err := frame.ReadFrame(conn, reg, frame.DefaultLimits())
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), echo.Payload())

	require.Eventually(t, func() bool {
		stats := p.Stats()
		return len(stats) == 1 &&
			stats[0].ClientToServer.Frames == 1 &&
			stats[0].ServerToClient.Frames == 2
	}, 2*time.Second, 10*time.Millisecond)

	stats := p.Stats()
	require.NotEmpty(t, stats[0].ID)
	require.Equal(t, uint64(len(session.ProtocolHeader)+len(frame.Wire(frame.NewBodyFrame(1, []byte("ping"))))), stats[0].ClientToServer.Bytes)
	require.Equal(t, uint64(1), p.Accepted())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return len(p.Stats()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestProxyAnswersForeignPreamble(t *testing.T) {
	testlog.Start(t)
	upstream, _ := fakeBroker(t)
	_, addr := startProxy(t, upstream)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("GET / HT"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	require.Equal(t, session.ProtocolHeader, reply)
}

func TestProxyUsesSchemaPreamble(t *testing.T) {
	testlog.Start(t)
	spec, err := schema.Default()
	require.NoError(t, err)
	spec.Revision = 0
	upstream, _ := fakeBroker(t)
	_, addr := startProxyWithSpec(t, upstream, spec)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, session.WriteProtocolHeader(conn))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	require.Equal(t, spec.ProtocolHeader(), reply)
}

func TestNewRejectsFrameMaxBelowMinimum(t *testing.T) {
	testlog.Start(t)
	cfg := Config{Upstream: "127.0.0.1:5672", Session: session.DefaultConfig()}
	cfg.Session.FrameMax = 1024
	_, err := New(cfg, nil)
	require.ErrorContains(t, err, "frame_min_size")

	cfg.Session.FrameMax = 4096
	p, err := New(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, session.ProtocolHeader, p.cfg.Session.Header())
}

func TestProxyClosesOnCorruptFrame(t *testing.T) {
	testlog.Start(t)
	upstream, got := fakeBroker(t)
	_, addr := startProxy(t, upstream)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, session.WriteProtocolHeader(conn))
	_, err = frame.ReadFrame(conn, frame.NewStandardRegistry(), frame.DefaultLimits())
	require.NoError(t, err)

	bad := frame.Wire(frame.NewBodyFrame(1, []byte("x")))
	bad[len(bad)-1] = 0x00
	_, err = conn.Write(bad)
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	require.True(t, errors.Is(err, io.EOF) || isReset(err), "expected close, got %v", err)

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatalf("upstream was not closed")
	}
}

func TestDecodeReason(t *testing.T) {
	testlog.Start(t)
	_, ok := decodeReason(nil)
	require.False(t, ok)
	reason, ok := decodeReason(&frame.InvalidTerminatorError{Actual: 1})
	require.True(t, ok)
	require.Equal(t, "invalid_terminator", reason)
	reason, ok = decodeReason(&frame.FrameTooLargeError{Size: 9, Max: 8})
	require.True(t, ok)
	require.Equal(t, "frame_too_large", reason)
	_, ok = decodeReason(io.ErrUnexpectedEOF)
	require.False(t, ok)
}

func isReset(err error) bool {
	var ne *net.OpError
	return errors.As(err, &ne)
}
