package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/amqpwire/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// Handler receives decoded frames in wire order. A non-nil error stops Run.
type Handler func(frame.Frame) error

type Stats struct {
	BytesIn   uint64 `json:"bytes_in"`
	BytesOut  uint64 `json:"bytes_out"`
	FramesIn  uint64 `json:"frames_in"`
	FramesOut uint64 `json:"frames_out"`
}

// Conn drives a frame.Reader from a net.Conn. Reads happen on the goroutine
// calling Run or Relay; writes may come from any goroutine.
type Conn struct {
	conn   net.Conn
	cfg    Config
	reader *frame.Reader

	wmu sync.Mutex

	bytesIn   atomic.Uint64
	bytesOut  atomic.Uint64
	framesIn  atomic.Uint64
	framesOut atomic.Uint64
}

func NewConn(c net.Conn, reg *frame.Registry, cfg Config) *Conn {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultConfig().ReadBufferSize
	}
	return &Conn{
		conn:   c,
		cfg:    cfg,
		reader: frame.NewReader(reg, frame.WithLimits(cfg.Limits()), frame.WithBufferSize(cfg.ReadBufferSize)),
	}
}

// Dial connects to addr, wrapping the connection in TLS when cfg.TLS is enabled.
func Dial(ctx context.Context, addr string, cfg Config) (net.Conn, error) {
	d := &net.Dialer{Timeout: cfg.ConnectTimeout}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", addr, err)
	}
	tlsCfg, err := cfg.TLS.ClientConfig(host)
	if err != nil {
		return nil, err
	}
	if tlsCfg == nil {
		return d.DialContext(ctx, "tcp", addr)
	}
	td := &tls.Dialer{NetDialer: d, Config: tlsCfg}
	return td.DialContext(ctx, "tcp", addr)
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) Stats() Stats {
	return Stats{
		BytesIn:   c.bytesIn.Load(),
		BytesOut:  c.bytesOut.Load(),
		FramesIn:  c.framesIn.Load(),
		FramesOut: c.framesOut.Load(),
	}
}

// ReadProtocolHeader reads the client preamble within HandshakeTimeout and
// checks it against Config.Header.
// Call it before Run.
func (c *Conn) ReadProtocolHeader() ([]byte, error) {
	if c.cfg.HandshakeTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}
	hdr, err := ReadExpectedHeader(c.conn, c.cfg.Header())
	c.bytesIn.Add(uint64(len(hdr)))
	return hdr, err
}

func (c *Conn) WriteProtocolHeader() error {
	return c.write(c.cfg.Header(), 0)
}

func (c *Conn) WriteFrame(f frame.Frame) error {
	return c.WriteFrames(f)
}

// WriteFrames writes fs with one Write so content frames of one message are
// never interleaved with frames from other writers.
func (c *Conn) WriteFrames(fs ...frame.Frame) error {
	var buf []byte
	for _, f := range fs {
		buf = frame.AppendWire(buf, f)
	}
	return c.write(buf, len(fs))
}

func (c *Conn) write(b []byte, frames int) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	n, err := c.conn.Write(b)
	c.bytesOut.Add(uint64(n))
	if err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	c.framesOut.Add(uint64(frames))
	return nil
}

// Run reads chunks and hands every complete frame to h. It returns nil when
// the peer closes between frames, ctx.Err() when ctx ends, and otherwise
// the first read, decode or handler error.
func (c *Conn) Run(ctx context.Context, h Handler) error {
	return c.run(ctx, nil, h)
}

// Relay behaves like Run and also copies every chunk to dst, byte for
// byte, before decoding it.
func (c *Conn) Relay(ctx context.Context, dst io.Writer, h Handler) error {
	return c.run(ctx, dst, h)
}

func (c *Conn) run(ctx context.Context, dst io.Writer, h Handler) error {
	var (
		mu       sync.Mutex
		canceled bool
	)
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		canceled = true
		_ = c.conn.SetReadDeadline(time.Unix(1, 0))
		mu.Unlock()
	})
	defer stop()
	armDeadline := func() {
		mu.Lock()
		defer mu.Unlock()
		if !canceled && c.cfg.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
	}

	buf := make([]byte, c.cfg.ReadBufferSize)
	for {
		armDeadline()
		n, rerr := c.conn.Read(buf)
		if n > 0 {
			c.bytesIn.Add(uint64(n))
			if dst != nil {
				if _, err := dst.Write(buf[:n]); err != nil {
					return fmt.Errorf("session: relay write: %w", err)
				}
			}
			if err := c.consume(buf[:n], h); err != nil {
				return err
			}
		}
		if rerr == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(rerr, io.EOF) {
			if pending := c.reader.Buffered(); pending > 0 {
				return fmt.Errorf("session: peer closed with %d bytes of a partial frame: %w", pending, io.ErrUnexpectedEOF)
			}
			return nil
		}
		var ne net.Error
		if errors.As(rerr, &ne) && ne.Timeout() {
			return fmt.Errorf("session: read timeout after %s: %w", c.cfg.ReadTimeout, rerr)
		}
		return fmt.Errorf("session: read: %w", rerr)
	}
}

func (c *Conn) consume(chunk []byte, h Handler) error {
	frames, ferr := c.reader.Feed(chunk)
	for _, f := range frames {
		c.framesIn.Add(1)
		if err := h(f); err != nil {
			return err
		}
	}
	if ferr != nil {
		log.Warn().Err(ferr).Str("remote", c.conn.RemoteAddr().String()).Msg("session decode failed")
		return fmt.Errorf("session: decode: %w", ferr)
	}
	return nil
}
