package tap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/amqpwire/internal/observability"
	"github.com/danmuck/amqpwire/internal/protocol/frame"
	"github.com/danmuck/amqpwire/internal/protocol/schema"
	"github.com/danmuck/amqpwire/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Config describes one tapping proxy between AMQP clients and a broker.
type Config struct {
	Listen   string
	Upstream string
	Session  session.Config
	// TraceRate limits per-frame log lines for each connection. Zero disables tracing.
	TraceRate  rate.Limit
	TraceBurst int
}

// Traffic counts what one direction of a proxied connection carried.
type Traffic struct {
	Bytes  uint64 `json:"bytes"`
	Frames uint64 `json:"frames"`
}

// ConnInfo is a point-in-time view of one proxied connection.
type ConnInfo struct {
	ID             string    `json:"id"`
	Client         string    `json:"client"`
	Upstream       string    `json:"upstream"`
	Opened         time.Time `json:"opened"`
	ClientToServer Traffic   `json:"client_to_server"`
	ServerToClient Traffic   `json:"server_to_client"`
}

type dialFunc func(ctx context.Context, addr string, cfg session.Config) (net.Conn, error)

// Proxy accepts AMQP clients, dials the upstream broker for each one and
// relays both directions unchanged while decoding the frames it forwards.
type Proxy struct {
	cfg  Config
	spec *schema.Spec
	reg  *frame.Registry
	dial dialFunc

	mu    sync.Mutex
	conns map[string]*tapConn

	accepted atomic.Uint64
}

type tapConn struct {
	id       string
	opened   time.Time
	client   *session.Conn
	upstream *session.Conn
}

func New(cfg Config, spec *schema.Spec) (*Proxy, error) {
	if spec == nil {
		var err error
		if spec, err = schema.Default(); err != nil {
			return nil, err
		}
	}
	reg, err := spec.Registry()
	if err != nil {
		return nil, err
	}
	if cfg.Session.FrameMax != 0 && cfg.Session.FrameMax < spec.FrameMinSize {
		return nil, fmt.Errorf("tap: frame_max %d below %s frame_min_size %d", cfg.Session.FrameMax, spec.Version(), spec.FrameMinSize)
	}
	cfg.Session.ProtocolHeader = spec.ProtocolHeader()
	if cfg.Session.ReadBufferSize <= 0 {
		cfg.Session.ReadBufferSize = session.DefaultConfig().ReadBufferSize
	}
	return &Proxy{
		cfg:   cfg,
		spec:  spec,
		reg:   reg,
		dial:  session.Dial,
		conns: make(map[string]*tapConn),
	}, nil
}

func (p *Proxy) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", p.cfg.Listen)
	if err != nil {
		return err
	}
	log.Info().Str("listen", ln.Addr().String()).Str("upstream", p.cfg.Upstream).Msg("tap listening")
	return p.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends. It closes ln.
func (p *Proxy) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		p.accepted.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.handleConn(ctx, conn)
		}()
	}
}

// Accepted reports how many client connections Serve has accepted.
func (p *Proxy) Accepted() uint64 {
	return p.accepted.Load()
}

// Stats returns the live connections ordered by open time.
func (p *Proxy) Stats() []ConnInfo {
	p.mu.Lock()
	out := make([]ConnInfo, 0, len(p.conns))
	for _, tc := range p.conns {
		c2s := tc.client.Stats()
		s2c := tc.upstream.Stats()
		out = append(out, ConnInfo{
			ID:             tc.id,
			Client:         tc.client.RemoteAddr().String(),
			Upstream:       tc.upstream.RemoteAddr().String(),
			Opened:         tc.opened,
			ClientToServer: Traffic{Bytes: c2s.BytesIn, Frames: c2s.FramesIn},
			ServerToClient: Traffic{Bytes: s2c.BytesIn, Frames: s2c.FramesIn},
		})
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Opened.Equal(out[j].Opened) {
			return out[i].ID < out[j].ID
		}
		return out[i].Opened.Before(out[j].Opened)
	})
	return out
}

// Spec returns the protocol description used to name frames.
func (p *Proxy) Spec() *schema.Spec {
	return p.spec
}

func (p *Proxy) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	id := uuid.NewString()
	logger := observability.ConnLogger(log.Logger, id, conn.RemoteAddr().String(), p.cfg.Upstream)

	client := session.NewConn(conn, p.reg, p.cfg.Session)
	hdr, err := client.ReadProtocolHeader()
	if err != nil {
		if hdr != nil && errors.Is(err, session.ErrBadProtocolHeader) {
			_ = client.WriteProtocolHeader()
		}
		logger.Warn().Err(err).Msg("tap rejected client preamble")
		return
	}

	up, err := p.dial(ctx, p.cfg.Upstream, p.cfg.Session)
	if err != nil {
		logger.Error().Err(err).Msg("tap upstream dial failed")
		return
	}
	defer up.Close()
	upstream := session.NewConn(up, p.reg, p.cfg.Session)
	if err := upstream.WriteProtocolHeader(); err != nil {
		logger.Error().Err(err).Msg("tap upstream preamble failed")
		return
	}

	tc := &tapConn{id: id, opened: time.Now(), client: client, upstream: upstream}
	p.track(tc)
	observability.ConnectionOpened()
	logger.Info().Msg("tap connection opened")
	defer func() {
		p.untrack(id)
		c2s := client.Stats()
		s2c := upstream.Stats()
		observability.RecordBytes(observability.ClientToServer, int(c2s.BytesIn))
		observability.RecordBytes(observability.ServerToClient, int(s2c.BytesIn))
		observability.ConnectionClosed(time.Since(tc.opened))
		logger.Info().
			Uint64("c2s_frames", c2s.FramesIn).
			Uint64("s2c_frames", s2c.FramesIn).
			Uint64("c2s_bytes", c2s.BytesIn).
			Uint64("s2c_bytes", s2c.BytesIn).
			Msg("tap connection closed")
	}()

	var trace *rate.Limiter
	if p.cfg.TraceRate > 0 {
		trace = rate.NewLimiter(p.cfg.TraceRate, p.cfg.TraceBurst)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 2)
	go func() {
		errc <- p.relay(ctx, client, up, observability.ClientToServer, logger, trace)
	}()
	go func() {
		errc <- p.relay(ctx, upstream, conn, observability.ServerToClient, logger, trace)
	}()

	first := <-errc
	cancel()
	_ = conn.Close()
	_ = up.Close()
	<-errc
	if first != nil && !errors.Is(first, context.Canceled) {
		logger.Warn().Err(first).Msg("tap connection stopped")
	}
}

func (p *Proxy) relay(ctx context.Context, src *session.Conn, dst net.Conn, dir string, logger zerolog.Logger, trace *rate.Limiter) error {
	err := src.Relay(ctx, dst, func(f frame.Frame) error {
		observability.RecordFrame(dir, f.Type().String())
		if trace != nil && trace.Allow() {
			logger.Debug().Str("dir", dir).Str("frame", p.spec.Describe(f)).Msg("frame")
		}
		return nil
	})
	if reason, ok := decodeReason(err); ok {
		observability.RecordDecodeError(dir, reason)
	}
	return err
}

func (p *Proxy) track(tc *tapConn) {
	p.mu.Lock()
	p.conns[tc.id] = tc
	p.mu.Unlock()
}

func (p *Proxy) untrack(id string) {
	p.mu.Lock()
	delete(p.conns, id)
	p.mu.Unlock()
}

func decodeReason(err error) (string, bool) {
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, frame.ErrInvalidTerminator):
		return "invalid_terminator", true
	case errors.Is(err, frame.ErrFrameTooLarge):
		return "frame_too_large", true
	case errors.Is(err, frame.ErrUnknownFrameType):
		return "unknown_frame_type", true
	case errors.Is(err, frame.ErrShortMethodPayload),
		errors.Is(err, frame.ErrShortContentHeader),
		errors.Is(err, frame.ErrHeartbeatPayload),
		errors.Is(err, frame.ErrTypeMismatch):
		return "malformed_payload", true
	default:
		return "", false
	}
}
