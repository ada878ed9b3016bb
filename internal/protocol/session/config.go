package session

import (
	"time"

	"github.com/danmuck/amqpwire/internal/protocol/frame"
)

// TLSConfig describes client-side TLS for AMQPS upstreams.
type TLSConfig struct {
	Enabled            bool
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines transport defaults for one framed connection.
type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	// ReadTimeout bounds the wait for the next chunk; zero waits forever.
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ReadBufferSize int
	// FrameMax counts header and frame-end octets, as negotiated by connection.tune.
	FrameMax uint32
	// ProtocolHeader is the preamble this side expects and sends; nil means AMQP 0-9-1.
	ProtocolHeader []byte
	TLS            TLSConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      0,
		WriteTimeout:     15 * time.Second,
		ReadBufferSize:   32 * 1024,
		FrameMax:         frame.DefaultFrameMax,
	}
}

func (c Config) Header() []byte {
	if len(c.ProtocolHeader) == 0 {
		return ProtocolHeader
	}
	return c.ProtocolHeader
}

func (c Config) Limits() frame.Limits {
	return frame.LimitsForFrameMax(c.FrameMax)
}
