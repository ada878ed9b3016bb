package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/danmuck/amqpwire/internal/logging"
	"github.com/danmuck/amqpwire/internal/protocol/frame"
	"github.com/danmuck/amqpwire/internal/protocol/session"
	"github.com/pelletier/go-toml/v2"
)

// TapConfig configures the tapping proxy and its admin surface.
type TapConfig struct {
	Listen      string   `toml:"listen"`
	Upstream    string   `toml:"upstream"`
	AdminAddr   string   `toml:"admin_addr"`
	AdminToken  string   `toml:"admin_token"`
	CorsOrigins []string `toml:"cors_origins"`
	LogLevel    string   `toml:"log_level"`
	Schema      string   `toml:"schema"`

	FrameMax       uint32 `toml:"frame_max"`
	ReadBufferSize int    `toml:"read_buffer_size"`

	ConnectTimeout   Duration `toml:"connect_timeout"`
	HandshakeTimeout Duration `toml:"handshake_timeout"`
	IdleTimeout      Duration `toml:"idle_timeout"`
	WriteTimeout     Duration `toml:"write_timeout"`

	// TraceRate caps per-frame log lines per second for each connection; zero disables them.
	TraceRate  float64 `toml:"trace_rate"`
	TraceBurst int     `toml:"trace_burst"`

	TLS TLSConfig `toml:"tls"`
}

type TLSConfig struct {
	Enabled            bool   `toml:"enabled"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// Duration decodes TOML strings such as "5s" or "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func DefaultTapConfig() TapConfig {
	s := session.DefaultConfig()
	return TapConfig{
		Listen:           ":5673",
		Upstream:         "localhost:5672",
		AdminAddr:        ":9673",
		LogLevel:         "info",
		FrameMax:         s.FrameMax,
		ReadBufferSize:   s.ReadBufferSize,
		ConnectTimeout:   Duration{s.ConnectTimeout},
		HandshakeTimeout: Duration{s.HandshakeTimeout},
		WriteTimeout:     Duration{s.WriteTimeout},
		TraceRate:        50,
		TraceBurst:       100,
	}
}

func LoadTapConfig(path string) (TapConfig, error) {
	cfg := DefaultTapConfig()
	if err := loadToml(path, &cfg); err != nil {
		return TapConfig{}, err
	}
	if err := ValidateTapConfig(cfg); err != nil {
		return TapConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateTapConfig(cfg TapConfig) error {
	if err := validateAddr("listen", cfg.Listen); err != nil {
		return err
	}
	if err := validateAddr("upstream", cfg.Upstream); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.AdminAddr) != "" {
		if err := validateAddr("admin_addr", cfg.AdminAddr); err != nil {
			return err
		}
	}
	if cfg.FrameMax != 0 && cfg.FrameMax < frame.Overhead+1 {
		return fmt.Errorf("tap config frame_max %d below minimum %d", cfg.FrameMax, frame.Overhead+1)
	}
	if strings.TrimSpace(cfg.LogLevel) != "" {
		if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
			return fmt.Errorf("tap config log_level %q unknown", cfg.LogLevel)
		}
	}
	if cfg.ReadBufferSize <= 0 {
		return fmt.Errorf("tap config read_buffer_size must be positive")
	}
	if cfg.TraceRate < 0 || cfg.TraceBurst < 0 {
		return fmt.Errorf("tap config trace_rate and trace_burst must not be negative")
	}
	if cfg.TraceRate > 0 && cfg.TraceBurst == 0 {
		return fmt.Errorf("tap config trace_burst required when trace_rate is set")
	}
	if err := cfg.Session().TLS.Validate(); err != nil {
		return fmt.Errorf("tap config tls invalid: %w", err)
	}
	return nil
}

func validateAddr(field, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("tap config missing %s", field)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("tap config %s %q: %w", field, addr, err)
	}
	return nil
}

// Session maps the tap settings onto the per-connection transport config.
func (c TapConfig) Session() session.Config {
	return session.Config{
		ConnectTimeout:   c.ConnectTimeout.Duration,
		HandshakeTimeout: c.HandshakeTimeout.Duration,
		ReadTimeout:      c.IdleTimeout.Duration,
		WriteTimeout:     c.WriteTimeout.Duration,
		ReadBufferSize:   c.ReadBufferSize,
		FrameMax:         c.FrameMax,
		TLS: session.TLSConfig{
			Enabled:            c.TLS.Enabled,
			CAFile:             c.TLS.CAFile,
			ServerName:         c.TLS.ServerName,
			InsecureSkipVerify: c.TLS.InsecureSkipVerify,
		},
	}
}
