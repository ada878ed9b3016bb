package session

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrTLSCAFileRequired     = errors.New("session: tls ca file required")
	ErrTLSCAFileUnreadable   = errors.New("session: tls ca file unreadable")
	ErrTLSNoCertificatesInCA = errors.New("session: tls ca file holds no certificates")
)

func (t TLSConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.CAFile) == "" && !t.InsecureSkipVerify {
		return ErrTLSCAFileRequired
	}
	return nil
}

// ClientConfig builds the tls.Config used to dial an AMQPS upstream. It
// returns nil when TLS is disabled.
func (t TLSConfig) ClientConfig(host string) (*tls.Config, error) {
	if !t.Enabled {
		return nil, nil
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         host,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}
	if name := strings.TrimSpace(t.ServerName); name != "" {
		cfg.ServerName = name
	}
	if ca := strings.TrimSpace(t.CAFile); ca != "" {
		pem, err := os.ReadFile(ca)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTLSCAFileUnreadable, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, ErrTLSNoCertificatesInCA
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
