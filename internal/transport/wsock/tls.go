package wsock

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrTLSCertFileRequired     = errors.New("wsock: tls cert file required")
	ErrTLSKeyFileRequired      = errors.New("wsock: tls key file required")
	ErrTLSCAFileInvalid        = errors.New("wsock: tls ca file has no certificates")
	ErrTLSInsecureSkipNotAllow = errors.New("wsock: insecure skip verify not allowed with a ca file")
)

// TLSConfig selects the relay's trust roots and an optional client certificate.
// The zero value uses the system roots.
type TLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool
}

func (c TLSConfig) Mutual() bool {
	return strings.TrimSpace(c.CertFile) != "" || strings.TrimSpace(c.KeyFile) != ""
}

func (c TLSConfig) Validate() error {
	if c.Mutual() {
		if strings.TrimSpace(c.CertFile) == "" {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.KeyFile) == "" {
			return ErrTLSKeyFileRequired
		}
	}
	if c.InsecureSkipVerify && strings.TrimSpace(c.CAFile) != "" {
		return ErrTLSInsecureSkipNotAllow
	}
	return nil
}

// Build returns nil when no field is set.
func (c TLSConfig) Build() (*tls.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c == (TLSConfig{}) {
		return nil, nil
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
	if ca := strings.TrimSpace(c.CAFile); ca != "" {
		pem, err := os.ReadFile(ca)
		if err != nil {
			return nil, fmt.Errorf("wsock: read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: %s", ErrTLSCAFileInvalid, ca)
		}
		cfg.RootCAs = pool
	}
	if c.Mutual() {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("wsock: load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
