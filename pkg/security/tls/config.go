package tls

import (
	"crypto/tls"
	"fmt"

	"oqs-hq/chatrelay/pkg/config"
)

// ParseVersion maps "1.2" and "1.3" to their protocol constants. An empty
// version means 1.2.
func ParseVersion(v string) (uint16, error) {
	switch v {
	case "1.2", "":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q (supported: 1.2, 1.3)", v)
	}
}

// ServerConfig builds the server-side configuration for cfg. The returned
// Reloader serves the certificate; schedule it to pick up renewals.
func ServerConfig(cfg config.TLSConfig) (*tls.Config, *Reloader, error) {
	version, err := ParseVersion(cfg.MinVersion)
	if err != nil {
		return nil, nil, err
	}
	reloader, err := NewReloader(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, nil, err
	}

	// #nosec G402 - MinVersion is validated to 1.2 or 1.3
	tc := &tls.Config{
		MinVersion:     version,
		GetCertificate: reloader.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
	}
	return tc, reloader, nil
}
