package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"oqs-hq/chatrelay/pkg/scheduler"
)

// Reloader holds the serving certificate and replaces it when the files on
// disk change. A failed reload keeps the previous certificate.
type Reloader struct {
	certFile string
	keyFile  string

	mu       sync.RWMutex
	cert     *tls.Certificate
	certTime time.Time
	keyTime  time.Time
}

// NewReloader loads the initial certificate.
func NewReloader(certFile, keyFile string) (*Reloader, error) {
	r := &Reloader{certFile: certFile, keyFile: keyFile}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// Reload loads the files again when either has a newer modification time.
// It reports whether the certificate was replaced.
func (r *Reloader) Reload() (bool, error) {
	if !r.changed() {
		return false, nil
	}
	if err := r.load(); err != nil {
		return false, err
	}
	return true, nil
}

// Schedule registers a periodic Reload with sched. A zero interval
// disables reloading.
func (r *Reloader) Schedule(sched *scheduler.Scheduler, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	return sched.Add("tls-reload", "@every "+interval.String(), func(context.Context) {
		if _, err := r.Reload(); err != nil {
			slog.Error("failed to reload certificate",
				"error", err,
				"cert_file", r.certFile,
			)
		}
	})
}

func (r *Reloader) changed() bool {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return certInfo.ModTime().After(r.certTime) || keyInfo.ModTime().After(r.keyTime)
}

func (r *Reloader) load() error {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return fmt.Errorf("certificate file: %w", err)
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return fmt.Errorf("key file: %w", err)
	}

	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	now := time.Now()
	leaf, err := ValidateCertificate(&cert, now)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cert = &cert
	r.certTime = certInfo.ModTime()
	r.keyTime = keyInfo.ModTime()
	r.mu.Unlock()

	attrs := []any{
		"subject", leaf.Subject.CommonName,
		"expires_at", leaf.NotAfter.Format(time.RFC3339),
	}
	if ExpiresSoon(leaf, now) {
		slog.Warn("certificate expiring soon", attrs...)
	} else {
		slog.Info("certificate loaded", attrs...)
	}
	return nil
}
