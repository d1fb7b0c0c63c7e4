package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/scheduler"
)

// writeCert writes a self-signed certificate and key for cn into dir.
func writeCert(t *testing.T, dir, cn string, notBefore, notAfter time.Time) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     []string{"localhost"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func leafCN(t *testing.T, r *Reloader) string {
	t.Helper()
	cert, err := r.GetCertificate(nil)
	if err != nil || cert == nil {
		t.Fatalf("GetCertificate() = %v, %v", cert, err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	return leaf.Subject.CommonName
}

func TestValidateCertificate(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()

	tests := []struct {
		name      string
		notBefore time.Time
		notAfter  time.Time
		wantErr   bool
		soon      bool
	}{
		{name: "valid", notBefore: now.Add(-time.Hour), notAfter: now.Add(365 * 24 * time.Hour)},
		{name: "expiring", notBefore: now.Add(-time.Hour), notAfter: now.Add(24 * time.Hour), soon: true},
		{name: "expired", notBefore: now.Add(-48 * time.Hour), notAfter: now.Add(-time.Hour), wantErr: true},
		{name: "not yet valid", notBefore: now.Add(time.Hour), notAfter: now.Add(48 * time.Hour), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certFile, keyFile := writeCert(t, dir, tt.name, tt.notBefore, tt.notAfter)
			cert, err := tls.LoadX509KeyPair(certFile, keyFile)
			if err != nil {
				t.Fatal(err)
			}
			leaf, err := ValidateCertificate(&cert, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCertificate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && ExpiresSoon(leaf, now) != tt.soon {
				t.Errorf("ExpiresSoon() = %v, want %v", !tt.soon, tt.soon)
			}
		})
	}

	if _, err := ValidateCertificate(nil, now); err == nil {
		t.Error("expected error for nil certificate")
	}
}

func TestParseVersion(t *testing.T) {
	if v, _ := ParseVersion(""); v != tls.VersionTLS12 {
		t.Errorf("default version = %x", v)
	}
	if v, _ := ParseVersion("1.3"); v != tls.VersionTLS13 {
		t.Errorf("1.3 version = %x", v)
	}
	if _, err := ParseVersion("1.0"); err == nil {
		t.Error("expected error for 1.0")
	}
}

func TestReloader(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writeCert(t, dir, "first", now.Add(-time.Hour), now.Add(90*24*time.Hour))

	r, err := NewReloader(certFile, keyFile)
	if err != nil {
		t.Fatalf("NewReloader() failed: %v", err)
	}
	if leafCN(t, r) != "first" {
		t.Fatal("expected initial certificate")
	}

	if replaced, err := r.Reload(); err != nil || replaced {
		t.Errorf("Reload() without changes = %v, %v", replaced, err)
	}

	writeCert(t, dir, "second", now.Add(-time.Hour), now.Add(90*24*time.Hour))
	later := now.Add(time.Minute)
	for _, f := range []string{certFile, keyFile} {
		if err := os.Chtimes(f, later, later); err != nil {
			t.Fatal(err)
		}
	}
	if replaced, err := r.Reload(); err != nil || !replaced {
		t.Fatalf("Reload() after renewal = %v, %v", replaced, err)
	}
	if leafCN(t, r) != "second" {
		t.Error("expected renewed certificate")
	}

	// A broken renewal keeps serving the previous certificate.
	if err := os.WriteFile(certFile, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	evenLater := later.Add(time.Minute)
	if err := os.Chtimes(certFile, evenLater, evenLater); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Reload(); err == nil {
		t.Error("expected error for broken certificate")
	}
	if leafCN(t, r) != "second" {
		t.Error("expected previous certificate to stay in place")
	}
}

func TestServerConfig(t *testing.T) {
	now := time.Now()
	certFile, keyFile := writeCert(t, t.TempDir(), "gateway", now.Add(-time.Hour), now.Add(90*24*time.Hour))

	tc, r, err := ServerConfig(config.TLSConfig{CertFile: certFile, KeyFile: keyFile, MinVersion: "1.3"})
	if err != nil {
		t.Fatalf("ServerConfig() failed: %v", err)
	}
	if tc.MinVersion != tls.VersionTLS13 || tc.GetCertificate == nil {
		t.Errorf("unexpected config %+v", tc)
	}

	sched := scheduler.New("test")
	if err := r.Schedule(sched, 5*time.Minute); err != nil {
		t.Errorf("Schedule() failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sched.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()
	if _, ok := sched.NextRun("tls-reload"); !ok {
		t.Error("expected tls-reload job")
	}
	if err := r.Schedule(scheduler.New("test"), 0); err != nil {
		t.Errorf("Schedule(0) should be a no-op, got %v", err)
	}

	if _, _, err := ServerConfig(config.TLSConfig{CertFile: "missing.pem", KeyFile: "missing.pem"}); err == nil {
		t.Error("expected error for missing files")
	}
}
