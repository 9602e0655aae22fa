package mqtt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/calebren/fieldcomm-core/internal/infrastructure/config"
)

func TestBuildClientOptions_TCP(t *testing.T) {
	cfg := config.TransportConfig{
		Protocol: "tcp",
		Host:     "broker.local",
		Port:     1883,
		ClientID: "test-client",
		Username: "user",
		Password: "pass",
		Reconnect: config.ReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}

	opts, err := buildClientOptions(cfg)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}

	if len(opts.Servers) != 1 {
		t.Fatalf("len(Servers) = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://broker.local:1883" {
		t.Errorf("broker URL = %q, want tcp://broker.local:1883", got)
	}
	if opts.ClientID != "test-client" {
		t.Errorf("ClientID = %q, want test-client", opts.ClientID)
	}
	if opts.Username != "user" {
		t.Errorf("Username = %q, want user", opts.Username)
	}
}

func TestBuildClientOptions_TLSScheme(t *testing.T) {
	cfg := config.TransportConfig{
		Protocol: "tls",
		Host:     "secure.local",
		Port:     8883,
	}

	opts, err := buildClientOptions(cfg)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLSConfig not set for tls protocol")
	}
	if opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("MinVersion = %d, want %d", opts.TLSConfig.MinVersion, tlsMinVersion)
	}
}

func TestNewTLSConfig_MissingTrustStore(t *testing.T) {
	_, err := newTLSConfig("/nonexistent/ca.pem")
	if !errors.Is(err, ErrTrustStore) {
		t.Errorf("error = %v, want ErrTrustStore", err)
	}
}

func TestNewTLSConfig_InvalidPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte("not a certificate"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := newTLSConfig(path)
	if !errors.Is(err, ErrTrustStore) {
		t.Errorf("error = %v, want ErrTrustStore", err)
	}
}

func TestNewTLSConfig_ValidTrustStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, selfSignedCA(t), 0600); err != nil {
		t.Fatal(err)
	}

	tlsConfig, err := newTLSConfig(path)
	if err != nil {
		t.Fatalf("newTLSConfig() error = %v", err)
	}
	if tlsConfig.RootCAs == nil {
		t.Error("RootCAs not populated from trust store")
	}
}

// selfSignedCA generates a throwaway CA certificate in PEM form.
func selfSignedCA(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "fieldcomm-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}
