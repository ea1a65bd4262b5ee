package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	autoCertName = "server.crt"
	autoKeyName  = "server.key"

	autoValidity = 90 * 24 * time.Hour
	// autoRenewBefore regenerates a certificate this close to expiry.
	autoRenewBefore = 7 * 24 * time.Hour
)

// now is replaced in tests.
var now = time.Now

type autoSource struct {
	certPath string
	cert     tls.Certificate
}

func newAutoSource(cfg Config, logger *slog.Logger) (*autoSource, error) {
	if cfg.AutoCertDir == "" {
		return nil, errors.New("server.tls_auto_cert_dir is required when server.tls_mode=auto")
	}
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	if err := os.MkdirAll(cfg.AutoCertDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	certPath := filepath.Join(cfg.AutoCertDir, autoCertName)
	keyPath := filepath.Join(cfg.AutoCertDir, autoKeyName)

	pair, reason := loadReusable(certPath, keyPath, hosts)
	if reason != "" {
		logger.Info("generating self-signed certificate",
			slog.String("reason", reason),
			slog.String("cert_path", certPath),
			slog.Any("hosts", hosts))
		if err := writeSelfSigned(certPath, keyPath, hosts); err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		loaded, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load self-signed certificate: %w", err)
		}
		pair = &loaded
		logger.Warn("serving a self-signed certificate; use tls_mode=file in production")
	} else {
		logger.Info("reusing self-signed certificate", slog.String("cert_path", certPath))
	}

	return &autoSource{certPath: certPath, cert: *pair}, nil
}

func (s *autoSource) TLSConfig() *tls.Config {
	cfg := baseConfig()
	cfg.Certificates = []tls.Certificate{s.cert}
	return cfg
}

func (s *autoSource) String() string {
	return fmt.Sprintf("self-signed (cert=%s)", s.certPath)
}

func (s *autoSource) Close() error { return nil }

// loadReusable returns the existing pair, or a reason it must be regenerated.
func loadReusable(certPath, keyPath string, hosts []string) (*tls.Certificate, string) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "missing"
		}
		return nil, "unreadable"
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, "unreadable"
	}
	t := now()
	if t.Before(leaf.NotBefore) || t.Add(autoRenewBefore).After(leaf.NotAfter) {
		return nil, "expiring"
	}
	if !coversHosts(leaf, hosts) {
		return nil, "hosts changed"
	}
	return &pair, ""
}

func writeSelfSigned(certPath, keyPath string, hosts []string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial number: %w", err)
	}

	t := now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"reportgen (self-signed)"}, CommonName: hosts[0]},
		NotBefore:             t.Add(-5 * time.Minute),
		NotAfter:              t.Add(autoValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	dns, ips := splitHosts(hosts)
	template.DNSNames = dns
	for _, ip := range ips {
		template.IPAddresses = append(template.IPAddresses, net.ParseIP(ip))
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	return nil
}

// splitHosts returns sorted DNS names and normalized IP strings.
func splitHosts(hosts []string) (dns, ips []string) {
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip.String())
		} else {
			dns = append(dns, h)
		}
	}
	slices.Sort(dns)
	slices.Sort(ips)
	return slices.Compact(dns), slices.Compact(ips)
}

func coversHosts(cert *x509.Certificate, hosts []string) bool {
	wantDNS, wantIPs := splitHosts(hosts)

	gotDNS := slices.Clone(cert.DNSNames)
	slices.Sort(gotDNS)
	gotIPs := make([]string, 0, len(cert.IPAddresses))
	for _, ip := range cert.IPAddresses {
		gotIPs = append(gotIPs, ip.String())
	}
	slices.Sort(gotIPs)

	return slices.Equal(wantDNS, slices.Compact(gotDNS)) && slices.Equal(wantIPs, slices.Compact(gotIPs))
}
