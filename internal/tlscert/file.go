package tlscert

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// fileSource serves an operator-provided key pair and picks up rotated files
// on the next handshake after their modification time changes.
type fileSource struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu      sync.Mutex
	cert    *tls.Certificate
	certMod time.Time
	keyMod  time.Time
}

func newFileSource(cfg Config, logger *slog.Logger) (*fileSource, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, errors.New("server.tls_cert_file and server.tls_key_file are required when server.tls_mode=file")
	}
	if err := checkKeyFile(cfg.KeyFile); err != nil {
		return nil, err
	}
	s := &fileSource{certFile: cfg.CertFile, keyFile: cfg.KeyFile, logger: logger}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileSource) TLSConfig() *tls.Config {
	cfg := baseConfig()
	cfg.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		return s.load()
	}
	return cfg
}

// load returns the cached pair unless either file changed on disk. A failed
// reload keeps serving the previous pair.
func (s *fileSource) load() (*tls.Certificate, error) {
	certInfo, err := statFile(s.certFile)
	if err != nil {
		return s.fallback(fmt.Errorf("certificate file: %w", err))
	}
	keyInfo, err := statFile(s.keyFile)
	if err != nil {
		return s.fallback(fmt.Errorf("key file: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cert != nil && certInfo.ModTime().Equal(s.certMod) && keyInfo.ModTime().Equal(s.keyMod) {
		return s.cert, nil
	}

	pair, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err != nil {
		if s.cert != nil {
			s.logger.Error("failed to reload certificate, keeping previous",
				slog.String("cert_file", s.certFile),
				slog.String("error", err.Error()))
			return s.cert, nil
		}
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if s.cert != nil {
		s.logger.Info("certificate reloaded", slog.String("cert_file", s.certFile))
	}
	s.cert = &pair
	s.certMod = certInfo.ModTime()
	s.keyMod = keyInfo.ModTime()
	return s.cert, nil
}

func (s *fileSource) fallback(err error) (*tls.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cert == nil {
		return nil, err
	}
	s.logger.Error("certificate files unavailable, keeping previous", slog.String("error", err.Error()))
	return s.cert, nil
}

func (s *fileSource) String() string {
	return fmt.Sprintf("file (cert=%s, key=%s)", s.certFile, s.keyFile)
}

func (s *fileSource) Close() error { return nil }

func statFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return info, nil
}

// checkKeyFile rejects private keys readable by group or others.
func checkKeyFile(path string) error {
	info, err := statFile(path)
	if err != nil {
		return fmt.Errorf("invalid key file: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %o (want 0600 or 0400)", path, perm)
	}
	return nil
}
