// Package tlscert supplies the certificate behind the HTTPS report server.
package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
)

// Mode selects where the server certificate comes from.
type Mode string

const (
	ModeOff  Mode = "off"
	ModeFile Mode = "file"
	// ModeAuto generates and persists a self-signed certificate.
	ModeAuto Mode = "auto"
)

// ParseMode maps a server.tls_mode value to a Mode. Empty means off.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeOff:
		return ModeOff, nil
	case ModeFile:
		return ModeFile, nil
	case ModeAuto, "selfsigned":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unsupported TLS mode %q (valid modes: off, file, auto)", s)
	}
}

// DefaultHosts are the names a generated certificate covers when none are set.
var DefaultHosts = []string{"localhost", "127.0.0.1", "::1"}

type Config struct {
	Mode Mode

	CertFile string
	KeyFile  string

	// AutoCertDir holds server.crt and server.key in auto mode.
	AutoCertDir string
	Hosts       []string
}

// Source hands out the server's tls.Config.
type Source interface {
	TLSConfig() *tls.Config
	String() string
	Close() error
}

// New builds the Source for cfg.Mode. ModeOff returns a nil Source.
func New(cfg Config, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Mode {
	case ModeOff, "":
		return nil, nil
	case ModeFile:
		src, err := newFileSource(cfg, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case ModeAuto:
		src, err := newAutoSource(cfg, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported TLS mode %q", cfg.Mode)
	}
}

// MinVersion is the lowest protocol version the report server accepts.
const MinVersion = tls.VersionTLS13

func baseConfig() *tls.Config {
	return &tls.Config{MinVersion: MinVersion}
}
