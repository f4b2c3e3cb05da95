package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	tlsCaCrt = "tls_ca.crt"
	tlsCrt   = "tls.crt"
	tlsKey   = "tls.key"
)

func joinDir(dir, name string) string { return filepath.Join(dir, name) }

// parseMinVersion maps "1.2"/"1.3" to the crypto/tls constant. Empty means 1.2.
func parseMinVersion(ver string) (uint16, error) {
	switch strings.ToLower(strings.TrimSpace(ver)) {
	case "", "default", "1.2", "tls1.2":
		return tls.VersionTLS12, nil
	case "1.3", "tls1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS min_version %q", ver)
	}
}

// safeReadFile reads p only if it lies inside baseDir.
func safeReadFile(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	if baseDir != "" {
		absBase, _ := filepath.Abs(baseDir)
		absFile, _ := filepath.Abs(clean)
		if !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) && absFile != absBase {
			return nil, errors.New("file path outside of allowed directory")
		}
	}
	return os.ReadFile(clean)
}

// certLoader re-reads the pair on every handshake so rotated certificates
// are picked up without a restart.
func certLoader(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	certDir := filepath.Dir(certFile)
	keyDir := filepath.Dir(keyFile)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certPEM, err := safeReadFile(certDir, certFile)
		if err != nil {
			return nil, err
		}
		keyPEM, err := safeReadFile(keyDir, keyFile)
		if err != nil {
			return nil, err
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		return &cert, err
	}
}

// Validate reports configuration errors without touching the filesystem.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, err := parseMinVersion(c.MinVersion); err != nil {
		return err
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("server.tls: cert_file and key_file must be set together")
	}
	if c.CertFile == "" && c.Dir == "" {
		return errors.New("server.tls: enabled but neither cert_file/key_file nor dir is set")
	}
	return nil
}

// ServerConfig builds the collector's *tls.Config. It returns nil, nil when
// TLS is disabled.
func ServerConfig(c Config) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	minVer, _ := parseMinVersion(c.MinVersion)

	certPath, keyPath := c.CertFile, c.KeyFile
	if certPath == "" {
		certPath = joinDir(c.Dir, tlsCrt)
		keyPath = joinDir(c.Dir, tlsKey)
		if !certificatesExist(certPath, keyPath) {
			if !c.AutoGenerate {
				return nil, fmt.Errorf("server.tls: %s and %s not found and auto_generate is off", certPath, keyPath)
			}
			if err := generate(c); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}

	// Fail at startup rather than on the first handshake.
	if _, err := certLoader(certPath, keyPath)(nil); err != nil {
		return nil, fmt.Errorf("server.tls: load key pair: %w", err)
	}
	return &tls.Config{
		GetCertificate: certLoader(certPath, keyPath),
		MinVersion:     minVer,
	}, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func generate(c Config) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}
	cn := c.CommonName
	if cn == "" {
		cn = "localhost"
	}
	names := c.DNSNames
	if len(names) == 0 {
		names = []string{"localhost"}
	}
	days := c.ValidDays
	if days <= 0 {
		days = 365
	}
	return GenerateSelfSigned(CertConfig{
		CommonName:  cn,
		DNSNames:    names,
		IPAddresses: []string{"127.0.0.1", "::1"},
		NotAfter:    time.Now().AddDate(0, 0, days),
		CertPath:    joinDir(c.Dir, tlsCrt),
		KeyPath:     joinDir(c.Dir, tlsKey),
		CACertPath:  joinDir(c.Dir, tlsCaCrt),
	})
}
