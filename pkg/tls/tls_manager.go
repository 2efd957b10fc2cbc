// Package tls configures HTTPS for the streamable HTTP transport, either from
// certificate files, a generated development certificate or Let's Encrypt.
package tls

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
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antibyte/c64mcp/pkg/configuration"
	"github.com/antibyte/c64mcp/pkg/logger"

	"golang.org/x/crypto/acme/autocert"
)

// Manager decides how the HTTP transport is served
type Manager struct {
	config      *Config
	autocertMgr *autocert.Manager
	tlsConfig   *tls.Config
	initialized bool
}

// Config holds the [TLS] settings
type Config struct {
	EnableTLS          bool
	EnableLetsEncrypt  bool
	Domain             string
	LetsEncryptEmail   string
	CertCacheDir       string
	ForceHTTPSRedirect bool
	CertFile           string
	KeyFile            string
	HTTPPort           string
	HTTPSPort          string
}

// ConfigFromSettings reads the [TLS] section
func ConfigFromSettings() *Config {
	return &Config{
		EnableTLS:          configuration.GetBool("TLS", "enable_tls", false),
		EnableLetsEncrypt:  configuration.GetBool("TLS", "enable_letsencrypt", false),
		Domain:             configuration.GetString("TLS", "domain", ""),
		LetsEncryptEmail:   configuration.GetString("TLS", "letsencrypt_email", ""),
		CertCacheDir:       configuration.GetString("TLS", "cert_cache_dir", "./certs"),
		ForceHTTPSRedirect: configuration.GetBool("TLS", "force_https_redirect", false),
		CertFile:           configuration.GetString("TLS", "cert_file", "./certs/server.crt"),
		KeyFile:            configuration.GetString("TLS", "key_file", "./certs/server.key"),
		HTTPPort:           configuration.GetString("TLS", "http_port", "8080"),
		HTTPSPort:          configuration.GetString("TLS", "https_port", "8443"),
	}
}

// NewManager creates a manager from the global configuration
func NewManager() (*Manager, error) {
	return NewManagerWithConfig(ConfigFromSettings())
}

// NewManagerWithConfig validates config and prepares certificates
func NewManagerWithConfig(config *Config) (*Manager, error) {
	manager := &Manager{config: config}

	if err := manager.validateConfig(); err != nil {
		return nil, fmt.Errorf("TLS configuration validation failed: %w", err)
	}
	if config.EnableTLS {
		if err := manager.initializeTLS(); err != nil {
			return nil, fmt.Errorf("TLS initialization failed: %w", err)
		}
	}
	return manager, nil
}

func (tm *Manager) validateConfig() error {
	if !tm.config.EnableTLS {
		return nil
	}
	if tm.config.EnableLetsEncrypt {
		if strings.TrimSpace(tm.config.Domain) == "" {
			return fmt.Errorf("domain is required when Let's Encrypt is enabled")
		}
		if strings.TrimSpace(tm.config.LetsEncryptEmail) == "" {
			return fmt.Errorf("letsencrypt_email is required when Let's Encrypt is enabled")
		}
		if strings.Contains(tm.config.Domain, "example.com") {
			logger.SecurityWarn("Using example domain - change this in production!")
		}
	}
	if tm.config.HTTPSPort == "" {
		return fmt.Errorf("https_port is required when TLS is enabled")
	}
	return nil
}

func (tm *Manager) initializeTLS() error {
	if tm.config.EnableLetsEncrypt {
		return tm.initializeLetsEncrypt()
	}
	return tm.initializeManualTLS()
}

func (tm *Manager) initializeLetsEncrypt() error {
	logger.Info(logger.AreaSecurity, "Initializing Let's Encrypt for domain: %s", tm.config.Domain)

	if err := os.MkdirAll(tm.config.CertCacheDir, 0700); err != nil {
		return fmt.Errorf("failed to create certificate cache directory: %w", err)
	}

	tm.autocertMgr = &autocert.Manager{
		Cache:      autocert.DirCache(tm.config.CertCacheDir),
		Prompt:     autocert.AcceptTOS,
		Email:      tm.config.LetsEncryptEmail,
		HostPolicy: autocert.HostWhitelist(tm.config.Domain),
	}

	tm.tlsConfig = &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			serverName := hello.ServerName
			if serverName == "" {
				serverName = tm.config.Domain
			}
			if serverName != tm.config.Domain {
				logger.SecurityWarn("TLS request for unauthorized domain: %s", serverName)
				return nil, fmt.Errorf("unauthorized domain: %s", serverName)
			}
			hello.ServerName = serverName
			cert, err := tm.autocertMgr.GetCertificate(hello)
			if err != nil {
				logger.SecurityWarn("Failed to get certificate for %s: %v", serverName, err)
				return nil, err
			}
			return cert, nil
		},
		NextProtos: []string{"h2", "http/1.1", "acme-tls/1"},
		MinVersion: tls.VersionTLS12,
	}

	tm.initialized = true
	logger.Info(logger.AreaSecurity, "Let's Encrypt TLS manager initialized")
	return nil
}

// initializeManualTLS loads the configured key pair, generating a
// self-signed one for local use when neither file exists
func (tm *Manager) initializeManualTLS() error {
	logger.Info(logger.AreaSecurity, "Initializing TLS with cert: %s, key: %s", tm.config.CertFile, tm.config.KeyFile)

	_, certErr := os.Stat(tm.config.CertFile)
	_, keyErr := os.Stat(tm.config.KeyFile)
	switch {
	case errors.Is(certErr, os.ErrNotExist) && errors.Is(keyErr, os.ErrNotExist):
		logger.SecurityWarn("No certificate found, generating a self-signed one")
		if err := tm.GenerateSelfSignedCert(); err != nil {
			return err
		}
	case errors.Is(certErr, os.ErrNotExist):
		return fmt.Errorf("certificate file not found: %s", tm.config.CertFile)
	case errors.Is(keyErr, os.ErrNotExist):
		return fmt.Errorf("key file not found: %s", tm.config.KeyFile)
	}

	cert, err := tls.LoadX509KeyPair(tm.config.CertFile, tm.config.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}
	tm.tlsConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}
	tm.initialized = true
	logger.Info(logger.AreaSecurity, "Manual TLS manager initialized")
	return nil
}

// GetTLSConfig returns the server TLS config, nil when TLS is off
func (tm *Manager) GetTLSConfig() *tls.Config {
	if !tm.initialized || !tm.config.EnableTLS {
		return nil
	}
	return tm.tlsConfig
}

// GetHTTPHandler wraps fallback with the ACME http-01 challenge handler.
// Without Let's Encrypt nil is returned.
func (tm *Manager) GetHTTPHandler(fallback http.Handler) http.Handler {
	if tm.autocertMgr != nil {
		return tm.autocertMgr.HTTPHandler(fallback)
	}
	return nil
}

// NeedsHTTPServer reports whether a plain HTTP listener must run next to
// the HTTPS one
func (tm *Manager) NeedsHTTPServer() bool {
	return tm.config.EnableTLS && (tm.config.EnableLetsEncrypt || tm.config.ForceHTTPSRedirect)
}

// GetHTTPSRedirectHandler redirects plain HTTP requests to HTTPS
func (tm *Manager) GetHTTPSRedirectHandler() http.Handler {
	if !tm.config.ForceHTTPSRedirect {
		return nil
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}

		httpsURL := "https://" + host
		if tm.config.HTTPSPort != "443" {
			httpsURL = fmt.Sprintf("https://%s:%s", host, tm.config.HTTPSPort)
		}
		httpsURL += r.RequestURI

		logger.Debug(logger.AreaSecurity, "Redirecting to HTTPS: %s", httpsURL)
		http.Redirect(w, r, httpsURL, http.StatusMovedPermanently)
	})
}

// IsEnabled returns true if TLS is enabled
func (tm *Manager) IsEnabled() bool {
	return tm.config.EnableTLS
}

// GetHTTPPort returns the plain HTTP port
func (tm *Manager) GetHTTPPort() string {
	return tm.config.HTTPPort
}

// GetHTTPSPort returns the HTTPS port
func (tm *Manager) GetHTTPSPort() string {
	return tm.config.HTTPSPort
}

// GenerateSelfSignedCert writes an ECDSA certificate valid for one year
// for localhost and the configured domain
func (tm *Manager) GenerateSelfSignedCert() error {
	if tm.config.EnableLetsEncrypt {
		return fmt.Errorf("cannot generate self-signed certificate when Let's Encrypt is enabled")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial: %w", err)
	}

	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"c64mcp"}, CommonName: "localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
	}
	if d := strings.TrimSpace(tm.config.Domain); d != "" {
		template.DNSNames = append(template.DNSNames, d)
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}

	if err := writePEM(tm.config.CertFile, "CERTIFICATE", der, 0644); err != nil {
		return err
	}
	if err := writePEM(tm.config.KeyFile, "EC PRIVATE KEY", keyDER, 0600); err != nil {
		return err
	}
	logger.Info(logger.AreaSecurity, "Self-signed certificate written to %s", tm.config.CertFile)
	return nil
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
