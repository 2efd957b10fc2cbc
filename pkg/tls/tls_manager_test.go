package tls

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestManagerDisabled(t *testing.T) {
	manager, err := NewManagerWithConfig(&Config{HTTPPort: "8080", HTTPSPort: "8443"})
	if err != nil {
		t.Fatalf("Failed to create TLS manager: %v", err)
	}
	if manager.IsEnabled() {
		t.Error("TLS should be disabled")
	}
	if manager.GetTLSConfig() != nil {
		t.Error("TLS config should be nil when TLS is disabled")
	}
	if manager.GetHTTPHandler(http.NotFoundHandler()) != nil {
		t.Error("ACME handler should be nil without Let's Encrypt")
	}
	if manager.NeedsHTTPServer() {
		t.Error("No extra HTTP server needed without TLS")
	}
}

func TestConfigValidation(t *testing.T) {
	manager := &Manager{config: &Config{
		EnableTLS:         true,
		EnableLetsEncrypt: true,
		LetsEncryptEmail:  "test@c64.org",
		HTTPSPort:         "443",
	}}
	if err := manager.validateConfig(); err == nil {
		t.Error("Expected validation error for empty domain")
	}

	manager.config.Domain = "c64.org"
	manager.config.LetsEncryptEmail = ""
	if err := manager.validateConfig(); err == nil {
		t.Error("Expected validation error for empty email")
	}

	manager.config.LetsEncryptEmail = "test@c64.org"
	if err := manager.validateConfig(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestSelfSignedCertificate(t *testing.T) {
	dir := t.TempDir()
	config := &Config{
		EnableTLS: true,
		CertFile:  filepath.Join(dir, "certs", "server.crt"),
		KeyFile:   filepath.Join(dir, "certs", "server.key"),
		HTTPSPort: "8443",
		Domain:    "c64.lan",
	}

	manager, err := NewManagerWithConfig(config)
	if err != nil {
		t.Fatalf("Failed to create TLS manager: %v", err)
	}
	tlsConfig := manager.GetTLSConfig()
	if tlsConfig == nil || len(tlsConfig.Certificates) != 1 {
		t.Fatal("Expected a loaded certificate")
	}

	// a second manager loads the files written by the first
	again, err := NewManagerWithConfig(config)
	if err != nil {
		t.Fatalf("Reloading certificate failed: %v", err)
	}
	if again.GetTLSConfig() == nil {
		t.Error("Expected TLS config on reload")
	}
}

func TestMissingKeyFile(t *testing.T) {
	dir := t.TempDir()
	config := &Config{
		CertFile:  filepath.Join(dir, "server.crt"),
		KeyFile:   filepath.Join(dir, "server.key"),
		HTTPSPort: "8443",
	}
	if err := (&Manager{config: config}).GenerateSelfSignedCert(); err != nil {
		t.Fatalf("GenerateSelfSignedCert failed: %v", err)
	}

	config.EnableTLS = true
	config.KeyFile = filepath.Join(dir, "other.key")
	if _, err := NewManagerWithConfig(config); err == nil {
		t.Error("Expected error when only the key file is missing")
	}
}

func TestRedirectHandler(t *testing.T) {
	manager := &Manager{config: &Config{EnableTLS: true, ForceHTTPSRedirect: true, HTTPSPort: "8443"}}
	if !manager.NeedsHTTPServer() {
		t.Error("Redirect requires an HTTP server")
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://c64.lan:8080/mcp?x=1", nil)
	manager.GetHTTPSRedirectHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusMovedPermanently {
		t.Fatalf("Expected 301, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "https://c64.lan:8443/mcp?x=1" {
		t.Errorf("Unexpected location %q", loc)
	}

	manager.config.ForceHTTPSRedirect = false
	if manager.GetHTTPSRedirectHandler() != nil {
		t.Error("Redirect handler should be nil when disabled")
	}
}
