package configuration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfigCreated checks a missing file is written with defaults
func TestDefaultConfigCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.cfg")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if v, _ := cfg.get("Device", "url"); v != "http://192.168.200.157" {
		t.Errorf("Unexpected default device url %q", v)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Default file was not written: %v", err)
	}
	if !strings.Contains(string(content), "[Device]") || !strings.Contains(string(content), "transport = stdio") {
		t.Errorf("Default file missing expected content:\n%s", content)
	}

	// the written file must parse back to the same values
	again, err := loadConfig(path)
	if err != nil {
		t.Fatalf("Reloading defaults failed: %v", err)
	}
	if v, _ := again.get("Keyboard", "poll_attempts"); v != "50" {
		t.Errorf("Expected poll_attempts 50 after reload, got %q", v)
	}
}

func TestParseAndOverride(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "settings.cfg")
	local := filepath.Join(dir, "settings.local.cfg")
	os.WriteFile(base, []byte("; comment\n[Device]\nurl = http://10.0.0.2\ntimeout = 5s\n\n# other\n[Server]\ntransport=http\n"), 0644)
	os.WriteFile(local, []byte("[Device]\nurl = http://10.0.0.3\n"), 0644)

	cfg, err := loadConfig(base)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if err := cfg.loadLocalConfig(local); err != nil {
		t.Fatalf("loadLocalConfig failed: %v", err)
	}
	if v, _ := cfg.get("Device", "url"); v != "http://10.0.0.3" {
		t.Errorf("Local override not applied, got %q", v)
	}
	if v, _ := cfg.get("Server", "transport"); v != "http" {
		t.Errorf("Expected transport http, got %q", v)
	}

	t.Setenv("C64U_URL", "http://from-env")
	cfg.applyEnvironment()
	if v, _ := cfg.get("Device", "url"); v != "http://from-env" {
		t.Errorf("Environment override not applied, got %q", v)
	}
}

func TestTypedGetters(t *testing.T) {
	saved := globalConfig
	defer func() { globalConfig = saved }()

	globalConfig = &Config{settings: map[string]map[string]string{
		"Device": {"timeout": "5s", "retry_count": "4", "bad": "x"},
		"Auth":   {"require_token": "true"},
	}}

	if got := GetDuration("Device", "timeout", time.Second); got != 5*time.Second {
		t.Errorf("GetDuration = %v", got)
	}
	if got := GetInt("Device", "retry_count", 1); got != 4 {
		t.Errorf("GetInt = %d", got)
	}
	if got := GetInt("Device", "bad", 7); got != 7 {
		t.Errorf("GetInt should fall back on parse errors, got %d", got)
	}
	if !GetBool("Auth", "require_token", false) {
		t.Error("GetBool should be true")
	}
	if got := GetString("Missing", "key", "def"); got != "def" {
		t.Errorf("GetString default = %q", got)
	}

	SetString("Device", "url", "http://x")
	if got := GetSection("Device")["url"]; got != "http://x" {
		t.Errorf("SetString not visible in GetSection, got %q", got)
	}
}
