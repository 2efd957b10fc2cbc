package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antibyte/c64mcp/pkg/configuration"
)

var testDir string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "c64mcp-logger")
	if err != nil {
		panic(err)
	}
	testDir = dir
	if err := configuration.Initialize(filepath.Join(dir, "settings.cfg")); err != nil {
		panic(err)
	}
	code := m.Run()
	Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

// useLogger installs a fresh global logger writing to name
func useLogger(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(testDir, name)
	configuration.SetString("Debug", "log_file", path)
	l, err := newLogger()
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	Close()
	globalLogger = l
	return path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestAreaFiltering(t *testing.T) {
	configuration.SetString("Debug", "log_level", "DEBUG")
	configuration.SetString("Debug", "log_mcp", "true")
	configuration.SetString("Debug", "log_device", "false")
	path := useLogger(t, "areas.log")

	MCPDebug("tool %s called", "read_memory")
	DeviceDebug("GET /v1/version")
	DeviceWarn("retrying %d", 2)

	content := readLog(t, path)
	if !strings.Contains(content, "DEBUG") || !strings.Contains(content, "[MCP] tool read_memory called") {
		t.Errorf("MCP entry missing:\n%s", content)
	}
	if strings.Contains(content, "GET /v1/version") {
		t.Errorf("Disabled area was logged:\n%s", content)
	}
	// warnings pass regardless of the area switch
	if !strings.Contains(content, "[DEVICE] retrying 2") {
		t.Errorf("Warning missing:\n%s", content)
	}

	EnableArea(AreaDevice)
	DeviceDebug("now visible")
	DisableArea(AreaMCP)
	MCPDebug("now hidden")
	content = readLog(t, path)
	if !strings.Contains(content, "now visible") || strings.Contains(content, "now hidden") {
		t.Errorf("Runtime switches ignored:\n%s", content)
	}
}

func TestLevelFiltering(t *testing.T) {
	configuration.SetString("Debug", "log_level", "WARN")
	configuration.SetString("Debug", "log_general", "true")
	path := useLogger(t, "level.log")

	Info(AreaGeneral, "below level")
	Error(AreaGeneral, "above level")

	content := readLog(t, path)
	if strings.Contains(content, "below level") || !strings.Contains(content, "above level") {
		t.Errorf("Level not applied:\n%s", content)
	}
}

func TestRotation(t *testing.T) {
	configuration.SetString("Debug", "log_level", "INFO")
	configuration.SetString("Debug", "max_log_size_mb", "0")
	defer configuration.SetString("Debug", "max_log_size_mb", "10")
	path := useLogger(t, "rotate.log")

	Error(AreaGeneral, "first")
	Error(AreaGeneral, "second")

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("Expected rotated file: %v", err)
	}
	if content := readLog(t, path + ".1"); !strings.Contains(content, "second") {
		t.Errorf("Rotated file holds %q", content)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"WARNING": WARN,
		"error":   ERROR,
		"bogus":   INFO,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
