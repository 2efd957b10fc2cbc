package configuration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds the sectioned key/value settings of settings.cfg
type Config struct {
	settings map[string]map[string]string
	filePath string
	mu       sync.RWMutex
}

var (
	globalConfig *Config
	once         sync.Once
)

// sectionOrder is the order sections are written in
var sectionOrder = []string{"Device", "Server", "Auth", "JWT", "TLS", "Database", "Keyboard", "Monitor", "Debug"}

// envOverrides maps environment variables onto configuration keys
var envOverrides = []struct {
	env, section, key string
}{
	{"C64U_URL", "Device", "url"},
	{"C64U_PASSWORD", "Device", "password"},
	{"C64MCP_TRANSPORT", "Server", "transport"},
	{"C64MCP_HTTP_PORT", "Server", "http_port"},
	{"C64MCP_JWT_SECRET", "JWT", "secret_key"},
	{"C64MCP_DB", "Database", "path"},
}

// Initialize loads the global configuration. A missing file is created with
// defaults. settings.local.cfg next to it overrides values, and the
// environment overrides both.
func Initialize(configPath string) error {
	var err error
	once.Do(func() {
		globalConfig, err = loadConfig(configPath)
		if err != nil {
			return
		}
		localConfigPath := filepath.Join(filepath.Dir(configPath), "settings.local.cfg")
		if _, statErr := os.Stat(localConfigPath); statErr == nil {
			if localErr := globalConfig.loadLocalConfig(localConfigPath); localErr != nil {
				err = fmt.Errorf("failed to load %s: %w", localConfigPath, localErr)
				return
			}
		}
		globalConfig.applyEnvironment()
	})
	return err
}

// loadConfig reads a configuration file, writing the defaults first if it
// does not exist yet
func loadConfig(filePath string) (*Config, error) {
	config := &Config{
		settings: make(map[string]map[string]string),
		filePath: filePath,
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		config.createDefaultConfig()
		if err := config.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := config.parse(file); err != nil {
		return nil, err
	}
	return config, nil
}

// loadLocalConfig applies overrides from a second file
func (c *Config) loadLocalConfig(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parse(file)
}

// parse reads INI-style lines into the settings map. Later values win.
func (c *Config) parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	currentSection := ""

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = line[1 : len(line)-1]
			if c.settings[currentSection] == nil {
				c.settings[currentSection] = make(map[string]string)
			}
			continue
		}

		if strings.Contains(line, "=") && currentSection != "" {
			parts := strings.SplitN(line, "=", 2)
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			c.settings[currentSection][key] = value
		}
	}
	return scanner.Err()
}

// applyEnvironment copies set environment variables over file values
func (c *Config) applyEnvironment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			if c.settings[o.section] == nil {
				c.settings[o.section] = make(map[string]string)
			}
			c.settings[o.section][o.key] = v
		}
	}
}

// createDefaultConfig fills in the settings a fresh installation starts with
func (c *Config) createDefaultConfig() {
	c.settings["Device"] = map[string]string{
		"url":         "http://192.168.200.157",
		"password":    "",
		"timeout":     "30s",
		"retry_count": "2",
		"retry_delay": "250ms",
		"reset_delay": "3s",
	}

	c.settings["Server"] = map[string]string{
		"name":         "c64u-mcp-server",
		"transport":    "stdio",
		"http_port":    "8080",
		"mcp_path":     "/mcp",
		"monitor_path": "/ws/monitor",

		"trust_proxy_headers": "false",
	}

	c.settings["Auth"] = map[string]string{
		"require_token":          "false",
		"password_hash":          "",
		"token_expiration_hours": "24",
	}

	c.settings["JWT"] = map[string]string{
		"secret_key": "ENVIRONMENT_VARIABLE_NOT_SET_FALLBACK",
		"issuer":     "c64mcp",
	}

	c.settings["TLS"] = map[string]string{
		"enable_tls":           "false",
		"enable_letsencrypt":   "false",
		"domain":               "",
		"letsencrypt_email":    "",
		"cert_cache_dir":       "./certs",
		"force_https_redirect": "false",
		"cert_file":            "./certs/server.crt",
		"key_file":             "./certs/server.key",
		"http_port":            "8080",
		"https_port":           "8443",
	}

	c.settings["Database"] = map[string]string{
		"path":           "c64mcp.db",
		"enable_history": "true",
		"history_limit":  "20",
		"max_tool_calls": "1000",
	}

	c.settings["Keyboard"] = map[string]string{
		"wait_ms":       "100",
		"poll_interval": "100ms",
		"poll_attempts": "50",
	}

	c.settings["Monitor"] = map[string]string{
		"enabled":                 "true",
		"screen_poll_interval":    "2s",
		"max_clients":             "20",
		"max_connects_per_minute": "30",
		"ping_period":             "30s",
		"write_wait":              "10s",
	}

	c.settings["Debug"] = map[string]string{
		"enable_debug_logging": "true",
		"log_level":            "INFO",
		"log_file":             "c64mcp.log",
		"max_log_size_mb":      "10",
		"log_rotation_count":   "3",
		"log_device":           "true",
		"log_mcp":              "true",
		"log_basic":            "false",
		"log_keyboard":         "false",
		"log_screen":           "false",
		"log_loader":           "true",
		"log_auth":             "true",
		"log_security":         "true",
		"log_database":         "false",
		"log_monitor":          "false",
		"log_config":           "true",
		"log_general":          "true",
	}
}

// saveToFile writes the configuration back to its file
func (c *Config) saveToFile() error {
	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintln(w, "; C64 Ultimate MCP server configuration")
	fmt.Fprintln(w, "; Generated automatically - modify with care")
	fmt.Fprintln(w, ";")
	fmt.Fprintln(w)

	for _, section := range sectionOrder {
		settings, exists := c.settings[section]
		if !exists {
			continue
		}
		fmt.Fprintf(w, "[%s]\n", section)
		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "%s = %s\n", key, settings[key])
		}
		fmt.Fprintln(w)
	}

	return w.Flush()
}

func (c *Config) get(section, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sectionMap, exists := c.settings[section]; exists {
		value, exists := sectionMap[key]
		return value, exists
	}
	return "", false
}

// GetString returns a string setting or defaultValue
func GetString(section, key, defaultValue string) string {
	if globalConfig == nil {
		return defaultValue
	}
	if value, ok := globalConfig.get(section, key); ok {
		return value
	}
	return defaultValue
}

// GetInt returns an integer setting or defaultValue
func GetInt(section, key string, defaultValue int) int {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(str); err == nil {
		return value
	}
	return defaultValue
}

// GetBool returns a boolean setting or defaultValue
func GetBool(section, key string, defaultValue bool) bool {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(str); err == nil {
		return value
	}
	return defaultValue
}

// GetDuration returns a duration setting or defaultValue
func GetDuration(section, key string, defaultValue time.Duration) time.Duration {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(str); err == nil {
		return value
	}
	return defaultValue
}

// GetSection returns a copy of all key-value pairs of a section
func GetSection(sectionName string) map[string]string {
	result := make(map[string]string)
	if globalConfig == nil {
		return result
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()
	for key, value := range globalConfig.settings[sectionName] {
		result[key] = value
	}
	return result
}

// SetString sets a value in memory; call Save to persist it
func SetString(section, key, value string) {
	if globalConfig == nil {
		return
	}

	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()
	if globalConfig.settings[section] == nil {
		globalConfig.settings[section] = make(map[string]string)
	}
	globalConfig.settings[section][key] = value
}

// Save writes the current configuration to its file
func Save() error {
	if globalConfig == nil {
		return fmt.Errorf("configuration not initialized")
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()
	return globalConfig.saveToFile()
}
