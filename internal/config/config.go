// Package config loads daemon configuration from a JSON file with
// environment overrides.
//
// Configuration is resolved in three layers: built-in defaults, then the
// config file (missing file is not an error), then SOCKRPC_* environment
// variables. Every field has a working default so a bare daemon starts
// without any file at all.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/codefionn/sockrpc/internal/consts"
)

// Config represents daemon and client configuration
type Config struct {
	SocketPath        string `json:"socket_path"`
	SocketPermissions string `json:"socket_permissions"` // octal string, e.g. "0600"
	ResponseSocketDir string `json:"response_socket_dir"`

	MaxMessageSize        int     `json:"max_message_size"`
	DefaultTimeout        float64 `json:"default_timeout_seconds"`
	MaxConcurrentHandlers int     `json:"max_concurrent_handlers"`
	MaxPendingRequests    int     `json:"max_pending_requests"`

	CleanupOnStart    bool `json:"cleanup_on_start"`
	CleanupOnShutdown bool `json:"cleanup_on_shutdown"`

	ManifestPath  string `json:"manifest_path"`
	ManifestWatch bool   `json:"manifest_watch"`

	LogLevel string `json:"log_level"` // debug, info, warn, error, none
	LogPath  string `json:"log_path"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, "sockrpc")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "sockrpc")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "sockrpc")
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "sockrpc")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "sockrpc")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "sockrpc")
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		SocketPath:            filepath.Join(os.TempDir(), "sockrpc.sock"),
		SocketPermissions:     "0600",
		ResponseSocketDir:     os.TempDir(),
		MaxMessageSize:        consts.MaxDatagramSize,
		DefaultTimeout:        consts.DefaultRequestTimeout.Seconds(),
		MaxConcurrentHandlers: consts.DefaultMaxConcurrentHandlers,
		MaxPendingRequests:    consts.DefaultMaxPendingRequests,
		CleanupOnStart:        true,
		CleanupOnShutdown:     true,
		ManifestPath:          "",
		ManifestWatch:         false,
		LogLevel:              "info",
		LogPath:               "",
	}
}

// Load loads configuration from file, then applies SOCKRPC_* environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			config.applyEnv()
			return config, config.Validate()
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// Ensure critical fields have defaults if still empty
	if config.SocketPath == "" {
		config.SocketPath = filepath.Join(os.TempDir(), "sockrpc.sock")
	}
	if config.SocketPermissions == "" {
		config.SocketPermissions = "0600"
	}
	if config.ResponseSocketDir == "" {
		config.ResponseSocketDir = os.TempDir()
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = consts.MaxDatagramSize
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = consts.DefaultRequestTimeout.Seconds()
	}
	if config.MaxConcurrentHandlers <= 0 {
		config.MaxConcurrentHandlers = consts.DefaultMaxConcurrentHandlers
	}
	if config.MaxPendingRequests <= 0 {
		config.MaxPendingRequests = consts.DefaultMaxPendingRequests
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	config.applyEnv()
	return config, config.Validate()
}

// applyEnv overrides fields from SOCKRPC_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("SOCKRPC_SOCKET_PATH"); v != "" {
		c.SocketPath = v
	}
	if v := os.Getenv("SOCKRPC_SOCKET_PERMISSIONS"); v != "" {
		c.SocketPermissions = v
	}
	if v := os.Getenv("SOCKRPC_RESPONSE_SOCKET_DIR"); v != "" {
		c.ResponseSocketDir = v
	}
	if v := os.Getenv("SOCKRPC_MAX_MESSAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxMessageSize = n
		}
	}
	if v := os.Getenv("SOCKRPC_DEFAULT_TIMEOUT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.DefaultTimeout = f
		}
	}
	if v := os.Getenv("SOCKRPC_MAX_CONCURRENT_HANDLERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxConcurrentHandlers = n
		}
	}
	if v := os.Getenv("SOCKRPC_MAX_PENDING_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxPendingRequests = n
		}
	}
	if v := os.Getenv("SOCKRPC_MANIFEST_PATH"); v != "" {
		c.ManifestPath = v
	}
	if v := os.Getenv("SOCKRPC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SOCKRPC_LOG_PATH"); v != "" {
		c.LogPath = v
	}
}

// Validate checks field values that cannot be repaired by defaulting.
func (c *Config) Validate() error {
	if _, err := c.FileMode(); err != nil {
		return err
	}
	if c.MaxMessageSize > consts.MaxDatagramSize {
		return fmt.Errorf("max_message_size %d exceeds datagram limit %d",
			c.MaxMessageSize, consts.MaxDatagramSize)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error", "none",
		"DEBUG", "INFO", "WARN", "WARNING", "ERROR", "NONE":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// FileMode parses SocketPermissions as an octal file mode.
func (c *Config) FileMode() (os.FileMode, error) {
	s := strings.TrimPrefix(c.SocketPermissions, "0o")
	mode, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid socket_permissions %q: %w", c.SocketPermissions, err)
	}
	if mode > 0777 {
		return 0, fmt.Errorf("invalid socket_permissions %q: out of range", c.SocketPermissions)
	}
	return os.FileMode(mode), nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}

// DefaultLogPath returns the default log file location under the state
// directory, for callers that want file logging without configuring a path.
func DefaultLogPath() string {
	return filepath.Join(defaultStateDir(), "sockrpc.log")
}

// DefaultPidPath returns the default PID file location under the state
// directory.
func DefaultPidPath() string {
	return filepath.Join(defaultStateDir(), "sockrpcd.pid")
}
