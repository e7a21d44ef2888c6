package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codefionn/sockrpc/internal/consts"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SocketPath == "" {
		t.Errorf("default socket path should not be empty")
	}
	if cfg.SocketPermissions != "0600" {
		t.Errorf("default socket permissions = %q, want 0600", cfg.SocketPermissions)
	}
	if cfg.MaxMessageSize != consts.MaxDatagramSize {
		t.Errorf("default max message size = %d, want %d", cfg.MaxMessageSize, consts.MaxDatagramSize)
	}
	if cfg.DefaultTimeout != consts.DefaultRequestTimeout.Seconds() {
		t.Errorf("default timeout = %v, want %v", cfg.DefaultTimeout, consts.DefaultRequestTimeout.Seconds())
	}
	if cfg.MaxConcurrentHandlers != consts.DefaultMaxConcurrentHandlers {
		t.Errorf("default handler cap = %d", cfg.MaxConcurrentHandlers)
	}
	if !cfg.CleanupOnStart || !cfg.CleanupOnShutdown {
		t.Errorf("socket cleanup should default to enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("missing file should yield defaults, got log_level=%q", cfg.LogLevel)
	}
}

func TestLoadPartialFile(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "config.json")

	content := `{
  "socket_path": "/run/myapp/rpc.sock",
  "max_concurrent_handlers": 8,
  "log_level": "debug"
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SocketPath != "/run/myapp/rpc.sock" {
		t.Errorf("socket_path = %q", cfg.SocketPath)
	}
	if cfg.MaxConcurrentHandlers != 8 {
		t.Errorf("max_concurrent_handlers = %d, want 8", cfg.MaxConcurrentHandlers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.LogLevel)
	}
	// Unset fields keep their defaults
	if cfg.SocketPermissions != "0600" {
		t.Errorf("unset socket_permissions should default, got %q", cfg.SocketPermissions)
	}
	if cfg.MaxPendingRequests != consts.DefaultMaxPendingRequests {
		t.Errorf("unset max_pending_requests should default, got %d", cfg.MaxPendingRequests)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Errorf("invalid JSON should error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SOCKRPC_SOCKET_PATH", "/tmp/env-override.sock")
	t.Setenv("SOCKRPC_MAX_CONCURRENT_HANDLERS", "3")
	t.Setenv("SOCKRPC_DEFAULT_TIMEOUT", "0.5")
	t.Setenv("SOCKRPC_LOG_LEVEL", "error")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SocketPath != "/tmp/env-override.sock" {
		t.Errorf("env socket path not applied: %q", cfg.SocketPath)
	}
	if cfg.MaxConcurrentHandlers != 3 {
		t.Errorf("env handler cap not applied: %d", cfg.MaxConcurrentHandlers)
	}
	if cfg.DefaultTimeout != 0.5 {
		t.Errorf("env timeout not applied: %v", cfg.DefaultTimeout)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("env log level not applied: %q", cfg.LogLevel)
	}
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("SOCKRPC_MAX_MESSAGE_SIZE", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxMessageSize != consts.MaxDatagramSize {
		t.Errorf("garbage env value should be ignored, got %d", cfg.MaxMessageSize)
	}
}

func TestFileMode(t *testing.T) {
	tests := []struct {
		perms   string
		want    os.FileMode
		wantErr bool
	}{
		{"0600", 0600, false},
		{"0660", 0660, false},
		{"600", 0600, false},
		{"0o644", 0644, false},
		{"0777", 0777, false},
		{"abc", 0, true},
		{"1777", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.perms, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.SocketPermissions = tt.perms
			mode, err := cfg.FileMode()
			if tt.wantErr {
				if err == nil {
					t.Errorf("FileMode(%q) should fail", tt.perms)
				}
				return
			}
			if err != nil {
				t.Fatalf("FileMode(%q): %v", tt.perms, err)
			}
			if mode != tt.want {
				t.Errorf("FileMode(%q) = %o, want %o", tt.perms, mode, tt.want)
			}
		})
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	if err := cfg.Validate(); err == nil {
		t.Errorf("unknown log level should fail validation")
	}

	cfg = DefaultConfig()
	cfg.MaxMessageSize = consts.MaxDatagramSize * 2
	if err := cfg.Validate(); err == nil {
		t.Errorf("oversized max_message_size should fail validation")
	}

	cfg = DefaultConfig()
	cfg.SocketPermissions = "rwx"
	if err := cfg.Validate(); err == nil {
		t.Errorf("non-octal permissions should fail validation")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.SocketPath = "/tmp/custom.sock"
	cfg.ManifestPath = "/etc/sockrpc/manifest.yaml"
	cfg.ManifestWatch = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SocketPath != cfg.SocketPath {
		t.Errorf("socket_path round trip: %q vs %q", loaded.SocketPath, cfg.SocketPath)
	}
	if loaded.ManifestPath != cfg.ManifestPath {
		t.Errorf("manifest_path round trip: %q vs %q", loaded.ManifestPath, cfg.ManifestPath)
	}
	if !loaded.ManifestWatch {
		t.Errorf("manifest_watch should survive round trip")
	}
}
