package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Delivery.MaxAttempts != 3 {
		t.Errorf("Expected 3 delivery attempts, got %d", cfg.Delivery.MaxAttempts)
	}
	if cfg.Delivery.AttemptTimeout != 30*time.Second {
		t.Errorf("Expected 30s attempt timeout, got %v", cfg.Delivery.AttemptTimeout)
	}
	if cfg.Naming.Timeout != 15*time.Second {
		t.Errorf("Expected 15s naming timeout, got %v", cfg.Naming.Timeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DELIVERY_MAX_ATTEMPTS", "5")
	t.Setenv("DELIVERY_RETRY_DELAY", "250ms")
	t.Setenv("CONVERSATION_LOG_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Expected port 9999, got %s", cfg.Port)
	}
	if cfg.Delivery.MaxAttempts != 5 {
		t.Errorf("Expected 5 attempts, got %d", cfg.Delivery.MaxAttempts)
	}
	if cfg.Delivery.RetryDelay != 250*time.Millisecond {
		t.Errorf("Expected 250ms retry delay, got %v", cfg.Delivery.RetryDelay)
	}
	if cfg.ConversationLog.Enabled {
		t.Error("Expected conversation log disabled")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "7070"
backend_url: "http://backend:8000"
delivery:
  attempt_timeout: 10s
  retry_delay: 500ms
  max_attempts: 2
conversation_log:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("INSTANTAGENT_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "7070" {
		t.Errorf("Expected port 7070, got %s", cfg.Port)
	}
	if cfg.BackendURL != "http://backend:8000" {
		t.Errorf("Unexpected backend url %s", cfg.BackendURL)
	}
	if cfg.Delivery.AttemptTimeout != 10*time.Second {
		t.Errorf("Expected 10s attempt timeout, got %v", cfg.Delivery.AttemptTimeout)
	}
	if cfg.Delivery.MaxAttempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", cfg.Delivery.MaxAttempts)
	}
	if cfg.ConversationLog.Enabled {
		t.Error("Expected conversation log disabled by file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: \"7070\"\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("INSTANTAGENT_CONFIG", path)
	t.Setenv("PORT", "6060")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "6060" {
		t.Errorf("Expected env to win over file, got %s", cfg.Port)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("delivery:\n  attempt_timeout: soon\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("INSTANTAGENT_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for unparseable duration")
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Delivery.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation failure for zero attempts")
	}
}

func TestSendBudget(t *testing.T) {
	d := DeliveryConfig{
		AttemptTimeout: 30 * time.Second,
		RetryDelay:     2 * time.Second,
		MaxAttempts:    3,
	}
	if got := d.SendBudget(); got != 94*time.Second {
		t.Errorf("Expected 94s budget, got %v", got)
	}
}
