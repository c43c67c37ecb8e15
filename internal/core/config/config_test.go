package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

const (
	testSecretID    = "0123456789abcdef0123456789abcdef"
	testSecret      = testSecretID + ":dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
	otherSecretID   = "fedcba9876543210fedcba9876543210"
	otherSecret     = otherSecretID + ":YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
	reusedIDSecret  = testSecretID + ":YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
	shortSecretBody = testSecretID + ":c2hvcnQ="
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHMACSecrets(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 0 {
			t.Errorf("expected 0 secrets, got %d", len(secrets))
		}
	})

	t.Run("single secret", func(t *testing.T) {
		t.Setenv("SEG_HMAC_SECRET", testSecret)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 1 {
			t.Errorf("expected 1 secret, got %d", len(secrets))
		}
		if _, ok := secrets[testSecretID]; !ok {
			t.Errorf("secret_id not found in map")
		}
	})

	t.Run("multiple numbered secrets", func(t *testing.T) {
		t.Setenv("SEG_HMAC_SECRET_1", testSecret)
		t.Setenv("SEG_HMAC_SECRET_2", otherSecret)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 2 {
			t.Errorf("expected 2 secrets, got %d", len(secrets))
		}
	})

	t.Run("numbering stops at first gap", func(t *testing.T) {
		t.Setenv("SEG_HMAC_SECRET_1", testSecret)
		t.Setenv("SEG_HMAC_SECRET_3", otherSecret)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 1 {
			t.Errorf("expected 1 secret, got %d", len(secrets))
		}
	})

	errorCases := []struct {
		name string
		env  map[string]string
	}{
		{"invalid format", map[string]string{"SEG_HMAC_SECRET": "invalid_format"}},
		{"short secret_id", map[string]string{"SEG_HMAC_SECRET": "short:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"}},
		{"non-hex secret_id", map[string]string{"SEG_HMAC_SECRET": "0123456789abcdefGHIJKLMNOPQRSTUV:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"}},
		{"short secret", map[string]string{"SEG_HMAC_SECRET": shortSecretBody}},
		{"duplicate in numbered", map[string]string{"SEG_HMAC_SECRET_1": testSecret, "SEG_HMAC_SECRET_2": reusedIDSecret}},
		{"duplicate between single and numbered", map[string]string{"SEG_HMAC_SECRET": testSecret, "SEG_HMAC_SECRET_1": reusedIDSecret}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := HMACSecrets(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseHMACSecretWithID(t *testing.T) {
	secretID, secret, err := ParseHMACSecretWithID(" " + testSecret + "\n")
	if err != nil {
		t.Fatalf("ParseHMACSecretWithID failed: %v", err)
	}
	if secretID != testSecretID {
		t.Errorf("secret_id = %s, want %s", secretID, testSecretID)
	}
	if len(secret) < 32 {
		t.Errorf("secret too short: %d bytes", len(secret))
	}

	for _, bad := range []string{
		testSecretID,
		"tooshort:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w",
		testSecretID + ":not-valid-base64!!!",
		shortSecretBody,
	} {
		if _, _, err := ParseHMACSecretWithID(bad); err == nil {
			t.Errorf("ParseHMACSecretWithID(%q) error = nil, want error", bad)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("", nil)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		def := Default()
		if cfg.Service.Host != def.Service.Host {
			t.Errorf("host = %s, want %s", cfg.Service.Host, def.Service.Host)
		}
		if cfg.Service.Port != 50051 {
			t.Errorf("port = %d, want 50051", cfg.Service.Port)
		}
		if cfg.Service.RequestTimeout != 10*time.Second {
			t.Errorf("request_timeout = %v, want 10s", cfg.Service.RequestTimeout)
		}
		if cfg.Service.CacheSize != 1024 {
			t.Errorf("cache_size = %d, want 1024", cfg.Service.CacheSize)
		}
		if cfg.Service.MetricsAddr != ":9090" {
			t.Errorf("metrics_addr = %s, want :9090", cfg.Service.MetricsAddr)
		}
		if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
			t.Errorf("log = %+v, want info/json", cfg.Log)
		}
		if cfg.Database.URL != "" {
			t.Errorf("database.url = %q, want empty", cfg.Database.URL)
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("SEG_SERVICE_PORT", "9999")
		t.Setenv("SEG_SERVICE_HOST", "127.0.0.1")
		t.Setenv("SEG_SERVICE_REQUEST_TIMEOUT", "250ms")
		t.Setenv("SEG_SERVICE_STRICT_APPS", "app-1,app-2")
		t.Setenv("SEG_DATABASE_URL", "sqlite://seg.db")

		cfg, err := LoadConfig("", nil)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Service.Port != 9999 {
			t.Errorf("port = %d, want 9999", cfg.Service.Port)
		}
		if cfg.Service.Host != "127.0.0.1" {
			t.Errorf("host = %s, want 127.0.0.1", cfg.Service.Host)
		}
		if cfg.Service.RequestTimeout != 250*time.Millisecond {
			t.Errorf("request_timeout = %v, want 250ms", cfg.Service.RequestTimeout)
		}
		if !cfg.Service.IsStrictApp("app-2") || cfg.Service.IsStrictApp("app-3") {
			t.Errorf("strict_apps = %v, want [app-1 app-2]", cfg.Service.StrictApps)
		}
		if cfg.Database.URL != "sqlite://seg.db" {
			t.Errorf("database.url = %q, want sqlite://seg.db", cfg.Database.URL)
		}
	})

	t.Run("config file", func(t *testing.T) {
		path := writeConfig(t, `service:
  port: 9090
  cache_size: 0
  strict_apps: [app-1]
log:
  level: debug
  format: text
`)
		cfg, err := LoadConfig(path, nil)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Service.Port != 9090 {
			t.Errorf("port = %d, want 9090", cfg.Service.Port)
		}
		if cfg.Service.CacheSize != 0 {
			t.Errorf("cache_size = %d, want 0", cfg.Service.CacheSize)
		}
		if !cfg.Service.IsStrictApp("app-1") {
			t.Errorf("strict_apps = %v, want [app-1]", cfg.Service.StrictApps)
		}
		if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
			t.Errorf("log = %+v, want debug/text", cfg.Log)
		}
	})

	t.Run("environment overrides config file", func(t *testing.T) {
		t.Setenv("SEG_SERVICE_PORT", "8080")
		path := writeConfig(t, "service:\n  port: 9090\n")

		cfg, err := LoadConfig(path, nil)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Service.Port != 8080 {
			t.Errorf("port = %d, want 8080", cfg.Service.Port)
		}
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("SEG_SERVICE_PORT", "8080")
		t.Setenv("SEG_DATABASE_URL", "sqlite://env.db")

		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.Int("port", 50051, "")
		flags.String("db-url", "", "")
		flags.String("log-level", "info", "")
		if err := flags.Parse([]string{"--port", "7070"}); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfig("", flags)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Service.Port != 7070 {
			t.Errorf("port = %d, want 7070", cfg.Service.Port)
		}
		if cfg.Database.URL != "sqlite://env.db" {
			t.Errorf("database.url = %q, want the environment value", cfg.Database.URL)
		}
	})

	t.Run("secret in config file rejected", func(t *testing.T) {
		path := writeConfig(t, "service:\n  hmac_secret: \"should_be_rejected\"\n")

		_, err := LoadConfig(path, nil)
		if err == nil {
			t.Fatal("expected error for secret in config file")
		}
		if got, want := err.Error(), "HMAC secrets not allowed in config files (use SEG_HMAC_SECRET environment variable)"; got != want {
			t.Errorf("error = %q, want %q", got, want)
		}
	})

	t.Run("secret in environment accepted", func(t *testing.T) {
		t.Setenv("SEG_HMAC_SECRET", testSecret)
		if _, err := LoadConfig("", nil); err != nil {
			t.Errorf("LoadConfig failed: %v", err)
		}
	})

	invalid := []struct {
		name string
		env  string
		val  string
	}{
		{"port too large", "SEG_SERVICE_PORT", "70000"},
		{"negative timeout", "SEG_SERVICE_REQUEST_TIMEOUT", "-1s"},
		{"zero snapshot size", "SEG_SERVICE_MAX_SNAPSHOT_SIZE", "0"},
		{"negative cache size", "SEG_SERVICE_CACHE_SIZE", "-1"},
		{"unknown log format", "SEG_LOG_FORMAT", "xml"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			if _, err := LoadConfig("", nil); err == nil {
				t.Errorf("expected error for %s=%s", tt.env, tt.val)
			}
		})
	}

	t.Run("missing config file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}
