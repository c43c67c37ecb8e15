// Package config provides configuration management for the segmenter service.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wonderpush/segmenter/internal/types"
)

// EnvPrefix prefixes every environment variable read by the service.
const EnvPrefix = "SEG"

// Config is the complete service configuration.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServiceConfig holds configuration for the gRPC segmenter service.
type ServiceConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxSnapshotSize int           `mapstructure:"max_snapshot_size"`
	CacheSize       int           `mapstructure:"cache_size"`
	// StrictApps lists applications whose ad-hoc segments are parsed with
	// the strict grammar instead of the tolerant one.
	StrictApps []string `mapstructure:"strict_apps"`
}

// DatabaseConfig holds the segment catalogue connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// LogConfig selects the root logger level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Host:            "0.0.0.0",
			Port:            50051,
			MetricsAddr:     ":9090",
			RequestTimeout:  10 * time.Second,
			MaxSnapshotSize: types.MaxSnapshotSize,
			CacheSize:       1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports SEG_HMAC_SECRET (single) and SEG_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check %s_HMAC_SECRET and %s_HMAC_SECRET_* for conflicts)", secretID, EnvPrefix, EnvPrefix)
		}
		secrets[secretID] = decoded
		return nil
	}

	single := EnvPrefix + "_HMAC_SECRET"
	if val := os.Getenv(single); val != "" {
		if err := add(single, val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets keep old and new keys valid during rotation
	for i := 1; ; i++ {
		key := fmt.Sprintf("%s_HMAC_SECRET_%d", EnvPrefix, i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}

	return secretID, secret, nil
}
