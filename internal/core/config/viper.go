package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps persistent CLI flags to configuration keys.
var flagKeys = map[string]string{
	"db-url":     "database.url",
	"log-level":  "log.level",
	"log-format": "log.format",
	"host":       "service.host",
	"port":       "service.port",
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
// flags may be nil; only flags named in flagKeys are bound.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("service.host", def.Service.Host)
	v.SetDefault("service.port", def.Service.Port)
	v.SetDefault("service.metrics_addr", def.Service.MetricsAddr)
	v.SetDefault("service.request_timeout", def.Service.RequestTimeout.String())
	v.SetDefault("service.max_snapshot_size", def.Service.MaxSnapshotSize)
	v.SetDefault("service.cache_size", def.Service.CacheSize)
	v.SetDefault("service.strict_apps", []string{})
	v.SetDefault("database.url", "")
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range and positive limits.
func validateConfig(cfg *Config) error {
	if cfg.Service.Port <= 0 || cfg.Service.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Service.Port)
	}
	if cfg.Service.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Service.RequestTimeout)
	}
	if cfg.Service.MaxSnapshotSize <= 0 {
		return fmt.Errorf("max_snapshot_size must be positive, got %d", cfg.Service.MaxSnapshotSize)
	}
	if cfg.Service.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative, got %d", cfg.Service.CacheSize)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text, got %q", cfg.Log.Format)
	}
	return nil
}

func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("service.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use %s_HMAC_SECRET environment variable)", EnvPrefix)
	}
	return nil
}

// IsStrictApp reports whether appID is configured for strict parsing.
func (c *ServiceConfig) IsStrictApp(appID string) bool {
	for _, id := range c.StrictApps {
		if id == appID {
			return true
		}
	}
	return false
}
