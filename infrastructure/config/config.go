// Package config loads node configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Feature names toggled through ENABLED_FEATURES.
const (
	FeatureOpenAPI    = "openapi"
	FeatureMetrics    = "metrics"
	FeatureMigrations = "migrations"
)

var knownFeatures = map[string]bool{
	FeatureOpenAPI:    true,
	FeatureMetrics:    true,
	FeatureMigrations: true,
}

var knownLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Config holds all node configuration.
type Config struct {
	// Document store
	DBURI         string
	DBNamePrimary string
	DBNameData    string

	// Feature flags
	EnabledFeatures []string

	// Logging
	LogLevel string

	// Trust anchor (subscription + revocation authority)
	TrustAnchorBaseURL   string
	TrustAnchorPublicKey string // 66 hex chars, compressed secp256k1

	// Node identity
	NodeSecretKey      string // 64 hex chars
	NodePublicEndpoint string

	// Listeners
	WebPort     int
	MetricsPort int
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		DBURI:         getEnv("DB_URI", "mongodb://localhost:27017"),
		DBNamePrimary: getEnv("DB_NAME_PRIMARY", "nildb"),
		DBNameData:    getEnv("DB_NAME_DATA", "nildb_data"),

		EnabledFeatures: getEnvList("ENABLED_FEATURES", nil),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),

		TrustAnchorBaseURL:   getEnv("TRUST_ANCHOR_BASE_URL", ""),
		TrustAnchorPublicKey: strings.ToLower(getEnv("TRUST_ANCHOR_PUBLIC_KEY", "")),

		NodeSecretKey:      strings.ToLower(getEnv("NODE_SECRET_KEY", "")),
		NodePublicEndpoint: getEnv("NODE_PUBLIC_ENDPOINT", ""),

		WebPort:     getEnvInt("WEB_PORT", 8080),
		MetricsPort: getEnvInt("METRICS_PORT", 9091),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and value shapes.
func (c *Config) Validate() error {
	if c.DBURI == "" {
		return fmt.Errorf("DB_URI is required")
	}
	if c.DBNamePrimary == "" || c.DBNameData == "" {
		return fmt.Errorf("DB_NAME_PRIMARY and DB_NAME_DATA are required")
	}
	if c.DBNamePrimary == c.DBNameData {
		return fmt.Errorf("DB_NAME_PRIMARY and DB_NAME_DATA must differ")
	}
	if !knownLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	for _, feature := range c.EnabledFeatures {
		if !knownFeatures[feature] {
			return fmt.Errorf("unknown feature %q in ENABLED_FEATURES", feature)
		}
	}
	if err := requireHex("TRUST_ANCHOR_PUBLIC_KEY", c.TrustAnchorPublicKey, 66); err != nil {
		return err
	}
	if err := requireHex("NODE_SECRET_KEY", c.NodeSecretKey, 64); err != nil {
		return err
	}
	if c.TrustAnchorBaseURL == "" {
		return fmt.Errorf("TRUST_ANCHOR_BASE_URL is required")
	}
	if c.NodePublicEndpoint == "" {
		return fmt.Errorf("NODE_PUBLIC_ENDPOINT is required")
	}
	if c.WebPort <= 0 || c.MetricsPort <= 0 {
		return fmt.Errorf("WEB_PORT and METRICS_PORT must be positive")
	}
	return nil
}

// FeatureEnabled reports whether a feature flag is set.
func (c *Config) FeatureEnabled(name string) bool {
	for _, feature := range c.EnabledFeatures {
		if feature == name {
			return true
		}
	}
	return false
}

func requireHex(name, value string, length int) error {
	if len(value) != length {
		return fmt.Errorf("%s must be %d hex characters", name, length)
	}
	if _, err := hex.DecodeString(value); err != nil {
		return fmt.Errorf("%s must be hex: %v", name, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
