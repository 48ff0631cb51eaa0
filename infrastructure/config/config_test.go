package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_URI", "mongodb://localhost:27017")
	t.Setenv("DB_NAME_PRIMARY", "nildb")
	t.Setenv("DB_NAME_DATA", "nildb_data")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ENABLED_FEATURES", "metrics, openapi")
	t.Setenv("TRUST_ANCHOR_BASE_URL", "https://anchor.example.com")
	t.Setenv("TRUST_ANCHOR_PUBLIC_KEY", strings.Repeat("ab", 33))
	t.Setenv("NODE_SECRET_KEY", strings.Repeat("cd", 32))
	t.Setenv("NODE_PUBLIC_ENDPOINT", "https://node.example.com")
	t.Setenv("WEB_PORT", "8080")
	t.Setenv("METRICS_PORT", "9091")
}

func TestLoadValid(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "nildb", cfg.DBNamePrimary)
	assert.Equal(t, []string{"metrics", "openapi"}, cfg.EnabledFeatures)
	assert.True(t, cfg.FeatureEnabled(FeatureMetrics))
	assert.False(t, cfg.FeatureEnabled(FeatureMigrations))
	assert.Equal(t, 8080, cfg.WebPort)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad log level", "LOG_LEVEL", "trace"},
		{"unknown feature", "ENABLED_FEATURES", "metrics,telepathy"},
		{"short anchor key", "TRUST_ANCHOR_PUBLIC_KEY", "02ab"},
		{"non-hex secret", "NODE_SECRET_KEY", strings.Repeat("zz", 32)},
		{"missing endpoint", "NODE_PUBLIC_ENDPOINT", ""},
		{"missing anchor url", "TRUST_ANCHOR_BASE_URL", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setValidEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsSharedDatabaseName(t *testing.T) {
	setValidEnv(t)
	t.Setenv("DB_NAME_DATA", "nildb")

	_, err := Load()
	require.Error(t, err)
}

func TestGetEnvIntFallsBack(t *testing.T) {
	setValidEnv(t)
	t.Setenv("WEB_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.WebPort)
}
