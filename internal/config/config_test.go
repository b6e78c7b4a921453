package config_test

import (
	"os"
	"path/filepath"
	"pipi/backend/internal/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipi.toml"), []byte(body), 0o600))
	return dir
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := writeConfig(t, `
[server]
addr = ":9090"

[storage]
backend = "memory"

[auth]
jwt_secret = "file-secret"

[proximity]
threshold = 0.5
policy = "nearest"
search_timeout = "30s"

[activity]
join_mode = "literal"
`)

	cfg, used, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "pipi.toml"), filepath.Clean(used))
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 0.5, cfg.Proximity.Threshold)
	assert.Equal(t, "nearest", cfg.Proximity.Policy)
	assert.Equal(t, 30*time.Second, cfg.Proximity.SearchTimeout)
	assert.Equal(t, config.JoinModeLiteral, cfg.Activity.JoinMode)

	// untouched keys keep their defaults
	assert.Equal(t, config.DismissDelay, cfg.Proximity.DismissDelay)
	assert.True(t, cfg.Proximity.RequireMembership)
	assert.Equal(t, 5432, cfg.PostgreSQL.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := writeConfig(t, `
[auth]
jwt_secret = "file-secret"
`)
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("STORAGE_BACKEND", "memory")

	cfg, _, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 6543, cfg.PostgreSQL.Port)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")

	cfg, used, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, used)
	assert.Equal(t, config.JoinModeConditional, cfg.Activity.JoinMode)
	assert.Equal(t, config.ProximityThresholdMeters, cfg.Proximity.Threshold)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown backend", "[auth]\njwt_secret = \"s\"\n[storage]\nbackend = \"mongo\"\n"},
		{"unknown join mode", "[auth]\njwt_secret = \"s\"\n[activity]\njoin_mode = \"greedy\"\n"},
		{"missing secret", "[storage]\nbackend = \"memory\"\n"},
		{"non-positive threshold", "[auth]\njwt_secret = \"s\"\n[proximity]\nthreshold = -1.0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			_, _, err := config.Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestPostgreSQLDSN(t *testing.T) {
	p := config.Default().PostgreSQL

	assert.Equal(t, "host=localhost user=user password=password dbname=pipidb port=5432 sslmode=disable", p.DSN())
}
