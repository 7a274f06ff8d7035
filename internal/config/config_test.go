package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/refolio.db", cfg.DBPath)
	assert.False(t, cfg.AuthEnabled())
	assert.False(t, cfg.GoogleEnabled())
	assert.Equal(t, "http://localhost:8080/auth/callback", cfg.CallbackURL())
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := load(envOf(map[string]string{
		"PORT":                 "9090",
		"BASE_URL":             "https://refol.io/",
		"JWT_SECRET":           "0123456789abcdef0123",
		"GOOGLE_CLIENT_ID":     "id",
		"GOOGLE_CLIENT_SECRET": "secret",
		"S3_BUCKET":            "media",
		"REDIS_ADDR":           "localhost:6379",
		"REDIS_DB":             "2",
		"LOG_LEVEL":            "debug",
		"SECURE_COOKIES":       "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://refol.io", cfg.BaseURL)
	assert.True(t, cfg.AuthEnabled())
	assert.True(t, cfg.GoogleEnabled())
	assert.True(t, cfg.Auth.SecureCookies)
	assert.Equal(t, "media", cfg.Storage.S3.Bucket)
	assert.Equal(t, 2, cfg.Redis.DB)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refolio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
db_path: /var/lib/refolio.db
github:
  token: from-file
storage:
  s3:
    bucket: portfolio
    endpoint: http://minio:9000
`), 0o600))

	cfg, err := load(envOf(map[string]string{
		FileEnv: path,
		"PORT":  "7001",
	}))
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Port)
	assert.Equal(t, "/var/lib/refolio.db", cfg.DBPath)
	assert.Equal(t, "from-file", cfg.GitHub.Token)
	assert.Equal(t, "portfolio", cfg.Storage.S3.Bucket)
	assert.Equal(t, "http://minio:9000", cfg.Storage.S3.Endpoint)
	assert.Equal(t, "us-east-1", cfg.Storage.S3.Region)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non-numeric port", map[string]string{"PORT": "eighty"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"short secret", map[string]string{"JWT_SECRET": "short"}},
		{"google id without secret", map[string]string{"GOOGLE_CLIENT_ID": "id"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "chatty"}},
		{"missing file", map[string]string{FileEnv: "/nonexistent/refolio.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(envOf(tt.env))
			assert.Error(t, err)
		})
	}
}
