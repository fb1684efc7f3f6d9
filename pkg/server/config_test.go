package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, 15*time.Minute, cfg.ProcessingTimeout.Duration)
	assert.Equal(t, 5, cfg.MaxConcurrentJobs)
	assert.Equal(t, int64(50<<20), cfg.MaxUploadSize)
	assert.Equal(t, []string{".gcode", ".gco", ".g"}, cfg.AllowedExtensions)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = 9000
api_prefix = "/api/v2"
processing_timeout = "90s"
file_retention = "2h"
max_concurrent_jobs = 2
cors_origins = ["*"]
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/api/v2", cfg.APIPrefix)
	assert.Equal(t, 90*time.Second, cfg.ProcessingTimeout.Duration)
	assert.Equal(t, 2*time.Hour, cfg.FileRetention.Duration)
	assert.Equal(t, 2, cfg.Jobs().MaxConcurrent)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "colour = \"red\"\n"},
		{"bad duration", "processing_timeout = \"soon\"\n"},
		{"bad port", "port = 70000\n"},
		{"bad prefix", "api_prefix = \"api\"\n"},
		{"bad level", "log_level = \"loud\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "server.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BRICKLAYERS_PORT":                     "8080",
		"BRICKLAYERS_PROCESSING_TIMEOUT":       "120",
		"BRICKLAYERS_FILE_RETENTION_HOURS":     "6",
		"BRICKLAYERS_CLEANUP_INTERVAL_MINUTES": "15",
		"BRICKLAYERS_CORS_ORIGINS":             "http://a.test, http://b.test,",
		"BRICKLAYERS_REDIS_URL":                "redis://localhost:6379/0",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.ProcessingTimeout.Duration)
	assert.Equal(t, 6*time.Hour, cfg.FileRetention.Duration)
	assert.Equal(t, 15*time.Minute, cfg.CleanupInterval.Duration)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)

	env["BRICKLAYERS_PORT"] = "eighty"
	assert.Error(t, cfg.applyEnv(lookup))
}

func TestConfigConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UploadDir = "/data/in"
	cfg.MaxQueuedJobs = 10

	st := cfg.Storage()
	assert.Equal(t, "/data/in", st.UploadDir)
	assert.Equal(t, 24*time.Hour, st.Retention)

	jc := cfg.Jobs()
	assert.Equal(t, 10, jc.MaxQueued)
	assert.Equal(t, 15*time.Minute, jc.Timeout)
}
