package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "opennhi", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Worker.Concurrency)
	assert.Equal(t, 500, cfg.Worker.BatchSize)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Minute, cfg.Scheduler.CheckInterval)
	assert.Equal(t, 10000, cfg.Ingest.MaxRecords)
	assert.False(t, cfg.Encryption.IsConfigured())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("WORKER_FETCH_TIMEOUT", "2m")
	t.Setenv("SCHEDULER_CHECK_INTERVAL", "30s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Minute, cfg.Worker.FetchTimeout)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.CheckInterval)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_ConfigFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7070\nlog:\n  level: warn\n"), 0o600))

	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("NHI_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("NHI_CONFIG_FILE", "/nonexistent/config.yaml")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_ServerPort(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())
	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestValidate_EncryptionKeyFormats(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		wantFormat string
		wantErr    bool
	}{
		{"raw 32 bytes", "0123456789abcdef0123456789abcdef", "raw", false},
		{"hex 64 chars", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff", "hex", false},
		{"base64 44 chars", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=", "base64", false},
		{"bad length", "short", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENCRYPTION_KEY", tt.key)
			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			// the format is auto-detected from the key length
			assert.Equal(t, tt.wantFormat, cfg.Encryption.KeyFormat)
		})
	}
}

func TestValidate_Production(t *testing.T) {
	base := func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		t.Setenv("APP_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
		t.Setenv("CORS_ALLOWED_ORIGINS", "https://nhi.example.com")
		t.Setenv("DB_SSLMODE", "require")
		t.Setenv("REDIS_PASSWORD", "secret")
	}

	t.Run("valid", func(t *testing.T) {
		base(t)
		_, err := Load()
		assert.NoError(t, err)
	})

	t.Run("wildcard cors rejected", func(t *testing.T) {
		base(t)
		t.Setenv("CORS_ALLOWED_ORIGINS", "*")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("db ssl required", func(t *testing.T) {
		base(t)
		t.Setenv("DB_SSLMODE", "disable")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("encryption key required", func(t *testing.T) {
		base(t)
		t.Setenv("APP_ENCRYPTION_KEY", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("debug rejected", func(t *testing.T) {
		base(t)
		t.Setenv("APP_DEBUG", "true")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Name: "opennhi", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=opennhi sslmode=disable", c.DSN())
}
