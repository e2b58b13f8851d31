package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flujos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
addr: ":9090"
marca: Clínica Sol
log: {level: debug, format: json}
storage: {driver: redis, redis_addr: "localhost:6379"}
engine: {adapter_timeout: 5s, max_steps: 50}
expiry: {enabled: true, max_idle: 24h, policy: error}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "Clínica Sol", cfg.Marca)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, DriverRedis, cfg.Storage.Driver)
	assert.Equal(t, ".flujos", cfg.Storage.Dir, "unset keys keep their defaults")
	assert.Equal(t, 5*time.Second, cfg.Engine.AdapterTimeout)
	assert.Equal(t, 30*time.Second, cfg.Engine.LockTTL)
	assert.Equal(t, 24*time.Hour, cfg.Expiry.MaxIdle)
	assert.Equal(t, "@every 10m", cfg.Expiry.Schedule)
}

func TestLoad_MissingFiles(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err, "a missing default file means defaults")
	assert.Equal(t, Default(), cfg)

	_, err = Load("nope.yaml")
	assert.Error(t, err, "an explicit path must exist")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FLUJOS_ADDR":            ":7000",
		"FLUJOS_STORAGE_DRIVER":  "postgres",
		"FLUJOS_POSTGRES_URL":    "postgres://localhost/flujos",
		"FLUJOS_EXPIRY_MAX_IDLE": "1h",
		"FLUJOS_EXPIRY_ENABLED":  "true",
		"FLUJOS_MAX_STEPS":       "20",
		"FLUJOS_MAX_INPUT_SIZE":  "1024",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Expiry.MaxIdle)
	assert.True(t, cfg.Expiry.Enabled)
	assert.Equal(t, 20, cfg.Engine.MaxSteps)
	assert.Equal(t, 1024, cfg.Engine.MaxInputSize)
	assert.NoError(t, cfg.Validate())

	bad := Default()
	err := bad.applyEnv(func(k string) (string, bool) {
		if k == "FLUJOS_LOCK_TTL" {
			return "soon", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "FLUJOS_LOCK_TTL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "unknown storage.driver"},
		{"negative input size", func(c *Config) { c.Engine.MaxInputSize = -1 }, "max_input_size"},
		{"redis without addr", func(c *Config) { c.Storage.Driver = DriverRedis }, "redis_addr"},
		{"postgres without url", func(c *Config) { c.Storage.Driver = DriverPostgres }, "postgres_url"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad policy", func(c *Config) { c.Expiry.Enabled = true; c.Expiry.Policy = "completada" }, "expiry.policy"},
		{"bad schedule", func(c *Config) { c.Expiry.Enabled = true; c.Expiry.Schedule = "whenever" }, "expiry.schedule"},
		{"disabled expiry ignores schedule", func(c *Config) { c.Expiry.Schedule = "whenever" }, ""},
		{"zero steps", func(c *Config) { c.Engine.MaxSteps = 0 }, "max_steps"},
		{"short key", func(c *Config) { c.Privacy.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("short")) }, "32 bytes"},
		{"key not base64", func(c *Config) { c.Privacy.EncryptionKey = "%%%" }, "privacy.encryption_key"},
		{"bad fallback", func(c *Config) {
			c.Privacy.EncryptionKey = base64.StdEncoding.EncodeToString(make([]byte, 32))
			c.Privacy.FallbackKeys = []string{"x"}
		}, "fallback_keys[0]"},
		{"bad mask pattern", func(c *Config) { c.Privacy.MaskKeys = []string{"("} }, "privacy.mask_keys"},
		{"valid privacy", func(c *Config) {
			c.Privacy.EncryptionKey = base64.StdEncoding.EncodeToString(make([]byte, 32))
			c.Privacy.MaskKeys = []string{"email", "telefono"}
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
