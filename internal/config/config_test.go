package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:      "development",
		LogLevel: "info",
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second},
		Auth:     AuthConfig{AllowClientProviderKeys: true},
		Cache:    CacheConfig{Backend: "memory", KeyStrategy: "default"},
		Realtime: RealtimeConfig{MaxBufferMs: 5000, MaxIdleSeconds: 60},
	}
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_RejectsOutOfRangePort(t *testing.T) {
	c := validConfig()
	c.Server.Port = 0
	assert.Error(t, c.Validate())

	c2 := validConfig()
	c2.Server.Port = 70000
	assert.Error(t, c2.Validate())
}

func TestValidate_RejectsBadCacheBackend(t *testing.T) {
	c := validConfig()
	c.Cache.Backend = "disk"
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsRemoteBackendWithoutRedisURL(t *testing.T) {
	c := validConfig()
	c.Cache.Backend = "remote"
	c.Cache.RedisURL = ""
	assert.Error(t, c.Validate())

	c.Cache.RedisURL = "redis://localhost:6379"
	assert.NoError(t, c.Validate())
}

func TestValidate_RejectsBadKeyStrategy(t *testing.T) {
	c := validConfig()
	c.Cache.KeyStrategy = "fuzzy"
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsNonPositiveRealtimeBuffers(t *testing.T) {
	c := validConfig()
	c.Realtime.MaxBufferMs = 0
	assert.Error(t, c.Validate())

	c2 := validConfig()
	c2.Realtime.MaxIdleSeconds = 0
	assert.Error(t, c2.Validate())
}

func TestValidate_RejectsNoProviderKeyAndNoClientKeysAllowed(t *testing.T) {
	c := validConfig()
	c.Auth.AllowClientProviderKeys = false
	c.OpenAI.APIKey = ""
	c.Gemini.APIKey = ""
	assert.Error(t, c.Validate())

	c.OpenAI.APIKey = "sk-test"
	assert.NoError(t, c.Validate())
}

func TestValidate_RejectsEmptyLogLevel(t *testing.T) {
	c := validConfig()
	c.LogLevel = "  "
	assert.Error(t, c.Validate())
}

func TestEnvFromOSOrDefault_FallsBackWhenUnset(t *testing.T) {
	assert.Equal(t, "fallback", EnvFromOSOrDefault("LLMGATEWAY_TEST_UNSET_VAR", "fallback"))
}

func TestLoad_ParsesStaticGatewayKeysFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
auth:
  allow_client_provider_keys: false
  keys:
    - display_name: ops-dashboard
      requests_per_hour: 1000
      requests_per_day: 10000
      rpm_per_minute: 30
providers:
  openai:
    api_key: sk-test
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Auth.Keys, 1)
	assert.Equal(t, "ops-dashboard", cfg.Auth.Keys[0].DisplayName)
	assert.Equal(t, int64(1000), cfg.Auth.Keys[0].RequestsPerHour)
	assert.Equal(t, 30, cfg.Auth.Keys[0].RPMPerMinute)
}

func TestLoad_DefaultsToNoGatewayKeysWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  openai:\n    api_key: sk-test\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Auth.Keys)
}
