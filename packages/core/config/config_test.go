package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sqlite3", cfg.Storage.Driver)
	assert.Equal(t, 30000, cfg.HTTP.Timeout)
	assert.True(t, cfg.HTTP.GetValidateSSL())
	assert.True(t, cfg.HTTP.GetFollowRedirects())
	assert.Equal(t, "memory", cfg.Scheduler.Registry)
	assert.NoError(t, cfg.Validate())
}

func TestFindAndLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	content := `storage:
  driver: postgres
  dsn: postgres://localhost/hitrun
http:
  timeout: 5000
  rate_limit: 2.5
  validate_ssl: false
scheduler:
  registry: redis
  redis_addr: localhost:6379
notify:
  slack_webhook: https://hooks.slack.com/services/x
log_level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hitrun.yaml"), []byte(content), 0644))

	cfg, err := FindAndLoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/hitrun", cfg.Storage.DSN)
	assert.Equal(t, 5000, cfg.HTTP.Timeout)
	assert.Equal(t, 2.5, cfg.HTTP.RateLimit)
	assert.False(t, cfg.HTTP.GetValidateSSL())
	assert.Equal(t, "redis", cfg.Scheduler.Registry)
	assert.Equal(t, "hitrun:tasks", cfg.Scheduler.RedisKey, "unset keys keep defaults")
	assert.Equal(t, "failure", cfg.Notify.NotifyOn)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestFindAndLoadConfig_JSON(t *testing.T) {
	dir := t.TempDir()
	content := `{"storage": {"driver": "memory"}, "http": {"timeout": 1000}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hitrun.config.json"), []byte(content), 0644))

	cfg, err := FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 1000, cfg.HTTP.Timeout)
}

func TestFindAndLoadConfig_Missing(t *testing.T) {
	cfg, err := FindAndLoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unclosed"), 0644))

	_, err := LoadConfig("", path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HITRUN_STORAGE_DRIVER":    "postgres",
		"HITRUN_STORAGE_DSN":       "postgres://db/hitrun",
		"HITRUN_HTTP_TIMEOUT":      "2500",
		"HITRUN_HTTP_RATE_LIMIT":   "10",
		"HITRUN_HTTP_VALIDATE_SSL": "false",
		"HITRUN_REDIS_ADDR":        "redis:6379",
		"HITRUN_LOG_LEVEL":         "",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://db/hitrun", cfg.Storage.DSN)
	assert.Equal(t, 2500, cfg.HTTP.Timeout)
	assert.Equal(t, 10.0, cfg.HTTP.RateLimit)
	assert.False(t, cfg.HTTP.GetValidateSSL())
	assert.Equal(t, "redis:6379", cfg.Scheduler.RedisAddr)
	assert.Equal(t, "warn", cfg.LogLevel, "empty values are ignored")
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "HITRUN_HTTP_TIMEOUT" {
			return "soon", true
		}
		return "", false
	}
	assert.Error(t, DefaultConfig().ApplyEnv(lookup))
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HITRUN_TEST_ONLY_SLACK_CHANNEL=#qa\nHITRUN_LOG_FORMAT=json\n"), 0644))
	t.Setenv("HITRUN_LOG_FORMAT", "text")

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, "#qa", os.Getenv("HITRUN_TEST_ONLY_SLACK_CHANNEL"))
	assert.Equal(t, "text", cfg.LogFormat, "existing environment wins over .env")
	_ = os.Unsetenv("HITRUN_TEST_ONLY_SLACK_CHANNEL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"memory storage", func(c *Config) { c.Storage = StorageConfig{Driver: "memory"} }, false},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, true},
		{"missing dsn", func(c *Config) { c.Storage.DSN = "" }, true},
		{"redis without addr", func(c *Config) { c.Scheduler.Registry = "redis" }, true},
		{"unknown registry", func(c *Config) { c.Scheduler.Registry = "etcd" }, true},
		{"negative rate", func(c *Config) { c.HTTP.RateLimit = -1 }, true},
		{"unknown notify policy", func(c *Config) { c.Notify.NotifyOn = "sometimes" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	merged := base.Merge(&Config{
		Storage: StorageConfig{DSN: "other.db"},
		HTTP:    HTTPConfig{RateLimit: 3, ValidateSSL: BoolPtr(false)},
	})

	assert.Equal(t, "sqlite3", merged.Storage.Driver)
	assert.Equal(t, "other.db", merged.Storage.DSN)
	assert.Equal(t, 3.0, merged.HTTP.RateLimit)
	assert.False(t, merged.HTTP.GetValidateSSL())
	assert.Equal(t, "hitrun.db", base.Storage.DSN, "base is not modified")
	assert.Same(t, base, base.Merge(nil))
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hitrun.yaml")
	cfg := DefaultConfig()
	cfg.Notify.SlackChannel = "#alerts"
	require.NoError(t, cfg.SaveConfig(path))

	loaded, err := LoadConfig("", path)
	require.NoError(t, err)
	assert.Equal(t, "#alerts", loaded.Notify.SlackChannel)
}
