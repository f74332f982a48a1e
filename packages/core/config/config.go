package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the hitrun configuration
type Config struct {
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	HTTP      HTTPConfig      `yaml:"http" json:"http"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify" json:"notify"`
	LogLevel  string          `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	LogFormat string          `yaml:"log_format,omitempty" json:"log_format,omitempty"`
}

type StorageConfig struct {
	// Driver is sqlite3, postgres or memory
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

type HTTPConfig struct {
	Timeout         int     `yaml:"timeout,omitempty" json:"timeout,omitempty"`       // milliseconds
	RateLimit       float64 `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	ValidateSSL     *bool   `yaml:"validate_ssl,omitempty" json:"validate_ssl,omitempty"`
	FollowRedirects *bool   `yaml:"follow_redirects,omitempty" json:"follow_redirects,omitempty"`
	Proxy           string  `yaml:"proxy,omitempty" json:"proxy,omitempty"`
}

type SchedulerConfig struct {
	// Registry is memory or redis
	Registry  string `yaml:"registry" json:"registry"`
	RedisAddr string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	RedisKey  string `yaml:"redis_key,omitempty" json:"redis_key,omitempty"`
	TaskFile  string `yaml:"task_file,omitempty" json:"task_file,omitempty"`
}

type NotifyConfig struct {
	SlackWebhook string `yaml:"slack_webhook,omitempty" json:"slack_webhook,omitempty"`
	SlackChannel string `yaml:"slack_channel,omitempty" json:"slack_channel,omitempty"`
	TeamsWebhook string `yaml:"teams_webhook,omitempty" json:"teams_webhook,omitempty"`
	NotifyOn     string `yaml:"notify_on,omitempty" json:"notify_on,omitempty"`
}

// BoolPtr returns a pointer to a bool value
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *HTTPConfig) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *HTTPConfig) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	"hitrun.yaml",
	"hitrun.yml",
	".hitrun.yaml",
	".hitrun.yml",
	"hitrun.config.json",
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: "sqlite3",
			DSN:    "hitrun.db",
		},
		HTTP: HTTPConfig{
			Timeout: 30000, // 30 seconds
		},
		Scheduler: SchedulerConfig{
			Registry: "memory",
			RedisKey: "hitrun:tasks",
		},
		Notify: NotifyConfig{
			NotifyOn: "failure",
		},
		LogLevel:  "warn",
		LogFormat: "text",
	}
}

// Load reads .env from dir, then the config file (path, or the first of
// ConfigFilenames found in dir), then applies HITRUN_* overrides.
func Load(dir, path string) (*Config, error) {
	if err := LoadDotEnv(dir); err != nil {
		return nil, err
	}

	cfg, err := LoadConfig(dir, path)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads dir/.env into the process environment when it exists.
// Variables already set are not overridden.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from the specified path or searches dir
func LoadConfig(dir, path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(dir)
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, config)
	} else {
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return config, nil
}

// ApplyEnv overrides fields from HITRUN_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("HITRUN_STORAGE_DRIVER", &c.Storage.Driver)
	str("HITRUN_STORAGE_DSN", &c.Storage.DSN)
	str("HITRUN_HTTP_PROXY", &c.HTTP.Proxy)
	str("HITRUN_SCHEDULER_REGISTRY", &c.Scheduler.Registry)
	str("HITRUN_REDIS_ADDR", &c.Scheduler.RedisAddr)
	str("HITRUN_REDIS_KEY", &c.Scheduler.RedisKey)
	str("HITRUN_TASK_FILE", &c.Scheduler.TaskFile)
	str("HITRUN_SLACK_WEBHOOK", &c.Notify.SlackWebhook)
	str("HITRUN_SLACK_CHANNEL", &c.Notify.SlackChannel)
	str("HITRUN_TEAMS_WEBHOOK", &c.Notify.TeamsWebhook)
	str("HITRUN_NOTIFY_ON", &c.Notify.NotifyOn)
	str("HITRUN_LOG_LEVEL", &c.LogLevel)
	str("HITRUN_LOG_FORMAT", &c.LogFormat)

	if v, ok := lookup("HITRUN_HTTP_TIMEOUT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HITRUN_HTTP_TIMEOUT: %w", err)
		}
		c.HTTP.Timeout = n
	}
	if v, ok := lookup("HITRUN_HTTP_RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("HITRUN_HTTP_RATE_LIMIT: %w", err)
		}
		c.HTTP.RateLimit = f
	}
	if v, ok := lookup("HITRUN_HTTP_VALIDATE_SSL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HITRUN_HTTP_VALIDATE_SSL: %w", err)
		}
		c.HTTP.ValidateSSL = BoolPtr(b)
	}
	return nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite3", "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}

	switch c.Scheduler.Registry {
	case "", "memory":
	case "redis":
		if c.Scheduler.RedisAddr == "" {
			return fmt.Errorf("scheduler.redis_addr is required for the redis registry")
		}
	default:
		return fmt.Errorf("unsupported scheduler.registry %q", c.Scheduler.Registry)
	}

	switch c.Notify.NotifyOn {
	case "", "always", "failure", "success", "recovery":
	default:
		return fmt.Errorf("unsupported notify.notify_on %q", c.Notify.NotifyOn)
	}

	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit must not be negative")
	}
	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c

	if other.Storage.Driver != "" {
		result.Storage.Driver = other.Storage.Driver
	}
	if other.Storage.DSN != "" {
		result.Storage.DSN = other.Storage.DSN
	}
	if other.HTTP.Timeout > 0 {
		result.HTTP.Timeout = other.HTTP.Timeout
	}
	if other.HTTP.RateLimit > 0 {
		result.HTTP.RateLimit = other.HTTP.RateLimit
	}
	if other.HTTP.Proxy != "" {
		result.HTTP.Proxy = other.HTTP.Proxy
	}
	if other.HTTP.ValidateSSL != nil {
		result.HTTP.ValidateSSL = other.HTTP.ValidateSSL
	}
	if other.HTTP.FollowRedirects != nil {
		result.HTTP.FollowRedirects = other.HTTP.FollowRedirects
	}
	if other.Scheduler.Registry != "" {
		result.Scheduler.Registry = other.Scheduler.Registry
	}
	if other.Scheduler.RedisAddr != "" {
		result.Scheduler.RedisAddr = other.Scheduler.RedisAddr
	}
	if other.Scheduler.RedisKey != "" {
		result.Scheduler.RedisKey = other.Scheduler.RedisKey
	}
	if other.Scheduler.TaskFile != "" {
		result.Scheduler.TaskFile = other.Scheduler.TaskFile
	}
	if other.Notify.SlackWebhook != "" {
		result.Notify.SlackWebhook = other.Notify.SlackWebhook
	}
	if other.Notify.SlackChannel != "" {
		result.Notify.SlackChannel = other.Notify.SlackChannel
	}
	if other.Notify.TeamsWebhook != "" {
		result.Notify.TeamsWebhook = other.Notify.TeamsWebhook
	}
	if other.Notify.NotifyOn != "" {
		result.Notify.NotifyOn = other.Notify.NotifyOn
	}
	if other.LogLevel != "" {
		result.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		result.LogFormat = other.LogFormat
	}

	return &result
}

// SaveConfig saves the configuration to a YAML file
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
