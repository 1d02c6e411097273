package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Config represents the agent configuration
type Config struct {
	Family    FamilyConfig    `json:"family"`
	Remote    RemoteConfig    `json:"remote"`
	Cache     CacheConfig     `json:"cache"`
	Server    ServerConfig    `json:"server"`
	Reconcile ReconcileConfig `json:"reconcile"`
	Log       LogConfig       `json:"log"`
}

// FamilyConfig identifies this device within its family
type FamilyConfig struct {
	FamilyID   string `json:"family_id"`
	ChildUID   string `json:"child_uid"`
	DeviceName string `json:"device_name"`
}

// RemoteConfig contains remote store client settings
type RemoteConfig struct {
	CredentialsFile     string `json:"credentials_file"`
	DatabaseURL         string `json:"database_url"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
}

// CacheConfig contains local enforcement cache settings
type CacheConfig struct {
	Path string `json:"path"`
}

// ServerConfig contains local HTTP API settings
type ServerConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	APIKey string `json:"api_key"`
}

// ReconcileConfig contains background reconciliation settings
type ReconcileConfig struct {
	IntervalMinutes int `json:"interval_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// PollInterval returns the remote poll cadence as a duration.
func (r RemoteConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// Interval returns the reconciliation cadence as a duration.
func (r ReconcileConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// Validate validates the configuration. offline controls whether remote
// credentials are required.
func (c *Config) Validate(offline bool) error {
	if c.Family.FamilyID == "" {
		return fmt.Errorf("%w: family id is required", ErrInvalidConfig)
	}

	if c.Family.ChildUID == "" {
		return fmt.Errorf("%w: child uid is required", ErrInvalidConfig)
	}

	if !offline {
		if c.Remote.CredentialsFile == "" {
			return fmt.Errorf("%w: remote credentials file is required", ErrInvalidConfig)
		}
		if c.Remote.DatabaseURL == "" {
			return fmt.Errorf("%w: remote database url is required", ErrInvalidConfig)
		}
	}

	if c.Cache.Path == "" {
		return fmt.Errorf("%w: cache path is required", ErrInvalidConfig)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Remote.PollIntervalSeconds < 0 || c.Reconcile.IntervalMinutes < 0 {
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidConfig)
	}

	return nil
}

// DefaultConfig returns the configuration defaults the file overrides.
func DefaultConfig() *Config {
	return &Config{
		Family: FamilyConfig{
			DeviceName: "Media device",
		},
		Remote: RemoteConfig{
			PollIntervalSeconds: 15,
		},
		Cache: CacheConfig{
			Path: "./vigil.db",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8099,
		},
		Reconcile: ReconcileConfig{
			IntervalMinutes: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a JSON file on top of the defaults
func Load(path string, offline bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(offline); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromEnv loads configuration from environment variables
// This is useful for containerized deployments
func LoadFromEnv(offline bool) (*Config, error) {
	config := &Config{
		Family: FamilyConfig{
			FamilyID:   getEnv("VIGIL_FAMILY_ID", ""),
			ChildUID:   getEnv("VIGIL_CHILD_UID", ""),
			DeviceName: getEnv("VIGIL_DEVICE_NAME", "Media device"),
		},
		Remote: RemoteConfig{
			CredentialsFile:     getEnv("VIGIL_CREDENTIALS_FILE", ""),
			DatabaseURL:         getEnv("VIGIL_DATABASE_URL", ""),
			PollIntervalSeconds: getEnvInt("VIGIL_POLL_INTERVAL_SECONDS", 15),
		},
		Cache: CacheConfig{
			Path: getEnv("VIGIL_CACHE_PATH", "./vigil.db"),
		},
		Server: ServerConfig{
			Host:   getEnv("VIGIL_HOST", "127.0.0.1"),
			Port:   getEnvInt("VIGIL_PORT", 8099),
			APIKey: getEnv("VIGIL_API_KEY", ""),
		},
		Reconcile: ReconcileConfig{
			IntervalMinutes: getEnvInt("VIGIL_RECONCILE_INTERVAL_MINUTES", 10),
		},
		Log: LogConfig{
			Level:  getEnv("VIGIL_LOG_LEVEL", "info"),
			Format: getEnv("VIGIL_LOG_FORMAT", "text"),
		},
	}

	if err := config.Validate(offline); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}
