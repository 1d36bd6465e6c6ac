// Package config loads the gateway's configuration surface (spec §6) from
// an optional YAML file with every field overridable by an environment
// variable.
//
// Grounded on the teacher's cmd/main.go getEnv/getEnvInt pattern, extended
// with a YAML base layer (gopkg.in/yaml.v3) so an operator can check a
// config file into source control and still override a single field for a
// given deployment without editing it.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimits mirrors spec §6's rateLimit.* block.
type RateLimits struct {
	MessagesPerMinute     int `yaml:"messagesPerMinute"`
	TellsPerMinute        int `yaml:"tellsPerMinute"`
	ChannelsPerMinute     int `yaml:"channelsPerMinute"`
	ConnectPerIPPerMinute int `yaml:"connectPerIpPerMinute"`
}

// Config is the gateway's full configuration surface.
type Config struct {
	WSAddr        string `yaml:"wsAddr"`
	MaxFrameBytes int    `yaml:"maxFrameBytes"`

	HeartbeatIntervalSec int `yaml:"heartbeatIntervalSec"`
	HeartbeatTimeoutSec  int `yaml:"heartbeatTimeoutSec"`
	AuthGracePeriodSec   int `yaml:"authGracePeriodSec"`
	MaxAuthViolations    int `yaml:"maxAuthViolations"`

	HistoryRingSize        int `yaml:"historyRingSize"`
	ChannelHistoryInMemory int `yaml:"channelHistoryInMemory"`
	RegistryTTLSec         int `yaml:"registryTTLSec"`

	RateLimit RateLimits `yaml:"rateLimit"`

	RegistryAddr     string `yaml:"registryAddr"`
	RegistryPassword string `yaml:"registryPassword"`
	RegistryDB       int    `yaml:"registryDB"`

	RequireCredential  bool   `yaml:"requireCredential"`
	JWTSigningKey      string `yaml:"jwtSigningKey"`
	JWTSigningKeyFile  string `yaml:"jwtSigningKeyFile"`
	AdminSecretHash    string `yaml:"adminSecretHash"`

	DuplicateNamePolicy string `yaml:"duplicateNamePolicy"`

	AdminHTTPAddr string `yaml:"adminHTTPAddr"`

	MaintenanceRefreshCron string `yaml:"maintenanceRefreshCron"`
	MaintenanceSweepCron   string `yaml:"maintenanceSweepCron"`

	LogLevel  string `yaml:"logLevel"`
	LogPretty bool   `yaml:"logPretty"`
}

// Default returns the spec §6-documented defaults.
func Default() Config {
	return Config{
		WSAddr:        ":8765",
		MaxFrameBytes: 65536,

		HeartbeatIntervalSec: 30,
		HeartbeatTimeoutSec:  60,
		AuthGracePeriodSec:   30,
		MaxAuthViolations:    3,

		HistoryRingSize:        1000,
		ChannelHistoryInMemory: 100,
		RegistryTTLSec:         3600,

		RateLimit: RateLimits{
			MessagesPerMinute:     100,
			TellsPerMinute:        30,
			ChannelsPerMinute:     50,
			ConnectPerIPPerMinute: 10,
		},

		RegistryAddr: "localhost:6379",

		RequireCredential:   true,
		DuplicateNamePolicy: "allow",

		AdminHTTPAddr: ":8766",

		MaintenanceRefreshCron: "*/1 * * * *",
		MaintenanceSweepCron:   "*/5 * * * *",

		LogLevel: "info",
	}
}

// Load builds a Config starting from Default(), overlaying path's YAML
// contents if path is non-empty and the file exists, then applying any
// GATEWAY_* environment variable overrides. A missing path is not an
// error (spec's ambient-config philosophy: env vars alone are a valid
// deployment).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, err
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.WSAddr = getEnv("GATEWAY_WS_ADDR", cfg.WSAddr)
	cfg.MaxFrameBytes = getEnvInt("GATEWAY_MAX_FRAME_BYTES", cfg.MaxFrameBytes)

	cfg.HeartbeatIntervalSec = getEnvInt("GATEWAY_HEARTBEAT_INTERVAL_SEC", cfg.HeartbeatIntervalSec)
	cfg.HeartbeatTimeoutSec = getEnvInt("GATEWAY_HEARTBEAT_TIMEOUT_SEC", cfg.HeartbeatTimeoutSec)
	cfg.AuthGracePeriodSec = getEnvInt("GATEWAY_AUTH_GRACE_PERIOD_SEC", cfg.AuthGracePeriodSec)
	cfg.MaxAuthViolations = getEnvInt("GATEWAY_MAX_AUTH_VIOLATIONS", cfg.MaxAuthViolations)

	cfg.HistoryRingSize = getEnvInt("GATEWAY_HISTORY_RING_SIZE", cfg.HistoryRingSize)
	cfg.ChannelHistoryInMemory = getEnvInt("GATEWAY_CHANNEL_HISTORY_IN_MEMORY", cfg.ChannelHistoryInMemory)
	cfg.RegistryTTLSec = getEnvInt("GATEWAY_REGISTRY_TTL_SEC", cfg.RegistryTTLSec)

	cfg.RateLimit.MessagesPerMinute = getEnvInt("GATEWAY_RATE_MESSAGES_PER_MINUTE", cfg.RateLimit.MessagesPerMinute)
	cfg.RateLimit.TellsPerMinute = getEnvInt("GATEWAY_RATE_TELLS_PER_MINUTE", cfg.RateLimit.TellsPerMinute)
	cfg.RateLimit.ChannelsPerMinute = getEnvInt("GATEWAY_RATE_CHANNELS_PER_MINUTE", cfg.RateLimit.ChannelsPerMinute)
	cfg.RateLimit.ConnectPerIPPerMinute = getEnvInt("GATEWAY_RATE_CONNECT_PER_IP_PER_MINUTE", cfg.RateLimit.ConnectPerIPPerMinute)

	cfg.RegistryAddr = getEnv("GATEWAY_REGISTRY_ADDR", cfg.RegistryAddr)
	cfg.RegistryPassword = getEnv("GATEWAY_REGISTRY_PASSWORD", cfg.RegistryPassword)
	cfg.RegistryDB = getEnvInt("GATEWAY_REGISTRY_DB", cfg.RegistryDB)

	cfg.RequireCredential = getEnvBool("GATEWAY_REQUIRE_CREDENTIAL", cfg.RequireCredential)
	cfg.JWTSigningKey = getEnv("GATEWAY_JWT_SIGNING_KEY", cfg.JWTSigningKey)
	cfg.JWTSigningKeyFile = getEnv("GATEWAY_JWT_SIGNING_KEY_FILE", cfg.JWTSigningKeyFile)
	cfg.AdminSecretHash = getEnv("GATEWAY_ADMIN_SECRET_HASH", cfg.AdminSecretHash)

	cfg.DuplicateNamePolicy = getEnv("GATEWAY_DUPLICATE_NAME_POLICY", cfg.DuplicateNamePolicy)

	cfg.AdminHTTPAddr = getEnv("GATEWAY_ADMIN_HTTP_ADDR", cfg.AdminHTTPAddr)

	cfg.MaintenanceRefreshCron = getEnv("GATEWAY_MAINTENANCE_REFRESH_CRON", cfg.MaintenanceRefreshCron)
	cfg.MaintenanceSweepCron = getEnv("GATEWAY_MAINTENANCE_SWEEP_CRON", cfg.MaintenanceSweepCron)

	cfg.LogLevel = getEnv("GATEWAY_LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = getEnvBool("GATEWAY_LOG_PRETTY", cfg.LogPretty)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSec) * time.Second
}

func (c Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutSec) * time.Second
}

func (c Config) AuthGracePeriod() time.Duration {
	return time.Duration(c.AuthGracePeriodSec) * time.Second
}

func (c Config) RegistryTTL() time.Duration {
	return time.Duration(c.RegistryTTLSec) * time.Second
}
