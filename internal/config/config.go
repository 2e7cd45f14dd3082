// Package config loads and validates the bytebin configuration.
//
// The config file may be YAML or the historical JSON form (YAML is a
// superset). Values support ${VAR:-default} expansion, and every option can
// be overridden with a BYTEBIN_* environment variable.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the bytebin service.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	KeyLength    int `yaml:"keyLength"`
	CorePoolSize int `yaml:"corePoolSize"`

	CacheExpiryMinutes int  `yaml:"cacheExpiryMinutes"`
	CacheMaxSizeMb     int  `yaml:"cacheMaxSizeMb"`
	CacheSaveDirect    bool `yaml:"cacheSaveDirect"`

	MaxContentLengthMb int `yaml:"maxContentLengthMb"`

	LifetimeMinutes            int            `yaml:"lifetimeMinutes"`
	LifetimeMinutesByUserAgent map[string]int `yaml:"lifetimeMinutesByUserAgent"`

	PostRateLimitPeriodMins   int `yaml:"postRateLimitPeriodMins"`
	PostRateLimit             int `yaml:"postRateLimit"`
	UpdateRateLimitPeriodMins int `yaml:"updateRateLimitPeriodMins"`
	UpdateRateLimit           int `yaml:"updateRateLimit"`
	ReadRateLimitPeriodMins   int `yaml:"readRateLimitPeriodMins"`
	ReadRateLimit             int `yaml:"readRateLimit"`

	ReadFailedAmount        int     `yaml:"readFailedAmount"`
	ReadFailedPeriodMins    int     `yaml:"readFailedPeriodMins"`
	ReadFailedMultiplier    float64 `yaml:"readFailedMultiplier"`
	ReadFailedMaxPeriodMins int     `yaml:"readFailedMaxPeriodMins"`

	APIKeys      []string `yaml:"apiKeys"`
	AdminAPIKeys []string `yaml:"adminApiKeys"`

	S3                    bool   `yaml:"s3"`
	S3Bucket              string `yaml:"s3Bucket"`
	S3Region              string `yaml:"s3Region"`
	S3Endpoint            string `yaml:"s3Endpoint"`
	S3PathStyle           bool   `yaml:"s3PathStyle"`
	S3SizeThresholdKb     int    `yaml:"s3SizeThresholdKb"`
	S3ExpiryThresholdMins int    `yaml:"s3ExpiryThresholdMins"`

	MetricsEnabled bool `yaml:"metricsEnabled"`

	HTTPHostAliases map[string]string `yaml:"httpHostAliases"`

	LoggingHTTPURI                string `yaml:"loggingHttpUri"`
	LoggingHTTPFlushPeriodSeconds int    `yaml:"loggingHttpFlushPeriodSeconds"`

	StartupAudit bool `yaml:"startupAudit"`

	ContentPath string `yaml:"contentPath"`
	IndexPath   string `yaml:"indexPath"`
}

// Default returns a Config populated with the stock defaults. Loading a file
// overlays it, so absent keys keep these values.
func Default() *Config {
	return &Config{
		Host:                          "127.0.0.1",
		Port:                          8080,
		KeyLength:                     7,
		CorePoolSize:                  16,
		CacheExpiryMinutes:            10,
		CacheMaxSizeMb:                200,
		MaxContentLengthMb:            10,
		LifetimeMinutes:               1440,
		LifetimeMinutesByUserAgent:    map[string]int{},
		PostRateLimitPeriodMins:       10,
		PostRateLimit:                 30,
		UpdateRateLimitPeriodMins:     2,
		UpdateRateLimit:               26,
		ReadRateLimitPeriodMins:       2,
		ReadRateLimit:                 30,
		ReadFailedAmount:              10,
		ReadFailedPeriodMins:          5,
		ReadFailedMultiplier:          2.0,
		ReadFailedMaxPeriodMins:       60,
		MetricsEnabled:                true,
		HTTPHostAliases:               map[string]string{},
		LoggingHTTPFlushPeriodSeconds: 10,
		ContentPath:                   "content",
		IndexPath:                     "db/bytebin.db",
	}
}

// expandEnvWithDefaults expands ${VAR} and ${VAR:-default} references.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) > 2 {
			return parts[2]
		}
		return ""
	})
}

// Load reads configuration from a YAML or JSON file. A missing file is not
// an error; the defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.applyEnvOverrides()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw bytes, applies environment
// overrides and validates the result.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies BYTEBIN_* environment variables on top of the
// file values. Lists are comma separated; booleans parse per strconv.
func (c *Config) applyEnvOverrides() {
	envString(&c.Host, "BYTEBIN_HOST")
	envInt(&c.Port, "BYTEBIN_PORT")
	envInt(&c.KeyLength, "BYTEBIN_KEY_LENGTH")
	envInt(&c.CorePoolSize, "BYTEBIN_CORE_POOL_SIZE")
	envInt(&c.CacheExpiryMinutes, "BYTEBIN_CACHE_EXPIRY_MINUTES")
	envInt(&c.CacheMaxSizeMb, "BYTEBIN_CACHE_MAX_SIZE_MB")
	envBool(&c.CacheSaveDirect, "BYTEBIN_CACHE_SAVE_DIRECT")
	envInt(&c.MaxContentLengthMb, "BYTEBIN_MAX_CONTENT_LENGTH_MB")
	envInt(&c.LifetimeMinutes, "BYTEBIN_LIFETIME_MINUTES")
	envInt(&c.PostRateLimitPeriodMins, "BYTEBIN_POST_RATE_LIMIT_PERIOD_MINS")
	envInt(&c.PostRateLimit, "BYTEBIN_POST_RATE_LIMIT")
	envInt(&c.UpdateRateLimitPeriodMins, "BYTEBIN_UPDATE_RATE_LIMIT_PERIOD_MINS")
	envInt(&c.UpdateRateLimit, "BYTEBIN_UPDATE_RATE_LIMIT")
	envInt(&c.ReadRateLimitPeriodMins, "BYTEBIN_READ_RATE_LIMIT_PERIOD_MINS")
	envInt(&c.ReadRateLimit, "BYTEBIN_READ_RATE_LIMIT")
	envInt(&c.ReadFailedAmount, "BYTEBIN_READ_FAILED_AMOUNT")
	envInt(&c.ReadFailedPeriodMins, "BYTEBIN_READ_FAILED_PERIOD_MINS")
	envFloat(&c.ReadFailedMultiplier, "BYTEBIN_READ_FAILED_MULTIPLIER")
	envInt(&c.ReadFailedMaxPeriodMins, "BYTEBIN_READ_FAILED_MAX_PERIOD_MINS")
	envStringList(&c.APIKeys, "BYTEBIN_API_KEYS")
	envStringList(&c.AdminAPIKeys, "BYTEBIN_ADMIN_API_KEYS")
	envBool(&c.S3, "BYTEBIN_S3")
	envString(&c.S3Bucket, "BYTEBIN_S3_BUCKET")
	envString(&c.S3Region, "BYTEBIN_S3_REGION")
	envString(&c.S3Endpoint, "BYTEBIN_S3_ENDPOINT")
	envBool(&c.S3PathStyle, "BYTEBIN_S3_PATH_STYLE")
	envInt(&c.S3SizeThresholdKb, "BYTEBIN_S3_SIZE_THRESHOLD_KB")
	envInt(&c.S3ExpiryThresholdMins, "BYTEBIN_S3_EXPIRY_THRESHOLD_MINS")
	envBool(&c.MetricsEnabled, "BYTEBIN_METRICS_ENABLED")
	envString(&c.LoggingHTTPURI, "BYTEBIN_LOGGING_HTTP_URI")
	envInt(&c.LoggingHTTPFlushPeriodSeconds, "BYTEBIN_LOGGING_HTTP_FLUSH_PERIOD_SECONDS")
	envBool(&c.StartupAudit, "BYTEBIN_STARTUP_AUDIT")
	envString(&c.ContentPath, "BYTEBIN_CONTENT_PATH")
	envString(&c.IndexPath, "BYTEBIN_INDEX_PATH")
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envStringList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var list []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				list = append(list, part)
			}
		}
		*dst = list
	}
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.KeyLength < 2 {
		return fmt.Errorf("invalid keyLength: %d (must be at least 2)", c.KeyLength)
	}
	if c.CorePoolSize < 1 {
		return fmt.Errorf("invalid corePoolSize: %d (must be at least 1)", c.CorePoolSize)
	}
	if c.MaxContentLengthMb < 1 {
		return fmt.Errorf("invalid maxContentLengthMb: %d (must be at least 1)", c.MaxContentLengthMb)
	}
	if c.CacheMaxSizeMb < 1 {
		return fmt.Errorf("invalid cacheMaxSizeMb: %d (must be at least 1)", c.CacheMaxSizeMb)
	}
	if c.ReadFailedMultiplier < 1 {
		return fmt.Errorf("invalid readFailedMultiplier: %v (must be at least 1)", c.ReadFailedMultiplier)
	}
	if c.S3 && c.S3Bucket == "" {
		return fmt.Errorf("s3Bucket is required when s3 is enabled")
	}
	if c.ContentPath == "" {
		return fmt.Errorf("contentPath is required")
	}
	if c.IndexPath == "" {
		return fmt.Errorf("indexPath is required")
	}
	return nil
}
