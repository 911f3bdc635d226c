// Package config loads the service configuration: YAML file first, then
// environment-variable overrides, then validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"guardian/internal/encryption"
	"guardian/internal/session"
)

// Config holds all configuration for the guardian service.
type Config struct {
	Listen     string           `yaml:"listen"`
	Logging    LoggingConfig    `yaml:"logging"`
	Retention  RetentionConfig  `yaml:"retention"`
	Encryption CipherConfig     `yaml:"encryption"`
	Auth       AuthConfig       `yaml:"auth"`
	Audit      AuditConfig      `yaml:"audit"`
	Bus        BusConfig        `yaml:"bus"`
	Stream     StreamConfig     `yaml:"stream"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// RetentionConfig mirrors the engine retention policy.
type RetentionConfig struct {
	SessionTTLHours    int `yaml:"session_ttl_hours"`
	MaxSessionAgeHours int `yaml:"max_session_age_hours"`
	EventRetentionDays int `yaml:"event_retention_days"`
	PIIRetentionDays   int `yaml:"pii_retention_days"`
	// SweepInterval defaults to one hour when zero.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// CipherConfig selects cipher key material.
type CipherConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Key      string `yaml:"key"`
	Password string `yaml:"password"`
	Salt     string `yaml:"salt"`
}

// AuthConfig holds the account/token settings.
type AuthConfig struct {
	Enabled   bool          `yaml:"enabled"`
	DBPath    string        `yaml:"db_path"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// AuditConfig holds the audit event log settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// BusConfig holds the optional Redis risk event bus settings.
type BusConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// StreamConfig holds the WebSocket risk feed settings.
type StreamConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"` // "otlp", "stdout", or "none"
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// EnrichmentConfig holds the optional LLM enrichment settings.
type EnrichmentConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Load reads and parses the configuration file. A missing file yields
// defaults; env overrides always apply.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path) // #nosec G304 -- config path from trusted CLI flag
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config with sensible default values.
func defaults() *Config {
	return &Config{
		Listen: ":8080",
		Logging: LoggingConfig{
			Format: "json",
			Level:  "info",
		},
		Retention: RetentionConfig{
			SessionTTLHours:    24,
			MaxSessionAgeHours: 48,
			EventRetentionDays: 30,
			PIIRetentionDays:   90,
			SweepInterval:      time.Hour,
		},
		Encryption: CipherConfig{
			Enabled: true,
		},
		Auth: AuthConfig{
			Enabled:  false,
			DBPath:   "data/guardian.db",
			TokenTTL: 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    "data/guardian.db",
		},
		Bus: BusConfig{
			Enabled:       false,
			Addr:          "localhost:6379",
			ChannelPrefix: "guardian:risk:",
		},
		Stream: StreamConfig{
			Enabled: true,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Exporter:    "none",
			ServiceName: "guardian",
			Endpoint:    "localhost:4317",
			Insecure:    true,
		},
		Enrichment: EnrichmentConfig{
			Enabled:  false,
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
			Timeout:  20 * time.Second,
		},
	}
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GUARDIAN_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("GUARDIAN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	// Retention surface
	if v, ok := envInt("SESSION_TTL_HOURS"); ok {
		c.Retention.SessionTTLHours = v
	}
	if v, ok := envInt("MAX_SESSION_AGE_HOURS"); ok {
		c.Retention.MaxSessionAgeHours = v
	}
	if v, ok := envInt("EVENT_RETENTION_DAYS"); ok {
		c.Retention.EventRetentionDays = v
	}
	if v, ok := envInt("PII_RETENTION_DAYS"); ok {
		c.Retention.PIIRetentionDays = v
	}

	// Cipher surface
	if v := os.Getenv("ENABLE_DATA_ENCRYPTION"); v != "" {
		c.Encryption.Enabled = v == "true"
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		c.Encryption.Key = v
	}
	if v := os.Getenv("ENCRYPTION_PASSWORD"); v != "" {
		c.Encryption.Password = v
	}
	if v := os.Getenv("ENCRYPTION_SALT"); v != "" {
		c.Encryption.Salt = v
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
		c.Auth.Enabled = true
	}
	if v := os.Getenv("GUARDIAN_DB_PATH"); v != "" {
		c.Auth.DBPath = v
		c.Audit.Path = v
	}
	if os.Getenv("GUARDIAN_AUDIT_ENABLED") == "true" {
		c.Audit.Enabled = true
	}

	if v := os.Getenv("GUARDIAN_REDIS_ADDR"); v != "" {
		c.Bus.Addr = v
		c.Bus.Enabled = true
	}
	if v := os.Getenv("GUARDIAN_REDIS_PASSWORD"); v != "" {
		c.Bus.Password = v
	}

	// Telemetry overrides, including the standard OTEL env vars
	if os.Getenv("GUARDIAN_TELEMETRY_ENABLED") == "true" {
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Exporter = "otlp"
		c.Telemetry.Endpoint = v
	}
	if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true" {
		c.Telemetry.Insecure = true
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Enrichment.APIKey = v
	}
	if os.Getenv("GUARDIAN_ENRICHMENT_ENABLED") == "true" {
		c.Enrichment.Enabled = true
	}
}

// validate checks that the configuration is valid.
func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Retention.SessionTTLHours < 0 {
		return fmt.Errorf("session_ttl_hours must not be negative")
	}
	if c.Retention.MaxSessionAgeHours < 0 {
		return fmt.Errorf("max_session_age_hours must not be negative")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth requires a jwt_secret (set JWT_SECRET)")
	}
	if c.Enrichment.Enabled && c.Enrichment.APIKey == "" {
		return fmt.Errorf("enrichment requires an api_key (set OPENAI_API_KEY)")
	}
	return nil
}

// RetentionPolicy converts the config section into the engine policy.
func (c *Config) RetentionPolicy() session.RetentionPolicy {
	return session.RetentionPolicy{
		SessionTTLHours:    c.Retention.SessionTTLHours,
		MaxSessionAgeHours: c.Retention.MaxSessionAgeHours,
		EventRetentionDays: c.Retention.EventRetentionDays,
		PIIRetentionDays:   c.Retention.PIIRetentionDays,
		EncryptionEnabled:  c.Encryption.Enabled,
	}
}

// CipherConfig converts the config section into the cipher config.
func (c *Config) CipherConfig() encryption.Config {
	return encryption.Config{
		Enabled:  c.Encryption.Enabled,
		Key:      c.Encryption.Key,
		Password: c.Encryption.Password,
		Salt:     c.Encryption.Salt,
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
