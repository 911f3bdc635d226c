package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("default listen = %q", cfg.Listen)
	}
	if cfg.Retention.SessionTTLHours != 24 || cfg.Retention.MaxSessionAgeHours != 48 {
		t.Errorf("default retention = %+v", cfg.Retention)
	}
	if !cfg.Encryption.Enabled {
		t.Error("encryption should default on")
	}
	if cfg.Retention.SweepInterval != time.Hour {
		t.Errorf("default sweep interval = %v", cfg.Retention.SweepInterval)
	}
}

func TestLoad_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardian.yaml")
	data := []byte("listen: \":9090\"\nretention:\n  session_ttl_hours: 6\n  event_retention_days: 7\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Retention.SessionTTLHours != 6 {
		t.Errorf("session_ttl_hours = %d", cfg.Retention.SessionTTLHours)
	}
	if cfg.Retention.EventRetentionDays != 7 {
		t.Errorf("event_retention_days = %d", cfg.Retention.EventRetentionDays)
	}
	// Untouched sections keep their defaults.
	if cfg.Retention.MaxSessionAgeHours != 48 {
		t.Errorf("max_session_age_hours = %d", cfg.Retention.MaxSessionAgeHours)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardian.yaml")
	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SESSION_TTL_HOURS", "2")
	t.Setenv("MAX_SESSION_AGE_HOURS", "4")
	t.Setenv("ENABLE_DATA_ENCRYPTION", "false")
	t.Setenv("GUARDIAN_LISTEN", ":7070")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Retention.SessionTTLHours != 2 || cfg.Retention.MaxSessionAgeHours != 4 {
		t.Errorf("retention overrides not applied: %+v", cfg.Retention)
	}
	if cfg.Encryption.Enabled {
		t.Error("ENABLE_DATA_ENCRYPTION=false should disable encryption")
	}
	if !cfg.Auth.Enabled || cfg.Auth.JWTSecret != "env-secret" {
		t.Error("JWT_SECRET should enable auth")
	}
}

func TestLoad_EnrichmentRequiresAPIKey(t *testing.T) {
	t.Setenv("GUARDIAN_ENRICHMENT_ENABLED", "true")

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("enrichment without an api key should fail validation")
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Enrichment.Enabled || cfg.Enrichment.APIKey != "sk-test" {
		t.Errorf("enrichment config = %+v", cfg.Enrichment)
	}
}

func TestConfig_RetentionPolicy(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	policy := cfg.RetentionPolicy()
	if policy.SessionTTLHours != 24 || !policy.EncryptionEnabled {
		t.Errorf("policy = %+v", policy)
	}
}
