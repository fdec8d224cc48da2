package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	DBPath     string        `env:"CHRONICLE_TEST_DB_PATH" envDefault:"chronicle.db"`
	PendingAge time.Duration `env:"CHRONICLE_TEST_MAX_PENDING_AGE" envDefault:"60s"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "chronicle.db" {
		t.Fatalf("expected default db path chronicle.db, got %s", cfg.DBPath)
	}
	if cfg.PendingAge != 60*time.Second {
		t.Fatalf("expected default pending age 60s, got %s", cfg.PendingAge)
	}
}

func TestParseEnvOverride(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CHRONICLE_TEST_MAX_PENDING_AGE", "5m")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.PendingAge != 5*time.Minute {
		t.Fatalf("expected pending age 5m, got %s", cfg.PendingAge)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CHRONICLE_TEST_MAX_PENDING_AGE", "not-a-duration")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
