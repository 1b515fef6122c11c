package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port     int           `env:"KARTOFFELS_TEST_PORT" envDefault:"123"`
	Backend  string        `env:"KARTOFFELS_TEST_BACKEND" envDefault:"sqlite"`
	Interval time.Duration `env:"KARTOFFELS_TEST_INTERVAL" envDefault:"500ms"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 || cfg.Backend != "sqlite" || cfg.Interval != 500*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("KARTOFFELS_TEST_BACKEND", "d1")
	t.Setenv("KARTOFFELS_TEST_INTERVAL", "2s")

	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Backend != "d1" || cfg.Interval != 2*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("KARTOFFELS_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
