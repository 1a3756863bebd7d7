package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("expected 1s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.ViolationThreshold != 4 {
		t.Errorf("expected threshold 4, got %d", cfg.ViolationThreshold)
	}
	if cfg.ViolationLogSize != 5 {
		t.Errorf("expected log size 5, got %d", cfg.ViolationLogSize)
	}
	if cfg.PauseDefault != 15*time.Second || cfg.PausePrint != 20*time.Second {
		t.Errorf("unexpected pause windows %v / %v", cfg.PauseDefault, cfg.PausePrint)
	}
	if cfg.AllowedOrigins != nil {
		t.Errorf("expected allow-all origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EXSTEM_API_BASE_URL", "http://exam.local/api/")
	t.Setenv("EXSTEM_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("EXSTEM_VIOLATION_THRESHOLD", "0")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	if err := flags.Parse([]string{"--log-level", "debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "http://exam.local/api" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.APIBaseURL)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("expected 2 origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.ViolationThreshold != 4 {
		t.Errorf("non-positive threshold should fall back to 4, got %d", cfg.ViolationThreshold)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected flag to win, got %q", cfg.LogLevel)
	}
}
