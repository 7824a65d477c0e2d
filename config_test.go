package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
server = "whisper.local:10301"
model = "small"
beam = 3
language = "sv"
auto_submit = true
hold_threshold = "250ms"
max_duration = "90s"
`)

	cfg := defaultConfig()
	if err := loadConfigFile(&cfg, path, true); err != nil {
		t.Fatalf("loadConfigFile: %v", err)
	}

	if cfg.Server != "whisper.local:10301" {
		t.Errorf("Server = %q", cfg.Server)
	}
	if cfg.Model != "small" || cfg.Beam != 3 || cfg.Language != "sv" {
		t.Errorf("model config = %s/%d/%s", cfg.Model, cfg.Beam, cfg.Language)
	}
	if !cfg.AutoSubmit {
		t.Error("AutoSubmit not set")
	}
	if cfg.HoldThreshold != 250*time.Millisecond {
		t.Errorf("HoldThreshold = %v", cfg.HoldThreshold)
	}
	if cfg.MaxDuration != 90*time.Second {
		t.Errorf("MaxDuration = %v", cfg.MaxDuration)
	}
	// Untouched fields keep their defaults.
	if !cfg.RestoreClipboard {
		t.Error("RestoreClipboard default lost")
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	cfg := defaultConfig()
	missing := filepath.Join(t.TempDir(), "nope.toml")

	if err := loadConfigFile(&cfg, missing, false); err != nil {
		t.Errorf("implicit missing file should be ignored, got %v", err)
	}
	if err := loadConfigFile(&cfg, missing, true); err == nil {
		t.Error("explicit missing file should error")
	}
}

func TestLoadConfigFileBadDuration(t *testing.T) {
	path := writeConfig(t, `hold_threshold = "soon"`)
	cfg := defaultConfig()
	if err := loadConfigFile(&cfg, path, true); err == nil {
		t.Error("expected error for invalid duration")
	}
}
