package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSettings(t *testing.T, dir, sub, content string) {
	t.Helper()
	target := dir
	if sub != "" {
		target = filepath.Join(dir, sub)
		if err := os.MkdirAll(target, 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(target, "settings.json"), []byte(content), 0644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	m := NewManager()
	if err := m.Load(t.TempDir(), t.TempDir()); err != nil {
		t.Fatalf("load: %v", err)
	}
	c := m.Get()
	if c.NgramMinFrequency != 2 {
		t.Errorf("min frequency = %d, want 2", c.NgramMinFrequency)
	}
	if c.CooccurrenceWindow != 16 {
		t.Errorf("window = %d, want 16", c.CooccurrenceWindow)
	}
	if c.BulkFlushRows != 65536 {
		t.Errorf("flush rows = %d, want 65536", c.BulkFlushRows)
	}
	if c.RatingInitial != 1000 || c.RatingKFactor != 32 {
		t.Errorf("rating defaults = %v/%v, want 1000/32", c.RatingInitial, c.RatingKFactor)
	}
	if c.BulkMode != "binary" {
		t.Errorf("bulk mode = %q, want binary", c.BulkMode)
	}
	if !*c.AtomPreload {
		t.Error("atom preload should default to true")
	}
}

func TestProjectOverridesUser(t *testing.T) {
	userDir := t.TempDir()
	projectDir := t.TempDir()
	writeSettings(t, userDir, "", `{"ngram_min_frequency": 3, "bulk_mode": "text"}`)
	writeSettings(t, projectDir, ".substrate", `{"ngram_min_frequency": 5}`)

	m := NewManager()
	if err := m.Load(userDir, projectDir); err != nil {
		t.Fatalf("load: %v", err)
	}
	c := m.Get()
	if c.NgramMinFrequency != 5 {
		t.Errorf("min frequency = %d, want project value 5", c.NgramMinFrequency)
	}
	if c.BulkMode != "text" {
		t.Errorf("bulk mode = %q, want user value text", c.BulkMode)
	}
}

func TestBoolPointerOverride(t *testing.T) {
	projectDir := t.TempDir()
	writeSettings(t, projectDir, ".substrate", `{"atom_preload": false, "bulk_use_staging": true}`)

	m := NewManager()
	if err := m.Load(t.TempDir(), projectDir); err != nil {
		t.Fatalf("load: %v", err)
	}
	c := m.Get()
	if *c.AtomPreload {
		t.Error("atom preload should be overridden to false")
	}
	if !*c.BulkUseStaging {
		t.Error("use staging should be overridden to true")
	}
}

func TestMissingFilesAreFine(t *testing.T) {
	m := NewManager()
	if err := m.Load(filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "nope")); err != nil {
		t.Fatalf("load with missing files: %v", err)
	}
}
