package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jsonarchive.yaml")
	content := "source: ci-pipeline\nsnapshot_interval: 25\ntrace: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JSONARCHIVE_CONFIG", path)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source != "ci-pipeline" || cfg.SnapshotInterval != 25 || !cfg.Trace {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfigMissingFileIsZero(t *testing.T) {
	t.Setenv("JSONARCHIVE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg != (Config{}) {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jsonarchive.yaml")
	if err := os.WriteFile(path, []byte("source: [unclosed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JSONARCHIVE_CONFIG", path)
	if _, err := loadConfig(); err == nil {
		t.Fatal("malformed config must error")
	}
}
