package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config carries defaults the flags can override. All fields are optional.
type Config struct {
	Source           string `yaml:"source"`
	SnapshotInterval int    `yaml:"snapshot_interval"`
	Trace            bool   `yaml:"trace"`
}

const configFilename = "jsonarchive.yaml"

// loadConfig reads the first config file found: $JSONARCHIVE_CONFIG, the
// current directory, then $XDG_CONFIG_HOME/jsonarchive/. A missing file is
// not an error; a malformed one is.
func loadConfig() (Config, error) {
	var cfg Config
	for _, path := range configSearchPaths() {
		b, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		return cfg, nil
	}
	return cfg, nil
}

func configSearchPaths() []string {
	if explicit := os.Getenv("JSONARCHIVE_CONFIG"); explicit != "" {
		return []string{explicit}
	}
	paths := []string{configFilename}
	confDir := os.Getenv("XDG_CONFIG_HOME")
	if confDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			confDir = filepath.Join(home, ".config")
		}
	}
	if confDir != "" {
		paths = append(paths, filepath.Join(confDir, "jsonarchive", configFilename))
	}
	return paths
}
