package config

import (
	"os"
	"path/filepath"
)

// ConfigExtensions are the file formats viper reads config from
var ConfigExtensions = []string{"yml", "yaml", "json", "toml"}

// FindLocalConfig finds local config file by walking up directories
func FindLocalConfig(dir string) string {
	for {
		for _, ext := range ConfigExtensions {
			path := filepath.Join(dir, ".gebc."+ext)

			if _, err := os.Stat(path); err == nil {
				return path
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

// FindGlobalConfig returns the first config file in the user config directory
func FindGlobalConfig(configHome string) string {
	if configHome == "" {
		return ""
	}

	for _, ext := range ConfigExtensions {
		path := filepath.Join(configHome, "gebc", "config."+ext)

		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
