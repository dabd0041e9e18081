package config

import (
	"os"
	"path/filepath"
)

const (
	userConfigDir  = ".config/chimera"
	configFileName = "config.yaml"
)

// DefaultConfigPath is the directory searched when --config-path is not
// given. Falls back to the working directory when the home directory is
// unknown.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, userConfigDir)
}

// Default returns the configuration used when no file and no flags are
// present. DataURL stays empty; the engine starts with the data backend
// offline until one is configured.
func Default() Config {
	return Config{
		Transport:           TransportStdio,
		Host:                "localhost",
		Port:                8090,
		LogLevel:            "info",
		LogsDir:             "logs",
		MetadataURL:         "sqlite:///chimera_meta.db",
		SchemaPrefix:        "",
		DashboardEnabled:    false,
		DashboardStorageDir: "dashboards",
		DashboardBaseURL:    "http://localhost:3000",
	}
}
