// Pairs uses flags and a single config file for configuration.
// Flags are declared next to the code using them; the config file can set any of them.

package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
)

var configFilePath = flag.String("config_file", "config.txtpb", "Path to the configuration file.")

// loadConfigFile applies the txtpb config file at `path` to the flags of `fs`.
func loadConfigFile(fs *flag.FlagSet, path string) error {
	configFile, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	configBytes, err := io.ReadAll(configFile)
	_ = configFile.Close()
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return applyConfig(fs, configBytes)
}

// InitFlags initializes the flags from the config file specified by the -config_file flag.
// It should be called after defining all flags and before using them.
// Flags given on the command line take precedence over the config file.
func InitFlags() {
	flag.Parse()

	if *configFilePath == "" {
		slog.Info("Config file not specified. Skipping config initialization.")
		return
	}
	err := loadConfigFile(flag.CommandLine, *configFilePath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("Config file does not exist.", "path", *configFilePath, "error", err)
		return
	}
	if err != nil { // If the config file cannot be applied, we skip loading and use default flag values.
		slog.Error("Failed to load config file.", "path", *configFilePath, "error", err)
		return
	}
}
