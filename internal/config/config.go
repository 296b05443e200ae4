// Package config loads the proxy's TOML configuration file.
//
// "File does not exist" returns a zero-value Config with no error, and
// a parse failure is reported rather than silently defaulted: falling
// back to built-in defaults on parse failure is the caller's job
// (internal/cmd), which logs a warning and proceeds with Config{}.
// TOML, via github.com/BurntSushi/toml, keeps this to three flat
// scalar keys rather than a multi-user/bridge config shape.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ErrInvalid wraps any config file parse failure, so callers can
// distinguish "bad file" (warn, use defaults) from an I/O error.
var ErrInvalid = errors.New("invalid config")

// Config holds the proxy's tunable settings.
type Config struct {
	HistoryLines          int    `toml:"history_lines"`
	LookbackKey           string `toml:"lookback_key"`
	AutoLookbackTimeoutMs int    `toml:"auto_lookback_timeout_ms"`
}

// Dir resolves the configuration directory: $XDG_CONFIG_HOME/claudechill
// if set, else $HOME/.config/claudechill.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "claudechill")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claudechill"
	}
	return filepath.Join(home, ".config", "claudechill")
}

// Path returns the default config file path, config.toml under Dir().
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads the config file at Path(). A missing file is not an error:
// it returns a zero-value Config. Unknown keys in the file are silently
// ignored.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads and parses the TOML config at path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &cfg, nil
}
