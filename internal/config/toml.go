// Package config provides configuration helpers and TOML parsing.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Auth    AuthConfig    `toml:"auth"`
	History HistoryConfig `toml:"history"`
}

// AuthConfig maps enrollment and verification settings.
type AuthConfig struct {
	User      *string  `toml:"user"`
	Phrase    *string  `toml:"phrase"`
	Threshold *float64 `toml:"threshold"`
}

// HistoryConfig maps history report settings.
type HistoryConfig struct {
	Last *int `toml:"last"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, xerrors.New("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, xerrors.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, xerrors.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, xerrors.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
