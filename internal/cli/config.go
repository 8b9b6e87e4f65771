package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	defaultServer = "http://localhost:8080"
	envPrefix     = "KANBAN"
)

// Config is the CLI's own settings, read from ~/.kanban/config.yaml and
// KANBAN_* environment variables.
type Config struct {
	Server      string `mapstructure:"server"`
	Credentials string `mapstructure:"credentials"`
}

// HomeDir returns ~/.kanban.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kanban"
	}
	return filepath.Join(home, ".kanban")
}

func DefaultConfigPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

// LoadConfig reads path when it exists. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server", defaultServer)
	v.SetDefault("credentials", filepath.Join(HomeDir(), "credentials.yaml"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if path == "" {
		path = DefaultConfigPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
