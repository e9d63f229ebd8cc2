package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the single YAML file a config directory must contain.
const ConfigFileName = "shogun.yaml"

// Load reads shogun.yaml (and an optional .env) from configDir, expands
// environment variables, merges the result over built-in defaults, and
// validates the outcome. This is the package's sole entry point.
func Load(configDir string) (*Config, error) {
	log := slog.With("configDir", configDir)

	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		log.Warn("config: failed to load .env, continuing without it", "path", envPath, "error", err)
	}

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(ConfigFileName, fmt.Errorf("%w: %s", ErrConfigNotFound, path))
		}
		return nil, NewLoadError(ConfigFileName, err)
	}

	data = ExpandEnv(data)

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, NewLoadError(ConfigFileName, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	cfg := defaultConfig(configDir)
	if err := mergo.Merge(cfg, loaded, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("config: merge defaults: %w", err)
	}
	cfg.configDir = configDir

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	stats := cfg.Stats()
	log.Info("config: loaded",
		"ashigaruCount", stats.AshigaruCount,
		"provider", stats.Provider,
		"serverPort", stats.ServerPort,
		"profiles", stats.Profiles)

	return cfg, nil
}
