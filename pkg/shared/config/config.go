package config

import (
	"errors"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

const (
	// DefaultCategory is the marker category used for on-the-fly analysis results.
	DefaultCategory = "scanio.onthefly"
	// DefaultJobs bounds the number of files reconciled concurrently.
	DefaultJobs = 4
	// DefaultStoragePath is where tracked state is persisted between runs.
	DefaultStoragePath = "~/.scanio-ide/state"
	// ConfigPathEnv overrides the configuration file location.
	ConfigPathEnv = "SCANIO_IDE_CONFIG"
)

type Config struct {
	Logger  Logger  `yaml:"logger"`
	Storage Storage `yaml:"storage"`
	Engine  Engine  `yaml:"engine"`
}

type Logger struct {
	Level           string `yaml:"level"`
	JSONFormat      *bool  `yaml:"json_format"`
	DisableTime     *bool  `yaml:"disable_time"`
	IncludeLocation *bool  `yaml:"include_location"`
}

// Storage configures the tracked-state backend.
type Storage struct {
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites *bool  `yaml:"sync_writes"`
}

// Engine configures the reconcile pipeline.
type Engine struct {
	Jobs     int    `yaml:"jobs"`
	Category string `yaml:"category"`
}

func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(data); err != nil {
		return err
	}

	return nil
}

// LoadConfig reads the configuration at configPath. A missing file yields the defaults,
// so the tool runs without any configuration at all.
func LoadConfig(configPath string) (*Config, error) {
	if env := os.Getenv(ConfigPathEnv); env != "" {
		configPath = env
	}

	cfg := &Config{}
	if configPath != "" {
		if err := LoadYAML(configPath, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config %q: %w", configPath, err)
		}
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns a configuration with every directive set to its default value.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	cfg.Engine.Jobs = orDefault(cfg.Engine.Jobs, DefaultJobs)
	cfg.Engine.Category = orDefault(cfg.Engine.Category, DefaultCategory)
	cfg.Storage.Path = orDefault(cfg.Storage.Path, DefaultStoragePath)
	cfg.Logger.Level = orDefault(cfg.Logger.Level, "info")
}
