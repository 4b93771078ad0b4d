package config

import (
	"fmt"
	"strings"

	"github.com/scan-io-git/scanio-ide/pkg/shared/files"
)

const maxJobs = 64

// ValidateConfig checks if the global configurations have valid values.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("YAML global config: configuration object is nil")
	}
	if err := ValidateStorageConfig(&cfg.Storage); err != nil {
		return fmt.Errorf("YAML global config: storage directive is invalid: %w", err)
	}
	if err := ValidateEngineConfig(&cfg.Engine); err != nil {
		return fmt.Errorf("YAML global config: engine directive is invalid: %w", err)
	}
	return nil
}

// ValidateStorageConfig expands the storage path and checks it is usable.
func ValidateStorageConfig(storage *Storage) error {
	if storage == nil {
		return fmt.Errorf("storage configuration is nil")
	}
	if storage.InMemory {
		return nil
	}
	if strings.TrimSpace(storage.Path) == "" {
		return fmt.Errorf("path is required unless in_memory is set")
	}
	expanded, err := files.ExpandPath(storage.Path)
	if err != nil {
		return fmt.Errorf("failed to expand path %q: %w", storage.Path, err)
	}
	storage.Path = expanded
	return nil
}

// ValidateEngineConfig checks the reconcile pipeline settings.
func ValidateEngineConfig(engine *Engine) error {
	if engine == nil {
		return fmt.Errorf("engine configuration is nil")
	}
	if engine.Jobs < 1 || engine.Jobs > maxJobs {
		return fmt.Errorf("jobs must be between 1 and %d: %d", maxJobs, engine.Jobs)
	}
	if strings.TrimSpace(engine.Category) == "" {
		return fmt.Errorf("category must not be empty")
	}
	return nil
}
