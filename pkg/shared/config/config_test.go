package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultJobs, cfg.Engine.Jobs)
	assert.Equal(t, DefaultCategory, cfg.Engine.Category)
	assert.Equal(t, DefaultStoragePath, cfg.Storage.Path)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.True(t, cfg.Logger.DisableTimeOr(true))
}

func TestLoadConfigFromYAML(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
logger:
  level: debug
  disable_time: false
storage:
  in_memory: true
engine:
  jobs: 2
  category: scanio.report
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.False(t, cfg.Logger.DisableTimeOr(true))
	assert.False(t, cfg.Logger.JSONFormatOr(false))
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, 2, cfg.Engine.Jobs)
	assert.Equal(t, "scanio.report", cfg.Engine.Category)
	assert.NoError(t, ValidateConfig(cfg))
}

func TestLoadConfigRejectsBrokenYAML(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [unclosed"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "Defaults are valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "Too many jobs",
			mutate:  func(cfg *Config) { cfg.Engine.Jobs = 100 },
			wantErr: "jobs must be between 1 and 64",
		},
		{
			name:    "Empty category",
			mutate:  func(cfg *Config) { cfg.Engine.Category = " " },
			wantErr: "category must not be empty",
		},
		{
			name:    "Missing storage path",
			mutate:  func(cfg *Config) { cfg.Storage.Path = "" },
			wantErr: "path is required",
		},
		{
			name: "In-memory storage needs no path",
			mutate: func(cfg *Config) {
				cfg.Storage.Path = ""
				cfg.Storage.InMemory = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOptionalBooleans(t *testing.T) {
	yes, no := true, false

	var unset Config
	assert.True(t, unset.Logger.DisableTimeOr(true))
	assert.False(t, unset.Logger.JSONFormatOr(false))
	assert.True(t, unset.Logger.IncludeLocationOr(true))
	assert.True(t, unset.Storage.SyncWritesOr(true))

	set := Config{
		Logger:  Logger{DisableTime: &no, JSONFormat: &yes, IncludeLocation: &no},
		Storage: Storage{SyncWrites: &no},
	}
	assert.False(t, set.Logger.DisableTimeOr(true))
	assert.True(t, set.Logger.JSONFormatOr(false))
	assert.False(t, set.Logger.IncludeLocationOr(true))
	assert.False(t, set.Storage.SyncWritesOr(true))
}
