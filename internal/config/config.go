package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type ProjectConfig struct {
	World    string         `yaml:"world"`
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Backups  BackupConfig   `yaml:"backups"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type OracleConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	// Filled from the environment, never from the project file.
	APIKey string `yaml:"-"`
}

type BackupConfig struct {
	Dir string `yaml:"dir"`
}

// envOverrides holds runtime overrides and secrets that must not live in
// the project file.
type envOverrides struct {
	DatabaseDSN    string `env:"CANONKEEPER_DATABASE_DSN"`
	OracleAPIKey   string `env:"OPENAI_API_KEY"`
	OracleModel    string `env:"CANONKEEPER_ORACLE_MODEL"`
	OracleDisabled bool   `env:"CANONKEEPER_ORACLE_DISABLED"`
	BackupDir      string `env:"CANONKEEPER_BACKUP_DIR"`
}

func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}
	applyOverrides(&cfg, overrides)

	if err := validateProjectConfig(&cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return &cfg, nil
}

func applyOverrides(cfg *ProjectConfig, overrides envOverrides) {
	if overrides.DatabaseDSN != "" {
		cfg.Database.DSN = overrides.DatabaseDSN
	}
	if overrides.OracleAPIKey != "" {
		cfg.Oracle.APIKey = overrides.OracleAPIKey
	}
	if overrides.OracleModel != "" {
		cfg.Oracle.Model = overrides.OracleModel
	}
	if overrides.OracleDisabled {
		cfg.Oracle.Enabled = false
	}
	if overrides.BackupDir != "" {
		cfg.Backups.Dir = overrides.BackupDir
	}
}

func validateProjectConfig(cfg *ProjectConfig) error {
	if strings.TrimSpace(cfg.World) == "" {
		return fmt.Errorf("world name is required")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Oracle.TimeoutSeconds < 0 {
		return fmt.Errorf("oracle timeout must not be negative")
	}
	if cfg.Oracle.Model == "" {
		cfg.Oracle.Model = "gpt-4o-mini"
	}
	if cfg.Oracle.TimeoutSeconds == 0 {
		cfg.Oracle.TimeoutSeconds = 20
	}
	if cfg.Backups.Dir == "" {
		cfg.Backups.Dir = "./snapshots"
	}
	return nil
}

func (c OracleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
