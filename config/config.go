// Package config loads the deployment configuration from a YAML file with
// environment-variable overrides. Runtime billing policy (vacant billing,
// due window) is NOT here; operators edit those in the settings store.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Batch     BatchConfig     `yaml:"batch"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig controls the monthly cron trigger.
type SchedulerConfig struct {
	Enabled    bool `yaml:"enabled"`
	DayOfMonth int  `yaml:"day_of_month"`
	Hour       int  `yaml:"hour"`
}

// BatchConfig bounds a generation run.
type BatchConfig struct {
	BudgetMinutes int `yaml:"budget_minutes"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Path: "billing.db"},
		Scheduler: SchedulerConfig{
			Enabled:    true,
			DayOfMonth: 1,
			Hour:       2,
		},
		Batch: BatchConfig{BudgetMinutes: 30},
	}
}

// Load reads the YAML file at path, applying defaults for absent fields and
// environment overrides (BILLING_PORT, BILLING_DB_PATH) on top. A missing
// file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if port := os.Getenv("BILLING_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("BILLING_PORT %q: %w", port, err)
		}
		cfg.Server.Port = n
	}
	if dbPath := os.Getenv("BILLING_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Scheduler.DayOfMonth < 1 || c.Scheduler.DayOfMonth > 28 {
		return fmt.Errorf("scheduler day_of_month must be 1-28, got %d", c.Scheduler.DayOfMonth)
	}
	if c.Scheduler.Hour < 0 || c.Scheduler.Hour > 23 {
		return fmt.Errorf("scheduler hour must be 0-23, got %d", c.Scheduler.Hour)
	}
	if c.Batch.BudgetMinutes < 0 {
		return fmt.Errorf("batch budget_minutes must be >= 0, got %d", c.Batch.BudgetMinutes)
	}
	return nil
}

// BatchBudget converts the configured minutes to a duration (zero = unbounded).
func (c *Config) BatchBudget() time.Duration {
	return time.Duration(c.Batch.BudgetMinutes) * time.Minute
}
