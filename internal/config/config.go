// Package config handles YAML configuration for uinu. Secrets live in
// a separate env file so the config file can be checked in.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RCONPasswordKey is the env-file key holding the RCON password.
const RCONPasswordKey = "RCON_PASSWORD"

// Config is the root configuration structure.
type Config struct {
	Region  string        `yaml:"region"`
	RCON    RCONConfig    `yaml:"rcon"`
	Monitor MonitorConfig `yaml:"monitor"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// RCONConfig holds game-server connection settings.
type RCONConfig struct {
	Addr    string `yaml:"addr"`
	EnvFile string `yaml:"env_file"`
}

// MonitorConfig holds inactivity-monitor settings.
type MonitorConfig struct {
	PollIntervalStr   string `yaml:"poll_interval"`
	PollInterval      time.Duration
	InactivityMinutes int    `yaml:"inactivity_minutes"`
	CallTimeoutStr    string `yaml:"call_timeout"`
	CallTimeout       time.Duration
	StatePath         string `yaml:"state_path"`
}

// SweepConfig holds retention-sweep settings.
type SweepConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// MetricsConfig holds metric publishing settings.
type MetricsConfig struct {
	Namespace  string `yaml:"namespace"`
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RCON.Addr == "" {
		cfg.RCON.Addr = "localhost:25575"
	}
	if cfg.RCON.EnvFile == "" {
		cfg.RCON.EnvFile = "/efs/.env"
	}
	if cfg.Monitor.PollIntervalStr == "" {
		cfg.Monitor.PollIntervalStr = "60s"
	}
	if cfg.Monitor.CallTimeoutStr == "" {
		cfg.Monitor.CallTimeoutStr = "10s"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "Minecraft"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func parseDurations(cfg *Config) error {
	poll, err := time.ParseDuration(cfg.Monitor.PollIntervalStr)
	if err != nil {
		return fmt.Errorf("parse poll_interval %q: %w", cfg.Monitor.PollIntervalStr, err)
	}
	cfg.Monitor.PollInterval = poll

	timeout, err := time.ParseDuration(cfg.Monitor.CallTimeoutStr)
	if err != nil {
		return fmt.Errorf("parse call_timeout %q: %w", cfg.Monitor.CallTimeoutStr, err)
	}
	cfg.Monitor.CallTimeout = timeout
	return nil
}

// ValidateMonitor checks the settings the monitor command requires.
func (c *Config) ValidateMonitor() error {
	if c.Monitor.InactivityMinutes <= 0 {
		return fmt.Errorf("monitor: inactivity_minutes must be positive (got %d)", c.Monitor.InactivityMinutes)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor: poll_interval must be positive")
	}
	return nil
}

// ValidateSweep checks the settings the sweep command requires.
func (c *Config) ValidateSweep() error {
	if c.Sweep.RetentionDays <= 0 {
		return fmt.Errorf("sweep: retention_days must be positive (got %d)", c.Sweep.RetentionDays)
	}
	if c.Region == "" {
		return fmt.Errorf("sweep: region is required")
	}
	return nil
}

// RCONPassword loads the RCON password from the configured env file.
func (c *Config) RCONPassword() (string, error) {
	env, err := godotenv.Read(c.RCON.EnvFile)
	if err != nil {
		return "", fmt.Errorf("read env file %s: %w", c.RCON.EnvFile, err)
	}

	password := env[RCONPasswordKey]
	if password == "" {
		return "", fmt.Errorf("%s missing in %s", RCONPasswordKey, c.RCON.EnvFile)
	}
	return password, nil
}

// InactivityThreshold returns the inactivity threshold as a duration.
func (c *Config) InactivityThreshold() time.Duration {
	return time.Duration(c.Monitor.InactivityMinutes) * time.Minute
}
