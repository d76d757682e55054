// Package config loads the YAML configuration of the analyzer CLI.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"gitlab.com/d21d3q/minowmbus/internal/options"
	"gitlab.com/d21d3q/minowmbus/pkg/minowmbus"
)

// DefaultSubject is the NATS subject prefix used when the file names none.
const DefaultSubject = "wmbus.readings"

var meterIDPattern = regexp.MustCompile(`^[0-9A-Fa-f]{8}$`)

// Config represents the complete application configuration
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Meters   []MeterConfig `yaml:"meters"`
	Store    StoreConfig   `yaml:"store"`
	NATS     NATSConfig    `yaml:"nats"`
}

// MeterConfig names a meter and optionally carries its AES key.
type MeterConfig struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
	Key  string `yaml:"key,omitempty"`
}

// StoreConfig enables persistence when SQLitePath is set.
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// NATSConfig enables publication when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		NATS:     NATSConfig{Subject: DefaultSubject},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = DefaultSubject
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks log level, meter ids and keys.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Meters))
	for i, m := range c.Meters {
		if !meterIDPattern.MatchString(m.ID) {
			return fmt.Errorf("meters[%d]: id %q must be 8 hex digits", i, m.ID)
		}
		id := strings.ToUpper(m.ID)
		if seen[id] {
			return fmt.Errorf("meters[%d]: duplicate id %s", i, m.ID)
		}
		seen[id] = true
		if _, err := options.ParseKeyHex(m.Key); err != nil {
			return fmt.Errorf("meters[%d]: %w", i, err)
		}
	}
	return nil
}

// Level returns the parsed log level, info when unset.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// AnalyzeOptions converts the meter list for the decoder.
func (c *Config) AnalyzeOptions(keyHex string) minowmbus.AnalyzeOptions {
	opts := minowmbus.AnalyzeOptions{KeyHex: keyHex}
	for _, m := range c.Meters {
		opts.Meters = append(opts.Meters, minowmbus.Meter{Name: m.Name, ID: m.ID, KeyHex: m.Key})
	}
	return opts
}
