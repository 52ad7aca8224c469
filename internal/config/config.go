//go:build unix

// Package config loads the locker configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vigil-lock/vigil/internal/session"
)

// DefaultTick is the minimum supervision rate when none is set.
const DefaultTick = 250 * time.Millisecond

// Duration wraps time.Duration for yaml decoding of values like "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Auth configures the authentication child and its verifier backend.
type Auth struct {
	// Command starts the prompt-side auth child. Empty means the locker
	// binary's own auth subcommand.
	Command []string `yaml:"command"`
	// Verifier is the backend the auth child converses with. Empty means
	// the built-in verifier subcommand.
	Verifier []string `yaml:"verifier"`
	// PasswordFile holds the credential hash for the built-in verifier.
	PasswordFile string `yaml:"passwordFile"`
	// ForwardFirstKeystroke forwards the wake keystroke to the prompt
	// when it is not a pure control character.
	ForwardFirstKeystroke bool `yaml:"forwardFirstKeystroke"`
}

// Saver configures the saver children.
type Saver struct {
	// Command starts one saver child. Empty means the built-in saver
	// subcommand.
	Command []string `yaml:"command"`
}

// API configures the optional localhost status endpoint.
type API struct {
	Listen string `yaml:"listen"`
}

// Config is the root of the configuration file.
type Config struct {
	// Tick is the minimum supervision rate of the decision loop.
	Tick Duration `yaml:"tick"`
	// Surfaces lists the display-surface identities to cover, one saver
	// slot each.
	Surfaces []string `yaml:"surfaces"`
	Auth     Auth     `yaml:"auth"`
	Saver    Saver    `yaml:"saver"`
	API      API      `yaml:"api"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Tick:     Duration{Duration: DefaultTick},
		Surfaces: []string{"/dev/tty"},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	cfg := Default()
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	cfg.Auth.PasswordFile = os.ExpandEnv(cfg.Auth.PasswordFile)
	for i, surface := range cfg.Surfaces {
		cfg.Surfaces[i] = os.ExpandEnv(surface)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

// Validate rejects configurations the supervisor cannot honor.
func (c *Config) Validate() error {
	if c.Tick.Duration <= 0 {
		return fmt.Errorf("tick must be positive, got %v", c.Tick.Duration)
	}
	if len(c.Surfaces) == 0 {
		return fmt.Errorf("at least one surface is required")
	}
	if len(c.Surfaces) > session.MaxSavers {
		return fmt.Errorf("%d surfaces configured, at most %d supported", len(c.Surfaces), session.MaxSavers)
	}
	for i, surface := range c.Surfaces {
		if surface == "" {
			return fmt.Errorf("surface %d is empty", i)
		}
	}
	return nil
}
