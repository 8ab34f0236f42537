package facade

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"iris/internal/power"
	"iris/internal/tv"
	"iris/internal/webos"
)

// Config is the complete facade configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Device  DeviceConfig  `yaml:"device"`
	Store   StoreConfig   `yaml:"store"`
	Pairing PairingConfig `yaml:"pairing"`
	Power   PowerConfig   `yaml:"power"`
	Apps    AppsConfig    `yaml:"apps"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Timeout string `yaml:"timeout"`
}

// DeviceConfig is the static TV identity. Never mutated at runtime.
type DeviceConfig struct {
	Host string `yaml:"host"`
	MAC  string `yaml:"mac"`
}

// StoreConfig locates the pairing credential store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// PairingConfig contains registration handshake settings.
type PairingConfig struct {
	Timeout string `yaml:"timeout"`
}

// PowerConfig contains power-on/off orchestration settings.
type PowerConfig struct {
	WakePort       int    `yaml:"wake_port"`
	PollInterval   string `yaml:"poll_interval"`
	PollBudget     string `yaml:"poll_budget"`
	CommandTimeout string `yaml:"command_timeout"`
	VerifyDefault  bool   `yaml:"verify_default"`
}

// AppsConfig contains application launch settings.
type AppsConfig struct {
	Default string `yaml:"default"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// SaveConfig saves configuration to a YAML file.
func SaveConfig(config *Config, filepath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NewDefaultConfig creates a default configuration. Device host and MAC must
// still be filled in before it validates.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults ensures all optional fields have default values.
func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.Timeout == "" {
		c.Server.Timeout = "90s"
	}

	if c.Store.Path == "" {
		c.Store.Path = "store.json"
	}

	if c.Pairing.Timeout == "" {
		c.Pairing.Timeout = "60s"
	}

	if c.Power.WakePort == 0 {
		c.Power.WakePort = power.DefaultWakePort
	}
	if c.Power.PollInterval == "" {
		c.Power.PollInterval = "2s"
	}
	if c.Power.PollBudget == "" {
		c.Power.PollBudget = "30s"
	}
	if c.Power.CommandTimeout == "" {
		c.Power.CommandTimeout = "5s"
	}

	if c.Apps.Default == "" {
		c.Apps.Default = "netflix"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// validate checks if the configuration values are valid.
func (c *Config) validate() error {
	if c.Device.Host == "" {
		return fmt.Errorf("device host is required")
	}
	if c.Device.MAC == "" {
		return fmt.Errorf("device mac is required")
	}
	if _, err := net.ParseMAC(c.Device.MAC); err != nil {
		return fmt.Errorf("invalid device mac: %w", err)
	}

	durations := map[string]string{
		"server timeout":        c.Server.Timeout,
		"pairing timeout":       c.Pairing.Timeout,
		"power poll_interval":   c.Power.PollInterval,
		"power poll_budget":     c.Power.PollBudget,
		"power command_timeout": c.Power.CommandTimeout,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, level := range validLevels {
		if c.Logging.Level == level {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("invalid logging level: %s (must be one of: %v)", c.Logging.Level, validLevels)
	}

	return nil
}

// GetServerTimeout returns the HTTP server timeout as a time.Duration.
func (c *Config) GetServerTimeout() time.Duration {
	duration, _ := time.ParseDuration(c.Server.Timeout)
	return duration
}

// GetPairingTimeout returns the pairing window as a time.Duration.
func (c *Config) GetPairingTimeout() time.Duration {
	duration, _ := time.ParseDuration(c.Pairing.Timeout)
	return duration
}

// GetPollInterval returns the readiness poll spacing as a time.Duration.
func (c *Config) GetPollInterval() time.Duration {
	duration, _ := time.ParseDuration(c.Power.PollInterval)
	return duration
}

// GetPollBudget returns the power-on verification budget as a time.Duration.
func (c *Config) GetPollBudget() time.Duration {
	duration, _ := time.ParseDuration(c.Power.PollBudget)
	return duration
}

// GetCommandTimeout returns the per-command deadline as a time.Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	duration, _ := time.ParseDuration(c.Power.CommandTimeout)
	return duration
}

// ControllerConfig assembles the tv.Controller configuration.
func (c *Config) ControllerConfig() tv.Config {
	return tv.Config{
		Host:       c.Device.Host,
		MAC:        c.Device.MAC,
		DefaultApp: c.Apps.Default,
		Session: webos.Options{
			PairingTimeout: c.GetPairingTimeout(),
		},
		Power: power.Options{
			WakePort:       c.Power.WakePort,
			PollInterval:   c.GetPollInterval(),
			PollBudget:     c.GetPollBudget(),
			CommandTimeout: c.GetCommandTimeout(),
		},
	}
}
