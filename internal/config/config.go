package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// DefaultIdentification is the *IDN? reply of the emulated unit
const DefaultIdentification = "SRS DG645,s/n001332,ver1.07.10E"

// Config represents the complete configuration for the DG645 simulator
type Config struct {
	Network NetworkConfig `yaml:"network"`
	Device  DeviceConfig  `yaml:"device"`
	Logging LoggingConfig `yaml:"logging"`
}

// NetworkConfig holds network-related settings
type NetworkConfig struct {
	Stream  StreamConfig  `yaml:"stream"`
	Control ControlConfig `yaml:"control"`
}

// StreamConfig holds the line protocol TCP server settings
type StreamConfig struct {
	Port           int      `yaml:"port" validate:"min=0,max=65535"`
	AllowedCIDRs   []string `yaml:"allowedCidrs" validate:"min=1,dive,cidr"`
	MaxConnections int      `yaml:"maxConnections" validate:"min=1,max=1024"`
	IdleTimeoutSec int      `yaml:"idleTimeoutSec" validate:"min=0"`
}

// ControlConfig holds the HTTP JSON-RPC control API settings
type ControlConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Port         int    `yaml:"port" validate:"min=0,max=65535"`
	ServerHeader string `yaml:"serverHeader"`
}

// DeviceConfig holds the emulated instrument settings
type DeviceConfig struct {
	Identification     string `yaml:"identification" validate:"required"`
	StrictReferences   bool   `yaml:"strictReferences"`   // reject multi-hop reference loops
	ErrorQueueCapacity int    `yaml:"errorQueueCapacity" validate:"min=1,max=1000"`
	SnapshotFile       string `yaml:"snapshotFile"` // empty disables persistence
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	File       string `yaml:"file"` // empty logs to stdout only
	MaxSizeMB  int    `yaml:"maxSizeMb" validate:"min=1"`
	MaxBackups int    `yaml:"maxBackups" validate:"min=0"`
	MaxAgeDays int    `yaml:"maxAgeDays" validate:"min=0"`
	Compress   bool   `yaml:"compress"`
	Verbose    bool   `yaml:"verbose"` // log every protocol line
}

var validate = validator.New()

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load default configuration
	cfg := getDefaultConfig()

	// Load from default config file
	if err := loadFromFile(cfg, "config/default.yaml"); err != nil {
		// If default config doesn't exist, continue with defaults
		fmt.Printf("Warning: Could not load default config: %v\n", err)
	}

	// Load from config file if DG645_SIM_CONFIG is set
	if path := os.Getenv("DG645_SIM_CONFIG"); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, errors.Wrapf(err, "failed to load config from %s", path)
		}
	}

	// .env only fills variables not already set in the environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	// Override with environment variables
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return getDefaultConfig()
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			Stream: StreamConfig{
				Port:           57677,
				AllowedCIDRs:   []string{"127.0.0.0/8", "::1/128"},
				MaxConnections: 10,
				IdleTimeoutSec: 0,
			},
			Control: ControlConfig{
				Enabled:      true,
				Port:         57678,
				ServerHeader: "",
			},
		},
		Device: DeviceConfig{
			Identification:     DefaultIdentification,
			StrictReferences:   false,
			ErrorQueueCapacity: 20,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("DG645_SIM_STREAM_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Network.Stream.Port = p
		}
	}

	if port := os.Getenv("DG645_SIM_CONTROL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Network.Control.Port = p
		}
	}

	if strict := os.Getenv("DG645_SIM_STRICT"); strict != "" {
		if b, err := strconv.ParseBool(strict); err == nil {
			cfg.Device.StrictReferences = b
		}
	}

	if idn := os.Getenv("DG645_SIM_IDN"); idn != "" {
		cfg.Device.Identification = idn
	}

	if logFile := os.Getenv("DG645_SIM_LOG_FILE"); logFile != "" {
		cfg.Logging.File = logFile
	}

	if snapshot := os.Getenv("DG645_SIM_SNAPSHOT"); snapshot != "" {
		cfg.Device.SnapshotFile = snapshot
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Network.Control.Enabled && cfg.Network.Control.Port != 0 &&
		cfg.Network.Control.Port == cfg.Network.Stream.Port {
		return fmt.Errorf("stream and control servers cannot share port %d", cfg.Network.Stream.Port)
	}

	return nil
}
