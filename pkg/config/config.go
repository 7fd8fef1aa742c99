// Package config loads, defaults, validates, and materializes the service
// configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DOCSTORE_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Backend Configuration Pattern:
// Each backend type defines its own configuration shape. A BackendConfig
// carries a Type discriminator plus one map section per type; only the
// section matching Type is decoded, by the factory in factories.go.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains the HTTP server settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Processing points at the external text-extraction and summarization
	// services
	Processing ProcessingConfig `mapstructure:"processing" yaml:"processing"`

	// Backends defines the named storage backends exposed by the API
	Backends []BackendConfig `mapstructure:"backends" yaml:"backends" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output is where logs are written: "stdout" or a file path
	// (file output is size-rotated)
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	// ListenAddr is the address the HTTP server binds to
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr" validate:"required"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// MaxUploadBytes caps the accepted upload size
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes" validate:"required,gt=0"`
}

// ProcessingConfig points at the derivation collaborators.
type ProcessingConfig struct {
	// OCREndpoint is the URL of the text-extraction service
	OCREndpoint string `mapstructure:"ocr_endpoint" yaml:"ocr_endpoint" validate:"required,url"`

	// SummaryEndpoint is the URL of the summarization service
	SummaryEndpoint string `mapstructure:"summary_endpoint" yaml:"summary_endpoint" validate:"required,url"`
}

// BackendConfig defines a single named storage backend.
//
// The Type field determines which backend implementation is used; only the
// corresponding type-specific section is read.
type BackendConfig struct {
	// Name is the backend name used in API routes (e.g., "s3", "archive")
	Name string `mapstructure:"name" yaml:"name" validate:"required,alphanum"`

	// Type specifies which backend implementation to use
	// Valid values: s3, local, drive, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=s3 local drive badger"`

	// S3 contains S3-specific configuration; only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`

	// Local contains filesystem-specific configuration; only used when
	// Type = "local"
	Local map[string]any `mapstructure:"local" yaml:"local,omitempty"`

	// Drive contains document-API-specific configuration; only used when
	// Type = "drive"
	Drive map[string]any `mapstructure:"drive" yaml:"drive,omitempty"`

	// Badger contains embedded-KV-specific configuration; only used when
	// Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses the default
//     location; a missing file is acceptable and falls back to defaults)
//
// Returns:
//   - *Config: Loaded, defaulted and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variable support and the config file
// search path.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DOCSTORE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DOCSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is not an error; everything then comes from environment and defaults.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path, following XDG
// conventions with a current-directory fallback.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "docstore")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "docstore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// WriteDefaultConfig writes a fully defaulted configuration file to path,
// creating parent directories as needed. Fails if the file already exists.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %q already exists", path)
	}

	var cfg Config
	ApplyDefaults(&cfg)

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
