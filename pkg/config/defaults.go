package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Called after loading from file and environment so explicit values
// are preserved and only zero values are filled in.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyProcessingDefaults(&cfg.Processing)

	// Add a default local backend if none configured, so a bare config
	// yields a working service.
	if len(cfg.Backends) == 0 {
		cfg.Backends = []BackendConfig{
			{
				Name: "local",
				Type: "local",
				Local: map[string]any{
					"root": "/var/lib/docstore",
				},
			},
		}
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalized here so validation and the logger see a single canonical
	// spelling.
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 5 << 20 // 5 MiB
	}
}

func applyProcessingDefaults(cfg *ProcessingConfig) {
	if cfg.OCREndpoint == "" {
		cfg.OCREndpoint = "http://localhost:9090/ocr"
	}
	if cfg.SummaryEndpoint == "" {
		cfg.SummaryEndpoint = "http://localhost:9090/summarize"
	}
}
