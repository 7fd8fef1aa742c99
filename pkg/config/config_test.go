package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int64(5<<20), cfg.Server.MaxUploadBytes)
	assert.NotEmpty(t, cfg.Processing.OCREndpoint)
	assert.NotEmpty(t, cfg.Processing.SummaryEndpoint)

	require.Len(t, cfg.Backends, 1, "a default backend must be provided")
	assert.Equal(t, "local", cfg.Backends[0].Type)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "debug"},
		Server:  ServerConfig{ListenAddr: ":9999"},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, "DEBUG", cfg.Logging.Level, "level is normalized to uppercase")
	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "VERBOSE"
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsNoBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Backends = nil

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one backend")
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	cfg := validConfig()
	cfg.Backends = append(cfg.Backends, cfg.Backends[0])

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate backend name")
}

func TestValidateRejectsUnknownType(t *testing.T) {
	cfg := validConfig()
	cfg.Backends[0].Type = "tape"
	assert.Error(t, Validate(cfg))
}

func TestValidateChecksRequiredSectionKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Backends = []BackendConfig{{
		Name: "cloud",
		Type: "s3",
		S3:   map[string]any{"bucket": "docs"},
	}}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3.region")
}

func TestValidateBadgerPath(t *testing.T) {
	badger := func(section map[string]any) *Config {
		cfg := validConfig()
		cfg.Backends = []BackendConfig{{Name: "kv", Type: "badger", Badger: section}}
		return cfg
	}

	err := Validate(badger(map[string]any{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "badger.path")

	assert.NoError(t, Validate(badger(map[string]any{"path": "/var/lib/docstore/badger"})))

	// In-memory instances need no path.
	assert.NoError(t, Validate(badger(map[string]any{"in_memory": true})))
	assert.Error(t, Validate(badger(map[string]any{"in_memory": false})))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	body := `
logging:
  level: debug
server:
  listen_addr: ":7070"
  max_upload_bytes: 1048576
processing:
  ocr_endpoint: "http://ocr.internal/extract"
  summary_endpoint: "http://ocr.internal/summarize"
backends:
  - name: archive
    type: local
    local:
      root: ` + filepath.Join(dir, "data") + `
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout, "unspecified fields get defaults")
	assert.Equal(t, "http://ocr.internal/extract", cfg.Processing.OCREndpoint)

	require.Len(t, cfg.Backends, 1)
	assert.Equal(t, "archive", cfg.Backends[0].Name)
	assert.Equal(t, "local", cfg.Backends[0].Type)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	body := `
backends:
  - name: broken
    type: s3
    s3:
      bucket: ""
      region: eu-west-1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteDefaultConfig(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	require.Len(t, cfg.Backends, 1)

	assert.Error(t, WriteDefaultConfig(path), "an existing file must not be overwritten")
}
