package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags plus custom rules
// that cannot be expressed declaratively.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if len(cfg.Backends) == 0 {
		return fmt.Errorf("backends: at least one backend must be configured")
	}

	names := make(map[string]bool)
	for i, backend := range cfg.Backends {
		if names[backend.Name] {
			return fmt.Errorf("backends[%d]: duplicate backend name %q", i, backend.Name)
		}
		names[backend.Name] = true

		if err := validateBackendSection(i, backend); err != nil {
			return err
		}
	}
	return nil
}

// validateBackendSection checks that the type-specific section required by
// the backend's type carries its mandatory keys. Full decoding happens in
// the factory; this catches the common misconfigurations early with a
// pointed message.
func validateBackendSection(i int, backend BackendConfig) error {
	requireKey := func(section map[string]any, key string) error {
		v, ok := section[key]
		if !ok {
			return fmt.Errorf("backends[%d] (%s): %s.%s is required", i, backend.Name, backend.Type, key)
		}
		if s, isString := v.(string); isString && s == "" {
			return fmt.Errorf("backends[%d] (%s): %s.%s must not be empty", i, backend.Name, backend.Type, key)
		}
		return nil
	}

	switch backend.Type {
	case "s3":
		if err := requireKey(backend.S3, "bucket"); err != nil {
			return err
		}
		return requireKey(backend.S3, "region")
	case "local":
		return requireKey(backend.Local, "root")
	case "drive":
		return requireKey(backend.Drive, "access_token")
	case "badger":
		// An in-memory instance needs no path on disk.
		if inMemory, ok := backend.Badger["in_memory"].(bool); ok && inMemory {
			return nil
		}
		return requireKey(backend.Badger, "path")
	default:
		return fmt.Errorf("backends[%d]: unknown type %q", i, backend.Type)
	}
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var messages []string
	for _, fieldErr := range validationErrors {
		messages = append(messages, fmt.Sprintf(
			"%s: failed %q validation (value: %v)",
			fieldErr.Namespace(), fieldErr.Tag(), fieldErr.Value(),
		))
	}
	return fmt.Errorf("invalid configuration:\n  %s", strings.Join(messages, "\n  "))
}
