// This file contains the factory functions that turn validated
// configuration into live backends and stores. Each backend type decodes
// its own section from the untyped map via mapstructure, so backend packages
// stay free of configuration concerns.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/meeplabs/docstore/internal/logger"
	"github.com/meeplabs/docstore/pkg/derive"
	"github.com/meeplabs/docstore/pkg/registry"
	"github.com/meeplabs/docstore/pkg/storage"
	"github.com/meeplabs/docstore/pkg/storage/badgerkv"
	"github.com/meeplabs/docstore/pkg/storage/drive"
	"github.com/meeplabs/docstore/pkg/storage/local"
	"github.com/meeplabs/docstore/pkg/storage/s3"
)

// BuildRegistry materializes every configured backend into a registered
// store. The returned cleanup function closes backends that hold resources
// (currently only Badger) and must be called on shutdown.
func BuildRegistry(ctx context.Context, cfg *Config, extractor derive.Extractor, summarizer derive.Summarizer) (*registry.Registry, func(), error) {
	reg := registry.New()

	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("backend cleanup failed: %v", err)
			}
		}
	}

	for _, backendCfg := range cfg.Backends {
		backend, closer, err := createBackend(ctx, backendCfg)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("backend %q: %w", backendCfg.Name, err)
		}
		if closer != nil {
			closers = append(closers, closer)
		}

		store := storage.NewStore(backend, extractor, summarizer)
		if err := reg.Register(backendCfg.Name, store); err != nil {
			cleanup()
			return nil, nil, err
		}

		logger.Info("backend %q initialized (type=%s)", backendCfg.Name, backendCfg.Type)
	}

	return reg, cleanup, nil
}

// createBackend dispatches on the backend type. The returned closer is nil
// for backends without resources to release.
func createBackend(ctx context.Context, cfg BackendConfig) (storage.Backend, func() error, error) {
	switch cfg.Type {
	case "s3":
		backend, err := createS3Backend(ctx, cfg.S3)
		return backend, nil, err
	case "local":
		backend, err := createLocalBackend(cfg.Local)
		return backend, nil, err
	case "drive":
		backend, err := createDriveBackend(ctx, cfg.Drive)
		return backend, nil, err
	case "badger":
		backend, err := createBadgerBackend(ctx, cfg.Badger)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}

// s3Section is the decoded shape of a backend's s3 configuration map.
type s3Section struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BasePrefix      string `mapstructure:"base_prefix"`
	PresignTTL      string `mapstructure:"presign_ttl"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

func createS3Backend(ctx context.Context, section map[string]any) (storage.Backend, error) {
	var sc s3Section
	if err := mapstructure.Decode(section, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode s3 config: %w", err)
	}

	if sc.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	if sc.Region == "" {
		return nil, fmt.Errorf("s3: region is required")
	}

	client, err := buildS3Client(ctx, sc)
	if err != nil {
		return nil, err
	}

	presignTTL := time.Hour
	if sc.PresignTTL != "" {
		presignTTL, err = time.ParseDuration(sc.PresignTTL)
		if err != nil {
			return nil, fmt.Errorf("s3: invalid presign_ttl %q: %w", sc.PresignTTL, err)
		}
	}

	return s3.New(ctx, s3.Config{
		Client:     client,
		Bucket:     sc.Bucket,
		BasePrefix: sc.BasePrefix,
		PresignTTL: presignTTL,
	})
}

// buildS3Client assembles the AWS SDK client: region, optional custom
// endpoint (MinIO, Localstack), optional static credentials (default chain
// otherwise) and a widened retry budget for transient failures.
func buildS3Client(ctx context.Context, sc s3Section) (*awss3.Client, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(sc.Region))

	if sc.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               sc.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	if sc.AccessKeyID != "" && sc.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			sc.AccessKeyID,
			sc.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := sc.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		// Path-style addressing for S3-compatible stores behind custom
		// endpoints.
		if sc.Endpoint != "" {
			o.UsePathStyle = true
		}
	})
	return client, nil
}

type localSection struct {
	Root string `mapstructure:"root"`
}

func createLocalBackend(section map[string]any) (storage.Backend, error) {
	var lc localSection
	if err := mapstructure.Decode(section, &lc); err != nil {
		return nil, fmt.Errorf("failed to decode local config: %w", err)
	}

	if lc.Root == "" {
		return nil, fmt.Errorf("local: root is required")
	}
	return local.New(lc.Root)
}

type driveSection struct {
	AccessToken    string `mapstructure:"access_token"`
	RootFolderName string `mapstructure:"root_folder_name"`
	BaseURL        string `mapstructure:"base_url"`
	UploadURL      string `mapstructure:"upload_url"`
}

func createDriveBackend(ctx context.Context, section map[string]any) (storage.Backend, error) {
	var dc driveSection
	if err := mapstructure.Decode(section, &dc); err != nil {
		return nil, fmt.Errorf("failed to decode drive config: %w", err)
	}

	if dc.AccessToken == "" {
		return nil, fmt.Errorf("drive: access_token is required")
	}

	return drive.New(ctx, drive.Config{
		Token:          drive.StaticToken(dc.AccessToken),
		RootFolderName: dc.RootFolderName,
		BaseURL:        dc.BaseURL,
		UploadURL:      dc.UploadURL,
	})
}

type badgerSection struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

func createBadgerBackend(ctx context.Context, section map[string]any) (*badgerkv.Backend, error) {
	var bc badgerSection
	if err := mapstructure.Decode(section, &bc); err != nil {
		return nil, fmt.Errorf("failed to decode badger config: %w", err)
	}

	if bc.Path == "" && !bc.InMemory {
		return nil, fmt.Errorf("badger: path is required")
	}

	return badgerkv.New(ctx, badgerkv.Config{
		Path:     bc.Path,
		InMemory: bc.InMemory,
	})
}
