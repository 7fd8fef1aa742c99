package config

import (
	"context"
	"testing"

	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeplabs/docstore/pkg/derive"
	"github.com/meeplabs/docstore/pkg/storage"
)

var (
	noopExtractor = derive.ExtractorFunc(func(ctx context.Context, content []byte, mimeType string) (string, error) {
		return "text", nil
	})
	noopSummarizer = derive.SummarizerFunc(func(ctx context.Context, text string) (string, error) {
		return "summary", nil
	})
)

func TestBuildRegistry(t *testing.T) {
	cfg := validConfig()
	cfg.Backends = []BackendConfig{
		{
			Name:  "disk",
			Type:  "local",
			Local: map[string]any{"root": t.TempDir()},
		},
		{
			Name:   "kv",
			Type:   "badger",
			Badger: map[string]any{"in_memory": true},
		},
	}

	reg, cleanup, err := BuildRegistry(context.Background(), cfg, noopExtractor, noopSummarizer)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, []string{"disk", "kv"}, reg.Names())

	store, err := reg.Get("disk")
	require.NoError(t, err)

	resp, err := store.AddFile(context.Background(), &storage.RawFileData{
		Content:  []byte("factory wired"),
		Name:     "wired.pdf",
		MimeType: "application/pdf",
	}, storage.ProcessNone)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Checksum)
}

func TestBuildRegistryFailsOnBadBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Backends = []BackendConfig{
		{Name: "broken", Type: "local", Local: map[string]any{}},
	}

	_, _, err := BuildRegistry(context.Background(), cfg, noopExtractor, noopSummarizer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestCreateBackendUnknownType(t *testing.T) {
	_, _, err := createBackend(context.Background(), BackendConfig{Name: "x", Type: "tape"})
	assert.Error(t, err)
}

func TestS3SectionDecoding(t *testing.T) {
	var sc s3Section
	section := map[string]any{
		"bucket":            "docs",
		"region":            "eu-west-1",
		"endpoint":          "http://localhost:4566",
		"access_key_id":     "ak",
		"secret_access_key": "sk",
		"base_prefix":       "docstore",
		"presign_ttl":       "30m",
		"max_retries":       5,
	}
	require.NoError(t, mapstructure.Decode(section, &sc))
	assert.Equal(t, "docs", sc.Bucket)
	assert.Equal(t, "30m", sc.PresignTTL)
	assert.Equal(t, 5, sc.MaxRetries)
}
