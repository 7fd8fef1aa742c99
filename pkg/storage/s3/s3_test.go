package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
)

func TestObjectKeyLayout(t *testing.T) {
	b := &Backend{basePrefix: "docstore"}

	assert.Equal(t, "docstore/file_metadata.json", b.metadataKey())
	assert.Equal(t, "docstore/files/abc123-report.pdf", b.fileKey("abc123", "report.pdf"))

	// No prefix means keys at the bucket root.
	root := &Backend{}
	assert.Equal(t, "file_metadata.json", root.metadataKey())
	assert.Equal(t, "files/abc123-report.pdf", root.fileKey("abc123", "report.pdf"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NoSuchKey{})))
	assert.False(t, isNotFound(errors.New("throttled")))
	assert.False(t, isNotFound(nil))
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(context.Background(), Config{Bucket: "b"})
	assert.Error(t, err, "missing client must be rejected")

	_, err = New(context.Background(), Config{})
	assert.Error(t, err)
}
