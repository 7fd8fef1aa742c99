// Package testing provides a reusable contract test suite for
// storage.Backend implementations. It tests the interface contract, not
// implementation details, so every backend (local, S3, document API,
// embedded KV) runs the same assertions.
//
// Usage:
//
//	func TestMyBackend(t *testing.T) {
//	    suite := &testing.BackendTestSuite{
//	        NewBackend: func(t *testing.T) storage.Backend {
//	            return mybackend.New(t.TempDir())
//	        },
//	    }
//	    suite.Run(t)
//	}
package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeplabs/docstore/pkg/storage"
)

// BackendTestSuite exercises the storage.Backend contract.
type BackendTestSuite struct {
	// NewBackend creates a fresh, empty backend for each test.
	NewBackend func(t *testing.T) storage.Backend

	// SkipShareLink disables the share-link test for backends whose link
	// generation needs external infrastructure.
	SkipShareLink bool
}

// Run executes all tests in the suite.
func (suite *BackendTestSuite) Run(t *testing.T) {
	t.Run("MetadataDocument", suite.testMetadataDocument)
	t.Run("UploadDownload", suite.testUploadDownload)
	t.Run("UploadMetadata", suite.testUploadMetadata)
	t.Run("Remove", suite.testRemove)
	t.Run("RemoveMissing", suite.testRemoveMissing)
	if !suite.SkipShareLink {
		t.Run("ShareLink", suite.testShareLink)
	}
}

func testContext() context.Context {
	return context.Background()
}

// testRaw builds a small upload payload.
func testRaw(content, name string) *storage.RawFileData {
	return &storage.RawFileData{
		Content:  []byte(content),
		Name:     name,
		MimeType: "application/pdf",
	}
}

// mustUpload uploads and fails the test on error.
func mustUpload(t *testing.T, backend storage.Backend, raw *storage.RawFileData) *storage.FileData {
	t.Helper()
	fd, err := backend.Upload(testContext(), storage.Checksum(raw.Content), raw)
	require.NoError(t, err, "Upload should succeed")
	require.NotNil(t, fd)
	return fd
}

// testMetadataDocument verifies the absent/store/load cycle of the
// authoritative metadata document.
func (suite *BackendTestSuite) testMetadataDocument(t *testing.T) {
	backend := suite.NewBackend(t)

	_, found, err := backend.LoadMetadataDocument(testContext())
	require.NoError(t, err, "Loading from an empty backend should not error")
	assert.False(t, found, "Empty backend should have no metadata document")

	doc := []byte(`{"files":{}}`)
	require.NoError(t, backend.StoreMetadataDocument(testContext(), doc))

	loaded, found, err := backend.LoadMetadataDocument(testContext())
	require.NoError(t, err)
	assert.True(t, found, "Document should exist after store")
	assert.Equal(t, doc, loaded, "Document content mismatch")

	// Overwrite replaces in full.
	doc2 := []byte(`{"files":{"abc":{"file_reference":"r","name":"n","mime_type":"application/pdf","size":1,"modified_time":"2024-01-01T00:00:00Z"}}}`)
	require.NoError(t, backend.StoreMetadataDocument(testContext(), doc2))

	loaded, found, err = backend.LoadMetadataDocument(testContext())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, doc2, loaded, "Overwrite should replace the document")
}

// testUploadDownload verifies byte-identical round trips.
func (suite *BackendTestSuite) testUploadDownload(t *testing.T) {
	backend := suite.NewBackend(t)

	raw := testRaw("round trip payload", "report.pdf")
	fd := mustUpload(t, backend, raw)

	content, err := backend.Download(testContext(), fd)
	require.NoError(t, err, "Download should succeed")
	assert.Equal(t, raw.Content, content, "Downloaded content mismatch")
}

// testUploadMetadata verifies the backend-confirmed metadata fields.
func (suite *BackendTestSuite) testUploadMetadata(t *testing.T) {
	backend := suite.NewBackend(t)

	raw := testRaw("metadata payload", "scan.pdf")
	fd := mustUpload(t, backend, raw)

	assert.NotEmpty(t, fd.FileReference, "FileReference must be set")
	assert.Equal(t, raw.Name, fd.Name)
	assert.Equal(t, raw.MimeType, fd.MimeType)
	assert.Equal(t, int64(len(raw.Content)), fd.Size)
	assert.NotEmpty(t, fd.ModifiedTime, "ModifiedTime must be set")
	assert.Empty(t, fd.RawOCR, "Upload must not populate derived fields")
	assert.Empty(t, fd.Summary, "Upload must not populate derived fields")
}

// testRemove verifies deletion makes the content unreachable.
func (suite *BackendTestSuite) testRemove(t *testing.T) {
	backend := suite.NewBackend(t)

	fd := mustUpload(t, backend, testRaw("to be deleted", "old.pdf"))
	require.NoError(t, backend.Remove(testContext(), fd))

	_, err := backend.Download(testContext(), fd)
	require.Error(t, err, "Download after Remove should fail")
	assert.ErrorIs(t, err, storage.ErrFileNotFound)
}

// testRemoveMissing verifies deleting unknown content is not an error.
func (suite *BackendTestSuite) testRemoveMissing(t *testing.T) {
	backend := suite.NewBackend(t)

	fd := &storage.FileData{FileReference: "does-not-exist", Name: "ghost.pdf"}
	assert.NoError(t, backend.Remove(testContext(), fd), "Removing missing content should succeed")
}

// testShareLink verifies a non-empty locator is produced.
func (suite *BackendTestSuite) testShareLink(t *testing.T) {
	backend := suite.NewBackend(t)

	fd := mustUpload(t, backend, testRaw("shared content", "share.pdf"))

	link, err := backend.ShareLink(testContext(), fd)
	require.NoError(t, err, "ShareLink should succeed")
	assert.NotEmpty(t, link, "Share link must not be empty")
}
