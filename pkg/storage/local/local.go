// Package local implements the storage.Backend interface over a directory
// on the local filesystem. It exists mainly for development and tests, but
// is a fully functional backend.
//
// Layout:
//   - Metadata document: "{root}/file_metadata.json"
//   - File objects: "{root}/files/{checksum}_{name}"
//
// Writes are atomic: content is written to a uniquely named temp file in the
// same directory and renamed into place, so a crash mid-write never leaves a
// partial object under its final name.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/meeplabs/docstore/pkg/storage"
)

const metadataFileName = "file_metadata.json"

// Backend is a filesystem-backed storage.Backend rooted at a directory.
type Backend struct {
	root     string
	filesDir string
}

// New creates a local backend rooted at root, creating the directory tree if
// needed.
func New(root string) (*Backend, error) {
	if root == "" {
		return nil, fmt.Errorf("root directory is required")
	}

	filesDir := filepath.Join(root, "files")
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create files directory: %w", err)
	}

	return &Backend{root: root, filesDir: filesDir}, nil
}

// Name implements storage.Backend.
func (b *Backend) Name() string {
	return "local"
}

func (b *Backend) metadataPath() string {
	return filepath.Join(b.root, metadataFileName)
}

// filePath builds the object path for a checksum and display name. The name
// is reduced to its base component so caller-supplied names can never escape
// the files directory.
func (b *Backend) filePath(checksum, name string) string {
	return filepath.Join(b.filesDir, fmt.Sprintf("%s_%s", checksum, filepath.Base(name)))
}

// writeAtomic writes data to dst via a temp file and rename.
func (b *Backend) writeAtomic(dst string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(dst), fmt.Sprintf(".tmp-%s", uuid.NewString()))

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}

// LoadMetadataDocument implements storage.Backend.
func (b *Backend) LoadMetadataDocument(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(b.metadataPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read metadata file: %w", err)
	}
	return data, true, nil
}

// StoreMetadataDocument implements storage.Backend.
func (b *Backend) StoreMetadataDocument(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.writeAtomic(b.metadataPath(), data)
}

// Upload implements storage.Backend. The relative object path is stored as
// the file reference.
func (b *Backend) Upload(ctx context.Context, checksum string, raw *storage.RawFileData) (*storage.FileData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := b.filePath(checksum, raw.Name)
	if err := b.writeAtomic(dst, raw.Content); err != nil {
		return nil, fmt.Errorf("failed to store %q: %w", dst, err)
	}

	return &storage.FileData{
		FileReference: dst,
		Name:          raw.Name,
		MimeType:      raw.MimeType,
		Size:          int64(len(raw.Content)),
		ModifiedTime:  time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Download implements storage.Backend.
func (b *Backend) Download(ctx context.Context, fd *storage.FileData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fd.FileReference)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file %q: %w", fd.FileReference, storage.ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to read %q: %w", fd.FileReference, err)
	}
	return data, nil
}

// Remove implements storage.Backend. Removing an already-missing file
// succeeds, mirroring object-store delete semantics.
func (b *Backend) Remove(ctx context.Context, fd *storage.FileData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(fd.FileReference); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %q: %w", fd.FileReference, err)
	}
	return nil
}

// ShareLink implements storage.Backend. There is no network-reachable form
// of a local file, so the link is a local:// URI that only has meaning on
// the host running the service.
func (b *Backend) ShareLink(ctx context.Context, fd *storage.FileData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(fd.FileReference)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", fd.FileReference, err)
	}
	return "local://" + abs, nil
}
