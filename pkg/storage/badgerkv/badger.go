// Package badgerkv implements the storage.Backend interface over an
// embedded BadgerDB key-value store. It gives a single-binary deployment
// durable storage without any external service.
//
// Key Layout:
//   - Metadata document: "meta/file_metadata.json"
//   - File objects: "files/{checksum}"
//
// Unlike the path-addressed backends, the object key carries only the
// checksum; the display name lives exclusively in metadata. The checksum is
// stored as the file reference.
package badgerkv

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/meeplabs/docstore/pkg/storage"
)

var metadataKey = []byte("meta/file_metadata.json")

func fileKey(checksum string) []byte {
	return []byte("files/" + checksum)
}

// Backend is a BadgerDB-backed storage.Backend.
type Backend struct {
	db *badger.DB
}

// Config contains configuration for the Badger backend.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory runs the database without persistence, for tests.
	InMemory bool
}

// New opens (or creates) the database and returns the backend. Callers own
// Close.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts = opts.WithInMemory(cfg.InMemory)
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	return &Backend{db: db}, nil
}

// Close releases the database. The backend is unusable afterwards.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Name implements storage.Backend.
func (b *Backend) Name() string {
	return "badger"
}

func (b *Backend) get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (b *Backend) set(key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// LoadMetadataDocument implements storage.Backend.
func (b *Backend) LoadMetadataDocument(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	data, found, err := b.get(metadataKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read metadata key: %w", err)
	}
	return data, found, nil
}

// StoreMetadataDocument implements storage.Backend.
func (b *Backend) StoreMetadataDocument(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := b.set(metadataKey, data); err != nil {
		return fmt.Errorf("failed to write metadata key: %w", err)
	}
	return nil
}

// Upload implements storage.Backend.
func (b *Backend) Upload(ctx context.Context, checksum string, raw *storage.RawFileData) (*storage.FileData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := b.set(fileKey(checksum), raw.Content); err != nil {
		return nil, fmt.Errorf("failed to store content for %s: %w", checksum, err)
	}

	return &storage.FileData{
		FileReference: checksum,
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

	data, found, err := b.get(fileKey(fd.FileReference))
	if err != nil {
		return nil, fmt.Errorf("failed to read content for %s: %w", fd.FileReference, err)
	}
	if !found {
		return nil, fmt.Errorf("content %s: %w", fd.FileReference, storage.ErrFileNotFound)
	}
	return data, nil
}

// Remove implements storage.Backend. Deleting a missing key is a no-op in
// Badger, matching the other backends' delete semantics.
func (b *Backend) Remove(ctx context.Context, fd *storage.FileData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(fileKey(fd.FileReference))
	})
	if err != nil {
		return fmt.Errorf("failed to delete content for %s: %w", fd.FileReference, err)
	}
	return nil
}

// ShareLink implements storage.Backend. Embedded storage has no externally
// reachable address, so the link is an opaque badger:// URI.
func (b *Backend) ShareLink(ctx context.Context, fd *storage.FileData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "badger://" + fd.FileReference, nil
}
