package storage

import "context"

// Backend is the contract one physical storage medium must satisfy to sit
// behind a Store.
//
// This interface is deliberately small: a backend only moves bytes and the
// remote metadata document. Everything medium-agnostic (deduplication, the
// local metadata cache, the per-checksum processing locks, the derivation
// pipeline) lives in Store and is shared by every backend.
//
// Bootstrap Ordering:
// Backends that need layout setup (remote folders, local directories)
// perform it at construction, so every method may assume the layout exists.
// The Store calls LoadMetadataDocument exactly once, under its bootstrap
// lock, before any other method.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// The Store never issues concurrent StoreMetadataDocument calls with
// divergent views of the same document version from a single mutation path,
// but distinct mutations may overlap; last-write-wins on the remote document
// is the accepted model (single-process deployment).
type Backend interface {
	// Name returns the backend type label, used in logs and locators.
	Name() string

	// LoadMetadataDocument fetches the remote metadata document from its
	// well-known location. found is false when the document legitimately does
	// not exist yet; that is not an error. Malformed content is NOT detected
	// here; parsing and ErrCorruptMetadata classification are the Store's
	// job.
	LoadMetadataDocument(ctx context.Context) (data []byte, found bool, err error)

	// StoreMetadataDocument overwrites the remote metadata document in full.
	// Partial patches are never used; see the cache synchronization protocol
	// notes on Store.
	StoreMetadataDocument(ctx context.Context, data []byte) error

	// Upload stores the raw bytes under an address derived from checksum and
	// returns backend-confirmed metadata: the reference token needed to find
	// the object again, plus size and modified time as the medium reports
	// them (normalized to RFC 3339 UTC).
	Upload(ctx context.Context, checksum string, raw *RawFileData) (*FileData, error)

	// Download fetches the raw bytes of the object addressed by
	// fd.FileReference.
	Download(ctx context.Context, fd *FileData) ([]byte, error)

	// Remove deletes the physical object addressed by fd.FileReference.
	// Removing an already-absent object is not an error.
	Remove(ctx context.Context, fd *FileData) error

	// ShareLink returns a locator for the object that is fetchable without
	// further authentication against this service: a pre-signed URL, a public
	// share link, or a scheme-prefixed local locator for media that cannot
	// produce a shareable link.
	ShareLink(ctx context.Context, fd *FileData) (string, error)
}
