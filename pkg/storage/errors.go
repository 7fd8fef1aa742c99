package storage

import "errors"

// Standard storage errors.
//
// Backends and the Store wrap these sentinels with context so callers can
// classify failures with errors.Is:
//
//	fd, err := store.GetFileData(ctx, checksum, storage.ProcessNone)
//	if errors.Is(err, storage.ErrFileNotFound) {
//	    // map to 404
//	}
var (
	// ErrFileNotFound indicates the checksum is unknown to the metadata cache,
	// or the physical object is missing from the backend.
	// Reported to the caller, never retried.
	ErrFileNotFound = errors.New("file not found")

	// ErrBackendUnavailable indicates a network or API failure talking to the
	// physical storage medium. The core does not retry; callers or
	// infrastructure may.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrCorruptMetadata indicates the remote metadata document exists but
	// fails to parse. This is fatal to bootstrap: state is never silently
	// reset when the document is malformed (only a legitimately absent
	// document initializes empty).
	ErrCorruptMetadata = errors.New("corrupt remote metadata document")

	// ErrInvalidField indicates a metadata update named a field that does not
	// exist on FileData.
	ErrInvalidField = errors.New("invalid metadata field")
)
