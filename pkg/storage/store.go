// Package storage implements the backend-agnostic core of the document
// store: content-addressed deduplication, the local metadata cache mirrored
// to a remote authoritative document, per-checksum processing locks, and the
// OCR/summary derivation pipeline.
//
// One Store wraps one Backend (S3, a Drive-style document API, the local
// filesystem, or an embedded KV store). The HTTP layer never talks to a
// Backend directly.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meeplabs/docstore/internal/logger"
	"github.com/meeplabs/docstore/pkg/derive"
)

// Store provides idempotent, checksum-addressed document storage over a
// single Backend.
//
// Cache Synchronization Protocol:
// The in-memory metadata cache is the single source of truth for reads after
// bootstrap. Every mutation follows read-modify-write-then-publish: mutate
// the cache under its write lock, serialize the WHOLE cache, and overwrite
// the remote metadata document in full before the call returns success. The
// full overwrite trades throughput for simplicity: per-mutation cost is
// linear in cache size, and two processes mutating the same backend
// concurrently would lose updates. Single-process deployment is assumed.
//
// Bootstrap:
// Initialization is lazy and runs at most once, under a dedicated lock, on
// the first call to any operation: an existing remote document replaces the
// cache; an absent one is created remotely as {"files":{}}. A malformed
// document fails bootstrap with ErrCorruptMetadata and is retried on the
// next call rather than silently resetting state.
type Store struct {
	backend    Backend
	cache      *metadataCache
	locks      *lockTable
	extractor  derive.Extractor
	summarizer derive.Summarizer

	initMu      sync.Mutex
	initialized bool
}

// NewStore creates a Store over the given backend. The extractor and
// summarizer are the external derivation collaborators; both are required.
func NewStore(backend Backend, extractor derive.Extractor, summarizer derive.Summarizer) *Store {
	return &Store{
		backend:    backend,
		cache:      newMetadataCache(),
		locks:      newLockTable(),
		extractor:  extractor,
		summarizer: summarizer,
	}
}

// Backend exposes the wrapped backend, mainly for tests and diagnostics.
func (s *Store) Backend() Backend {
	return s.backend
}

// ensureReady performs the one-time lazy bootstrap described on Store.
// Safe against concurrent first calls: the init lock serializes them and
// later callers observe the completed result.
func (s *Store) ensureReady(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.initialized {
		return nil
	}

	data, found, err := s.backend.LoadMetadataDocument(ctx)
	if err != nil {
		return fmt.Errorf("failed to load metadata document: %w: %w", ErrBackendUnavailable, err)
	}

	if found {
		files, err := decodeMetadataDocument(data)
		if err != nil {
			return err
		}
		s.cache.replace(files)
	} else {
		s.cache.replace(nil)
		if err := s.publish(ctx); err != nil {
			return fmt.Errorf("failed to initialize metadata document: %w", err)
		}
	}

	s.initialized = true
	logger.Info("%s backend ready (%d files tracked)", s.backend.Name(), s.cache.len())
	return nil
}

// publish serializes the full cache and overwrites the remote metadata
// document.
func (s *Store) publish(ctx context.Context) error {
	data, err := s.cache.encode()
	if err != nil {
		return err
	}
	if err := s.backend.StoreMetadataDocument(ctx, data); err != nil {
		return fmt.Errorf("failed to publish metadata document: %w: %w", ErrBackendUnavailable, err)
	}
	return nil
}

// saveFileData updates the cache entry for checksum and publishes the
// document remotely. The remote write happens-after the local mutation and
// before success is reported.
func (s *Store) saveFileData(ctx context.Context, checksum string, fd *FileData) error {
	s.cache.set(checksum, fd)
	return s.publish(ctx)
}

// AddFile stores raw bytes under their content checksum.
//
// If the checksum is already cached the upload is skipped entirely and the
// existing metadata (including the original display name: first name wins)
// is reused. Otherwise the bytes are uploaded, backend-confirmed metadata is
// recorded and the remote document is synchronized.
//
// If level is not ProcessNone and no derivation task currently holds the
// processing lock, a background task is scheduled. The lock is acquired
// before AddFile returns, so IsProcessing in the response is exact. There is
// no grace-period sampling.
func (s *Store) AddFile(ctx context.Context, raw *RawFileData, level ProcessLevel) (*FileDataResponse, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	checksum := Checksum(raw.Content)

	fd, ok := s.cache.get(checksum)
	if !ok {
		uploaded, err := s.backend.Upload(ctx, checksum, raw)
		if err != nil {
			return nil, fmt.Errorf("upload failed: %w: %w", ErrBackendUnavailable, err)
		}
		// Two callers can race past the cache miss with identical bytes.
		// Insert-if-absent keeps whichever entry landed first, so a slower
		// duplicate never clobbers derived fields the pipeline has already
		// persisted for the winner.
		winner, inserted := s.cache.setIfAbsent(checksum, uploaded)
		fd = winner
		if inserted {
			if err := s.publish(ctx); err != nil {
				return nil, err
			}
			logger.Info("stored %s as %s (%d bytes, %s)", raw.Name, checksum, fd.Size, s.backend.Name())
		} else {
			logger.Debug("checksum %s lost an upload race, keeping the existing entry", checksum)
		}
	} else {
		logger.Debug("checksum %s already stored, skipping upload of %s", checksum, raw.Name)
	}

	if level != ProcessNone && derivationNeeded(fd, level) {
		s.scheduleDerivation(checksum, level, raw)
	}

	return &FileDataResponse{
		Checksum:     checksum,
		IsProcessing: s.locks.held(checksum),
		FileData:     fd,
	}, nil
}

// derivationNeeded reports whether the requested level still has unset
// fields. Fields are write-once, so a satisfied level never schedules work.
func derivationNeeded(fd *FileData, level ProcessLevel) bool {
	if fd.RawOCR == "" {
		return true
	}
	return level == ProcessSummary && fd.Summary == ""
}

// scheduleDerivation starts a background derivation task for checksum unless
// one is already running. The processing lock is acquired synchronously
// before the goroutine is spawned: callers that sample the lock state right
// after this call observe the task as running, without racing its startup.
//
// The task is fire-and-forget: it detaches from the request context and runs
// to completion or failure. Failures are logged and leave the derived fields
// unset so a later request can retry.
func (s *Store) scheduleDerivation(checksum string, level ProcessLevel, raw *RawFileData) {
	lock := s.locks.get(checksum)
	if !lock.TryAcquire() {
		// A task already holds the lock; its idempotence guard covers us.
		return
	}

	go func() {
		defer lock.Release()

		if err := s.deriveLocked(context.Background(), checksum, level, raw); err != nil {
			logger.Error("background derivation for %s failed: %v", checksum, err)
		}
	}()
}

// GetFileData returns the cached metadata for checksum.
//
// If level is not ProcessNone the call blocks until the derivation pipeline
// has satisfied that level (acquire-then-release on the processing lock) and
// returns the refreshed metadata. A pipeline failure propagates to the
// caller.
func (s *Store) GetFileData(ctx context.Context, checksum string, level ProcessLevel) (*FileData, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	fd, ok := s.cache.get(checksum)
	if !ok {
		return nil, fmt.Errorf("no file with checksum %q: %w", checksum, ErrFileNotFound)
	}

	if level != ProcessNone {
		lock := s.locks.get(checksum)
		if err := lock.Acquire(ctx); err != nil {
			return nil, err
		}
		err := s.deriveLocked(ctx, checksum, level, nil)
		lock.Release()
		if err != nil {
			return nil, err
		}

		fd, ok = s.cache.get(checksum)
		if !ok {
			// Deleted while we waited for the lock.
			return nil, fmt.Errorf("no file with checksum %q: %w", checksum, ErrFileNotFound)
		}
	}

	return fd, nil
}

// FileExists reports whether checksum is known to the cache. Pure cache
// lookup; no backend call.
func (s *Store) FileExists(ctx context.Context, checksum string) (bool, error) {
	if err := s.ensureReady(ctx); err != nil {
		return false, err
	}
	return s.cache.has(checksum), nil
}

// SearchFiles returns the cached files matching query, with their current
// processing state. Filtering is best-effort and evaluated purely against
// cached metadata. Results are ordered by checksum for stable output.
func (s *Store) SearchFiles(ctx context.Context, query SearchQuery) ([]FileDataResponse, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	files := s.cache.snapshot()

	checksums := make([]string, 0, len(files))
	for checksum := range files {
		checksums = append(checksums, checksum)
	}
	sort.Strings(checksums)

	results := make([]FileDataResponse, 0, len(files))
	for _, checksum := range checksums {
		fd := files[checksum]
		if !matchesQuery(fd, query) {
			continue
		}
		results = append(results, FileDataResponse{
			Checksum:     checksum,
			IsProcessing: s.locks.held(checksum),
			FileData:     fd,
		})
		if query.MaxResults > 0 && len(results) >= query.MaxResults {
			break
		}
	}
	return results, nil
}

// matchesQuery evaluates the best-effort filters against cached metadata
// only. A file with an unparseable modified time passes the time filters
// rather than disappearing from listings.
func matchesQuery(fd *FileData, query SearchQuery) bool {
	if len(query.Keywords) > 0 {
		name := strings.ToLower(fd.Name)
		matched := false
		for _, kw := range query.Keywords {
			if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if query.ModifiedSince != nil || query.ModifiedBefore != nil {
		mtime, err := time.Parse(time.RFC3339, fd.ModifiedTime)
		if err != nil {
			return true
		}
		if query.ModifiedSince != nil && mtime.Before(*query.ModifiedSince) {
			return false
		}
		if query.ModifiedBefore != nil && mtime.After(*query.ModifiedBefore) {
			return false
		}
	}

	return true
}

// DownloadFile fetches the raw bytes for checksum from the backend using the
// stored file reference.
func (s *Store) DownloadFile(ctx context.Context, checksum string) (*RawFileData, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	fd, ok := s.cache.get(checksum)
	if !ok {
		return nil, fmt.Errorf("no file with checksum %q: %w", checksum, ErrFileNotFound)
	}

	content, err := s.backend.Download(ctx, fd)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("download failed: %w: %w", ErrBackendUnavailable, err)
	}

	return &RawFileData{
		Content:  content,
		Name:     fd.Name,
		MimeType: fd.MimeType,
	}, nil
}

// DownloadLink returns a backend-specific locator for checksum that is
// fetchable without authentication against this service.
func (s *Store) DownloadLink(ctx context.Context, checksum string) (string, error) {
	if err := s.ensureReady(ctx); err != nil {
		return "", err
	}

	fd, ok := s.cache.get(checksum)
	if !ok {
		return "", fmt.Errorf("no file with checksum %q: %w", checksum, ErrFileNotFound)
	}

	link, err := s.backend.ShareLink(ctx, fd)
	if err != nil {
		return "", fmt.Errorf("share link generation failed: %w: %w", ErrBackendUnavailable, err)
	}
	return link, nil
}

// DeleteFile removes the physical object, drops the cache entry and
// synchronizes the remote metadata document. The file's processing lock
// entry, if any, is orphaned but harmless.
func (s *Store) DeleteFile(ctx context.Context, checksum string) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}

	fd, ok := s.cache.get(checksum)
	if !ok {
		return fmt.Errorf("no file with checksum %q: %w", checksum, ErrFileNotFound)
	}

	if err := s.backend.Remove(ctx, fd); err != nil {
		return fmt.Errorf("delete failed: %w: %w", ErrBackendUnavailable, err)
	}

	s.cache.delete(checksum)
	if err := s.publish(ctx); err != nil {
		return err
	}

	logger.Info("deleted %s (%s) from %s backend", checksum, fd.Name, s.backend.Name())
	return nil
}

// UpdateFileData applies a partial metadata update and synchronizes the
// remote document. Only fields that exist on FileData may be named; an
// unknown field fails the whole update with ErrInvalidField before anything
// is mutated.
func (s *Store) UpdateFileData(ctx context.Context, checksum string, updates map[string]any) (*FileData, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	fd, ok := s.cache.get(checksum)
	if !ok {
		return nil, fmt.Errorf("no file with checksum %q: %w", checksum, ErrFileNotFound)
	}

	for field, value := range updates {
		if err := applyFieldUpdate(fd, field, value); err != nil {
			return nil, err
		}
	}

	if err := s.saveFileData(ctx, checksum, fd); err != nil {
		return nil, err
	}
	return fd, nil
}

func applyFieldUpdate(fd *FileData, field string, value any) error {
	str := func() (string, error) {
		v, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("field %q expects a string: %w", field, ErrInvalidField)
		}
		return v, nil
	}

	switch field {
	case "name":
		v, err := str()
		if err != nil {
			return err
		}
		fd.Name = v
	case "mime_type":
		v, err := str()
		if err != nil {
			return err
		}
		fd.MimeType = v
	case "raw_ocr":
		v, err := str()
		if err != nil {
			return err
		}
		fd.RawOCR = v
	case "summary":
		v, err := str()
		if err != nil {
			return err
		}
		fd.Summary = v
	default:
		return fmt.Errorf("field %q: %w", field, ErrInvalidField)
	}
	return nil
}
