package storage

import (
	"encoding/json"
	"fmt"
	"sync"
)

// metadataDocument is the wire format of the remote metadata document.
// An empty store serializes to {"files":{}}.
type metadataDocument struct {
	Files map[string]*FileData `json:"files"`
}

// metadataCache is the local mirror of the remote metadata document: a
// checksum-keyed map guarded by a scoped read/write lock.
//
// All accessors copy FileData in and out, so values held by callers are
// immutable snapshots and reads never observe a concurrent mutation.
type metadataCache struct {
	mu    sync.RWMutex
	files map[string]*FileData
}

func newMetadataCache() *metadataCache {
	return &metadataCache{files: make(map[string]*FileData)}
}

// get returns a copy of the entry for checksum, if present.
func (c *metadataCache) get(checksum string) (*FileData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fd, ok := c.files[checksum]
	if !ok {
		return nil, false
	}
	return fd.Clone(), true
}

func (c *metadataCache) has(checksum string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.files[checksum]
	return ok
}

// set stores a copy of fd under checksum, creating or replacing the entry.
func (c *metadataCache) set(checksum string, fd *FileData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.files[checksum] = fd.Clone()
}

// setIfAbsent stores a copy of fd under checksum unless an entry already
// exists. It returns a copy of the entry that is current after the call and
// reports whether fd was inserted. The check and the insert happen under one
// write lock, so two racing writers cannot both insert.
func (c *metadataCache) setIfAbsent(checksum string, fd *FileData) (*FileData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.files[checksum]; ok {
		return existing.Clone(), false
	}
	c.files[checksum] = fd.Clone()
	return fd.Clone(), true
}

func (c *metadataCache) delete(checksum string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.files, checksum)
}

func (c *metadataCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.files)
}

// snapshot returns a deep copy of the full cache contents.
func (c *metadataCache) snapshot() map[string]*FileData {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*FileData, len(c.files))
	for checksum, fd := range c.files {
		out[checksum] = fd.Clone()
	}
	return out
}

// replace swaps the full cache contents, taking ownership of files.
// A nil map resets the cache to empty.
func (c *metadataCache) replace(files map[string]*FileData) {
	if files == nil {
		files = make(map[string]*FileData)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.files = files
}

// encode serializes the full cache as the remote metadata document.
func (c *metadataCache) encode() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := json.Marshal(metadataDocument{Files: c.files})
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata document: %w", err)
	}
	return data, nil
}

// decodeMetadataDocument parses a remote metadata document into a
// checksum-keyed map. A parse failure is reported as ErrCorruptMetadata so
// bootstrap can distinguish "malformed" from "absent".
func decodeMetadataDocument(data []byte) (map[string]*FileData, error) {
	var doc metadataDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrCorruptMetadata)
	}

	if doc.Files == nil {
		doc.Files = make(map[string]*FileData)
	}
	for checksum, fd := range doc.Files {
		if fd == nil {
			return nil, fmt.Errorf("missing metadata for checksum %q: %w", checksum, ErrCorruptMetadata)
		}
	}
	return doc.Files, nil
}
