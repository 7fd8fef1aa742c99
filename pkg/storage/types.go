package storage

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

// ProcessLevel selects how much derived data must exist for a file before an
// operation is considered satisfied.
type ProcessLevel string

const (
	// ProcessNone requests no derivation work.
	ProcessNone ProcessLevel = "none"

	// ProcessOCR requests that extracted text is populated.
	ProcessOCR ProcessLevel = "ocr"

	// ProcessSummary requests that both extracted text and summary are populated.
	ProcessSummary ProcessLevel = "summary"
)

// ParseProcessLevel converts a query-string value into a ProcessLevel.
// The empty string maps to ProcessNone.
func ParseProcessLevel(s string) (ProcessLevel, error) {
	switch ProcessLevel(s) {
	case "", ProcessNone:
		return ProcessNone, nil
	case ProcessOCR:
		return ProcessOCR, nil
	case ProcessSummary:
		return ProcessSummary, nil
	default:
		return ProcessNone, fmt.Errorf("invalid process level %q (valid: none, ocr, summary)", s)
	}
}

// RawFileData carries the transient payload of an upload or download call.
// It is never persisted as a unit; FileData is the durable record.
type RawFileData struct {
	Content  []byte
	Name     string
	MimeType string
}

// FileData is the persisted metadata for one stored file, keyed by checksum.
//
// JSON tags match the remote metadata document format:
//
//	{"files": {"<checksum>": {"file_reference": ..., "name": ..., ...}}}
//
// RawOCR and Summary are write-once: empty means "never derived", and once a
// non-empty value is set no derivation call overwrites it. Summary is only
// ever non-empty when RawOCR is non-empty.
type FileData struct {
	// FileReference locates the physical object on the backend: an S3 object
	// key, a remote file ID, a filesystem path or a KV key depending on the
	// backend type.
	FileReference string `json:"file_reference"`
	Name          string `json:"name"`
	MimeType      string `json:"mime_type"`
	Size          int64  `json:"size"`

	// ModifiedTime is ISO-8601 (RFC 3339), normalized to UTC.
	ModifiedTime string `json:"modified_time"`

	RawOCR  string `json:"raw_ocr,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Clone returns an independent copy so cache snapshots stay immutable.
func (fd *FileData) Clone() *FileData {
	if fd == nil {
		return nil
	}
	c := *fd
	return &c
}

// FileDataResponse is the unit returned by search and add operations.
type FileDataResponse struct {
	// Checksum is the content hash used as the file ID across the system.
	Checksum string `json:"checksum"`

	// IsProcessing reports whether a derivation task currently holds the
	// processing lock for this checksum.
	IsProcessing bool `json:"is_processing"`

	FileData *FileData `json:"file_data"`
}

// SearchQuery narrows the result of SearchFiles. Filtering is best-effort and
// evaluated purely against cached metadata; no backend round-trip is made.
type SearchQuery struct {
	MaxResults     int        `json:"max_results"`
	Keywords       []string   `json:"keywords"`
	ModifiedSince  *time.Time `json:"last_modified_since,omitempty"`
	ModifiedBefore *time.Time `json:"last_modified_before,omitempty"`
}

// Checksum computes the content hash used as the sole stable file identity:
// the hex-encoded SHA3-256 digest of the raw bytes.
func Checksum(content []byte) string {
	sum := sha3.Sum256(content)
	return hex.EncodeToString(sum[:])
}
