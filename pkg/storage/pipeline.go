package storage

import (
	"context"
	"fmt"

	"github.com/meeplabs/docstore/internal/logger"
	"github.com/meeplabs/docstore/pkg/derive"
)

// deriveLocked runs the derivation pipeline for checksum up to the requested
// level. The caller MUST hold the file's processing lock; this function
// never releases it.
//
// The pipeline is idempotent and monotonic: already-populated fields are
// never recomputed and never overwritten. A populated raw_ocr with a missing
// summary resumes at the summarization step. Each derived field is persisted
// (cache + remote document) as soon as it is produced, so a crash between
// steps loses at most the unfinished step.
//
// raw may carry the original bytes when the caller already has them (the
// upload path); when nil, the bytes are re-downloaded from the backend if
// extraction is needed.
func (s *Store) deriveLocked(ctx context.Context, checksum string, level ProcessLevel, raw *RawFileData) error {
	fd, ok := s.cache.get(checksum)
	if !ok {
		// Deleted between scheduling and execution; nothing to derive.
		return nil
	}

	needOCR := fd.RawOCR == ""
	needSummary := level == ProcessSummary && fd.Summary == ""
	if !needOCR && !needSummary {
		return nil
	}

	if !derive.SupportedMimeType(fd.MimeType) {
		// The sentinel is stored in BOTH fields so the unsupported type is
		// settled once and never re-attempted.
		sentinel := derive.UnsupportedText(fd.MimeType)
		fd.RawOCR = sentinel
		fd.Summary = sentinel
		logger.Debug("skipping derivation for %s: unsupported mime type %q", checksum, fd.MimeType)
		return s.saveFileData(ctx, checksum, fd)
	}

	if needOCR {
		if raw == nil {
			content, err := s.backend.Download(ctx, fd)
			if err != nil {
				return fmt.Errorf("failed to fetch content for text extraction: %w", err)
			}
			raw = &RawFileData{Content: content, Name: fd.Name, MimeType: fd.MimeType}
		}

		text, err := s.extractor.Extract(ctx, raw.Content, fd.MimeType)
		if err != nil {
			return fmt.Errorf("text extraction for %s failed: %w", checksum, err)
		}
		fd.RawOCR = text
		if err := s.saveFileData(ctx, checksum, fd); err != nil {
			return err
		}
		logger.Debug("extracted %d bytes of text from %s", len(text), checksum)
	}

	if level == ProcessSummary && fd.Summary == "" {
		summary, err := s.summarizer.Summarize(ctx, fd.RawOCR)
		if err != nil {
			return fmt.Errorf("summarization for %s failed: %w", checksum, err)
		}
		fd.Summary = summary
		if err := s.saveFileData(ctx, checksum, fd); err != nil {
			return err
		}
		logger.Debug("summarized %s (%d bytes)", checksum, len(summary))
	}

	return nil
}
