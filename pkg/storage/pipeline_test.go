package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeplabs/docstore/pkg/derive"
)

func TestUnsupportedMimeTypeStoresSentinel(t *testing.T) {
	store, _, extractor, summarizer := newTestStore()
	ctx := context.Background()

	raw := &RawFileData{
		Content:  []byte("plain text body"),
		Name:     "notes.txt",
		MimeType: "text/plain",
	}

	resp, err := store.AddFile(ctx, raw, ProcessSummary)
	require.NoError(t, err)

	fd, err := store.GetFileData(ctx, resp.Checksum, ProcessSummary)
	require.NoError(t, err)

	sentinel := derive.UnsupportedText("text/plain")
	assert.Equal(t, sentinel, fd.RawOCR, "the sentinel must land in raw_ocr")
	assert.Equal(t, sentinel, fd.Summary, "the sentinel must land in summary")

	assert.Zero(t, extractor.callCount(), "unsupported types must not reach the extractor")
	assert.Zero(t, summarizer.callCount(), "unsupported types must not reach the summarizer")
}

func TestImageMimeTypeIsSupported(t *testing.T) {
	store, _, extractor, _ := newTestStore()
	ctx := context.Background()

	raw := &RawFileData{
		Content:  []byte("fake png bytes"),
		Name:     "scan.png",
		MimeType: "image/png",
	}

	resp, err := store.AddFile(ctx, raw, ProcessOCR)
	require.NoError(t, err)

	fd, err := store.GetFileData(ctx, resp.Checksum, ProcessOCR)
	require.NoError(t, err)
	assert.Equal(t, "extracted text", fd.RawOCR)
	assert.Equal(t, 1, extractor.callCount())
}

func TestDerivationIsMonotonic(t *testing.T) {
	store, _, extractor, summarizer := newTestStore()
	ctx := context.Background()

	resp, err := store.AddFile(ctx, pdfRaw("monotonic content", "mono.pdf"), ProcessSummary)
	require.NoError(t, err)

	first, err := store.GetFileData(ctx, resp.Checksum, ProcessSummary)
	require.NoError(t, err)
	require.NotEmpty(t, first.Summary)

	// Re-requesting any level must never recompute or change the fields.
	for _, level := range []ProcessLevel{ProcessOCR, ProcessSummary} {
		again, err := store.GetFileData(ctx, resp.Checksum, level)
		require.NoError(t, err)
		assert.Equal(t, first.RawOCR, again.RawOCR)
		assert.Equal(t, first.Summary, again.Summary)
	}

	assert.Equal(t, 1, extractor.callCount())
	assert.Equal(t, 1, summarizer.callCount())
}

func TestOCRThenSummaryResumesAtSummarization(t *testing.T) {
	store, _, extractor, summarizer := newTestStore()
	ctx := context.Background()

	resp, err := store.AddFile(ctx, pdfRaw("two stage", "stages.pdf"), ProcessOCR)
	require.NoError(t, err)

	fd, err := store.GetFileData(ctx, resp.Checksum, ProcessOCR)
	require.NoError(t, err)
	assert.NotEmpty(t, fd.RawOCR)
	assert.Empty(t, fd.Summary)

	fd, err = store.GetFileData(ctx, resp.Checksum, ProcessSummary)
	require.NoError(t, err)
	assert.NotEmpty(t, fd.Summary)

	assert.Equal(t, 1, extractor.callCount(), "extraction must not rerun for the summary upgrade")
	assert.Equal(t, 1, summarizer.callCount())
}

func TestExtractionFailurePropagatesAndAllowsRetry(t *testing.T) {
	store, _, extractor, _ := newTestStore()
	ctx := context.Background()

	resp, err := store.AddFile(ctx, pdfRaw("flaky engine", "flaky.pdf"), ProcessNone)
	require.NoError(t, err)

	extractor.mu.Lock()
	extractor.err = errors.New("engine exploded")
	extractor.mu.Unlock()

	_, err = store.GetFileData(ctx, resp.Checksum, ProcessOCR)
	require.Error(t, err, "collaborator failure must propagate")

	fd, err := store.GetFileData(ctx, resp.Checksum, ProcessNone)
	require.NoError(t, err)
	assert.Empty(t, fd.RawOCR, "a failed derivation must leave the field unset")

	// The lock was released on failure, so a retry can run.
	extractor.mu.Lock()
	extractor.err = nil
	extractor.mu.Unlock()

	fd, err = store.GetFileData(ctx, resp.Checksum, ProcessOCR)
	require.NoError(t, err)
	assert.Equal(t, "extracted text", fd.RawOCR)
}

func TestSummarizationFailureKeepsExtractedText(t *testing.T) {
	store, _, _, summarizer := newTestStore()
	ctx := context.Background()

	resp, err := store.AddFile(ctx, pdfRaw("half done", "half.pdf"), ProcessNone)
	require.NoError(t, err)

	summarizer.mu.Lock()
	summarizer.err = errors.New("summarizer down")
	summarizer.mu.Unlock()

	_, err = store.GetFileData(ctx, resp.Checksum, ProcessSummary)
	require.Error(t, err)

	fd, err := store.GetFileData(ctx, resp.Checksum, ProcessNone)
	require.NoError(t, err)
	assert.NotEmpty(t, fd.RawOCR, "the completed extraction step must be persisted")
	assert.Empty(t, fd.Summary)

	summarizer.mu.Lock()
	summarizer.err = nil
	summarizer.mu.Unlock()

	fd, err = store.GetFileData(ctx, resp.Checksum, ProcessSummary)
	require.NoError(t, err)
	assert.NotEmpty(t, fd.Summary)
}

func TestDerivationDownloadsWhenBytesUnavailable(t *testing.T) {
	store, backend, extractor, _ := newTestStore()
	ctx := context.Background()

	// Add with no derivation, then request OCR later: the pipeline has no
	// raw bytes in hand and must fetch them from the backend.
	resp, err := store.AddFile(ctx, pdfRaw("refetch me", "refetch.pdf"), ProcessNone)
	require.NoError(t, err)

	fd, err := store.GetFileData(ctx, resp.Checksum, ProcessOCR)
	require.NoError(t, err)
	assert.NotEmpty(t, fd.RawOCR)

	_, downloads, _, _ := backend.counts()
	assert.Equal(t, 1, downloads, "the pipeline must re-download content it does not hold")
	assert.Equal(t, 1, extractor.callCount())
}
