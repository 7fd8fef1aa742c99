package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meeplabs/docstore/pkg/derive"
)

// fakeBackend is an in-memory Backend with call-count instrumentation and
// per-operation error injection.
type fakeBackend struct {
	mu      sync.Mutex
	doc     []byte
	hasDoc  bool
	objects map[string][]byte

	uploadCalls   int
	downloadCalls int
	removeCalls   int
	storeDocCalls int

	loadErr     error
	storeErr    error
	uploadErr   error
	downloadErr error
	removeErr   error

	// uploadHook, when set, runs at the start of each Upload call (outside
	// the mutex, so it may block) with the 1-based call number. Lets tests
	// stall a chosen upload to order concurrent callers.
	uploadHook func(call int)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: make(map[string][]byte)}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) LoadMetadataDocument(ctx context.Context) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return nil, false, b.loadErr
	}
	if !b.hasDoc {
		return nil, false, nil
	}
	return append([]byte(nil), b.doc...), true, nil
}

func (b *fakeBackend) StoreMetadataDocument(ctx context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.storeDocCalls++
	if b.storeErr != nil {
		return b.storeErr
	}
	b.doc = append([]byte(nil), data...)
	b.hasDoc = true
	return nil
}

func (b *fakeBackend) Upload(ctx context.Context, checksum string, raw *RawFileData) (*FileData, error) {
	b.mu.Lock()
	b.uploadCalls++
	call := b.uploadCalls
	hook := b.uploadHook
	b.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return nil, b.uploadErr
	}

	ref := "obj-" + checksum
	b.objects[ref] = append([]byte(nil), raw.Content...)

	return &FileData{
		FileReference: ref,
		Name:          raw.Name,
		MimeType:      raw.MimeType,
		Size:          int64(len(raw.Content)),
		ModifiedTime:  time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (b *fakeBackend) Download(ctx context.Context, fd *FileData) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.downloadCalls++
	if b.downloadErr != nil {
		return nil, b.downloadErr
	}

	content, ok := b.objects[fd.FileReference]
	if !ok {
		return nil, fmt.Errorf("object %q: %w", fd.FileReference, ErrFileNotFound)
	}
	return append([]byte(nil), content...), nil
}

func (b *fakeBackend) Remove(ctx context.Context, fd *FileData) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeCalls++
	if b.removeErr != nil {
		return b.removeErr
	}
	delete(b.objects, fd.FileReference)
	return nil
}

func (b *fakeBackend) ShareLink(ctx context.Context, fd *FileData) (string, error) {
	return "fake://" + fd.FileReference, nil
}

// storedDoc returns the current remote document, for assertions.
func (b *fakeBackend) storedDoc() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.doc...), b.hasDoc
}

// counts returns a snapshot of the call counters.
func (b *fakeBackend) counts() (uploads, downloads, removes, storeDocs int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploadCalls, b.downloadCalls, b.removeCalls, b.storeDocCalls
}

// fakeExtractor counts calls and can fail or block until released.
type fakeExtractor struct {
	mu      sync.Mutex
	calls   int
	text    string
	err     error
	blockCh chan struct{} // when set, Extract waits for a receive-close
}

func (e *fakeExtractor) Extract(ctx context.Context, content []byte, mimeType string) (string, error) {
	e.mu.Lock()
	e.calls++
	text, err, blockCh := e.text, e.err, e.blockCh
	e.mu.Unlock()

	if blockCh != nil {
		select {
		case <-blockCh:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if text == "" {
		text = "extracted text"
	}
	return text, nil
}

func (e *fakeExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeSummarizer counts calls and can fail.
type fakeSummarizer struct {
	mu      sync.Mutex
	calls   int
	summary string
	err     error
}

func (s *fakeSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.summary != "" {
		return s.summary, nil
	}
	return "summary of: " + text, nil
}

func (s *fakeSummarizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var (
	_ Backend           = (*fakeBackend)(nil)
	_ derive.Extractor  = (*fakeExtractor)(nil)
	_ derive.Summarizer = (*fakeSummarizer)(nil)
)
