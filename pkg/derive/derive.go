// Package derive defines the external collaborators of the derivation
// pipeline: a text extractor (OCR) and a summarizer. Both are black boxes to
// the storage core; the engines themselves live outside this service and are
// reached through the interfaces below.
package derive

import (
	"context"
	"fmt"
	"strings"
)

// Extractor turns raw document bytes into extracted text.
//
// Implementations own their timeout policy; the core enforces none.
type Extractor interface {
	Extract(ctx context.Context, content []byte, mimeType string) (string, error)
}

// Summarizer condenses extracted text into a shorter text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, content []byte, mimeType string) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, content []byte, mimeType string) (string, error) {
	return f(ctx, content, mimeType)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, text string) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// SupportedMimeType reports whether the extraction engine accepts this MIME
// type: PDF and image types only.
func SupportedMimeType(mimeType string) bool {
	return mimeType == "application/pdf" || strings.HasPrefix(mimeType, "image/")
}

// UnsupportedText is the sentinel stored into both the extracted-text and
// summary fields when a file's MIME type is outside the allow-list. It marks
// the file as processed without treating the unsupported type as an error.
func UnsupportedText(mimeType string) string {
	return fmt.Sprintf("Cannot perform OCR on file with MIME type '%s'", mimeType)
}
