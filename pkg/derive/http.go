package derive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPExtractor invokes a remote OCR engine over HTTP: the raw document bytes
// are POSTed with their MIME type as Content-Type, and the response body is
// the extracted text.
type HTTPExtractor struct {
	// Endpoint is the full URL of the extraction service.
	Endpoint string

	// Client is the HTTP client to use. Nil falls back to a client with a
	// 5 minute timeout; OCR on large PDFs is slow.
	Client *http.Client
}

// NewHTTPExtractor creates an extractor against endpoint with the default
// client.
func NewHTTPExtractor(endpoint string) *HTTPExtractor {
	return &HTTPExtractor{Endpoint: endpoint}
}

func (e *HTTPExtractor) Extract(ctx context.Context, content []byte, mimeType string) (string, error) {
	return postForText(ctx, e.Client, e.Endpoint, bytes.NewReader(content), mimeType)
}

// HTTPSummarizer invokes a remote summarization engine over HTTP: the
// extracted text is POSTed as text/plain and the response body is the
// summary.
type HTTPSummarizer struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPSummarizer creates a summarizer against endpoint with the default
// client.
func NewHTTPSummarizer(endpoint string) *HTTPSummarizer {
	return &HTTPSummarizer{Endpoint: endpoint}
}

func (s *HTTPSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	return postForText(ctx, s.Client, s.Endpoint, strings.NewReader(text), "text/plain; charset=utf-8")
}

func postForText(ctx context.Context, client *http.Client, endpoint string, body io.Reader, contentType string) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return string(data), nil
}
