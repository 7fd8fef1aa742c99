// Package drive implements the storage.Backend interface over a Drive-v3
// compatible hierarchical document API.
//
// This file contains the low-level REST client: request signing, JSON
// decoding, queries, uploads and downloads. Backend semantics live in
// drive.go.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
)

const (
	// DefaultBaseURL is the metadata/content endpoint of the public API.
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"

	// DefaultUploadURL is the media upload endpoint of the public API.
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"

	folderMimeType = "application/vnd.google-apps.folder"
)

// TokenSource supplies bearer tokens for API requests. How tokens are
// minted (service account, refresh flow, static token in tests) is the
// caller's concern.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token. Useful
// for tests and pre-minted credentials.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// driveFile is the subset of the API's file resource this backend reads.
// The API serializes size as a decimal string.
type driveFile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	Size           string `json:"size,omitempty"`
	ModifiedTime   string `json:"modifiedTime,omitempty"`
	WebContentLink string `json:"webContentLink,omitempty"`
	WebViewLink    string `json:"webViewLink,omitempty"`
}

func (f *driveFile) sizeBytes() int64 {
	n, err := strconv.ParseInt(f.Size, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

type fileList struct {
	Files []driveFile `json:"files"`
}

// do executes an authenticated request and fails on any non-2xx status,
// including a snippet of the response body for diagnosis.
func (b *Backend) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	token, err := b.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &apiError{Status: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// apiError carries the HTTP status of a failed API call so callers can map
// 404 to not-found semantics.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("document API returned status %d: %s", e.Status, e.Body)
}

// doJSON executes req and decodes the JSON response into out (which may be
// nil to discard the body).
func (b *Backend) doJSON(ctx context.Context, req *http.Request, out any) error {
	resp, err := b.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// query runs a files.list search and returns the matches.
func (b *Backend) query(ctx context.Context, q string) ([]driveFile, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("fields", "files(id,name,mimeType,size)")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		b.baseURL+"/files?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var list fileList
	if err := b.doJSON(ctx, req, &list); err != nil {
		return nil, fmt.Errorf("file query failed: %w", err)
	}
	return list.Files, nil
}

// createFolder creates a folder under parent (or at the root when parent is
// empty) and returns its id.
func (b *Backend) createFolder(ctx context.Context, name, parent string) (string, error) {
	meta := map[string]any{
		"name":     name,
		"mimeType": folderMimeType,
	}
	if parent != "" {
		meta["parents"] = []string{parent}
	}

	body, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/files", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var created driveFile
	if err := b.doJSON(ctx, req, &created); err != nil {
		return "", fmt.Errorf("folder creation failed: %w", err)
	}
	return created.ID, nil
}

// uploadMultipart creates a new file with metadata and content in a single
// multipart/related request, returning the created resource.
func (b *Backend) uploadMultipart(ctx context.Context, name, mimeType, parent string, content []byte) (*driveFile, error) {
	meta := map[string]any{
		"name":    name,
		"parents": []string{parent},
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	part, err := mw.CreatePart(metaHeader)
	if err != nil {
		return nil, err
	}
	part.Write(metaJSON)

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", mimeType)
	part, err = mw.CreatePart(mediaHeader)
	if err != nil {
		return nil, err
	}
	part.Write(content)

	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.uploadURL+"/files?uploadType=multipart&fields=id,name,mimeType,size,modifiedTime", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())

	var created driveFile
	if err := b.doJSON(ctx, req, &created); err != nil {
		return nil, fmt.Errorf("multipart upload failed: %w", err)
	}
	return &created, nil
}

// updateMedia replaces the content of an existing file via a media PATCH.
func (b *Backend) updateMedia(ctx context.Context, fileID, mimeType string, content []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		b.uploadURL+"/files/"+fileID+"?uploadType=media", bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mimeType)

	if err := b.doJSON(ctx, req, nil); err != nil {
		return fmt.Errorf("media update failed: %w", err)
	}
	return nil
}

// downloadMedia fetches the raw content of a file (alt=media).
func (b *Backend) downloadMedia(ctx context.Context, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		b.baseURL+"/files/"+fileID+"?alt=media", nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// deleteFile permanently removes a file.
func (b *Backend) deleteFile(ctx context.Context, fileID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		b.baseURL+"/files/"+fileID, nil)
	if err != nil {
		return err
	}
	return b.doJSON(ctx, req, nil)
}

// createAnyoneReaderPermission makes the file readable by anyone with the
// link, which is required before its content link is usable.
func (b *Backend) createAnyoneReaderPermission(ctx context.Context, fileID string) error {
	body, err := json.Marshal(map[string]string{
		"role": "reader",
		"type": "anyone",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/files/"+fileID+"/permissions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := b.doJSON(ctx, req, nil); err != nil {
		return fmt.Errorf("permission creation failed: %w", err)
	}
	return nil
}

// getFileLinks fetches the shareable links of a file.
func (b *Backend) getFileLinks(ctx context.Context, fileID string) (*driveFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		b.baseURL+"/files/"+fileID+"?fields=id,webContentLink,webViewLink", nil)
	if err != nil {
		return nil, err
	}

	var f driveFile
	if err := b.doJSON(ctx, req, &f); err != nil {
		return nil, fmt.Errorf("failed to fetch file links: %w", err)
	}
	return &f, nil
}
