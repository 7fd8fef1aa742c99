// This file contains the storage.Backend implementation: folder bootstrap
// and the metadata/content operations expressed over the REST client in
// api.go.
//
// Remote Layout:
//
//	{root folder}/
//	    file_metadata.json      <- metadata document
//	    files/
//	        {checksum}_{name}   <- file objects
//
// The API's own file id is stored as the FileReference, so every later
// operation is a direct id lookup rather than a name search.
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/meeplabs/docstore/pkg/storage"
)

const metadataDocName = "file_metadata.json"

// Backend stores files in a Drive-v3 compatible hierarchical document API.
type Backend struct {
	httpClient *http.Client
	token      TokenSource
	baseURL    string
	uploadURL  string

	rootFolderID   string
	filesFolderID  string
	metadataFileID string // empty until the document first exists remotely
}

// Config contains configuration for the document API backend.
type Config struct {
	// Token supplies bearer tokens for every request. Required.
	Token TokenSource

	// RootFolderName is the application folder created at the drive root.
	// Defaults to "docstore".
	RootFolderName string

	// BaseURL and UploadURL override the public API endpoints, mainly for
	// tests against a fake server.
	BaseURL   string
	UploadURL string

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// New creates the backend and bootstraps the remote folder structure: the
// application root folder and its "files" subfolder are located by query and
// created when absent.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Token == nil {
		return nil, fmt.Errorf("token source is required")
	}

	rootName := cfg.RootFolderName
	if rootName == "" {
		rootName = "docstore"
	}

	b := &Backend{
		httpClient: cfg.HTTPClient,
		token:      cfg.Token,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		uploadURL:  strings.TrimSuffix(cfg.UploadURL, "/"),
	}
	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if b.baseURL == "" {
		b.baseURL = DefaultBaseURL
	}
	if b.uploadURL == "" {
		b.uploadURL = DefaultUploadURL
	}

	rootID, err := b.ensureFolder(ctx, rootName, "")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare root folder: %w", err)
	}
	b.rootFolderID = rootID

	filesID, err := b.ensureFolder(ctx, "files", rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare files folder: %w", err)
	}
	b.filesFolderID = filesID

	return b, nil
}

// escapeQueryTerm makes a literal safe for interpolation into a files.list
// q expression: backslashes and single quotes are backslash-escaped.
func escapeQueryTerm(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// ensureFolder returns the id of the named folder under parent, creating it
// when no match exists.
func (b *Backend) ensureFolder(ctx context.Context, name, parent string) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQueryTerm(name), folderMimeType)
	if parent != "" {
		q += fmt.Sprintf(" and '%s' in parents", parent)
	}

	matches, err := b.query(ctx, q)
	if err != nil {
		return "", err
	}
	if len(matches) > 0 {
		return matches[0].ID, nil
	}
	return b.createFolder(ctx, name, parent)
}

// Name implements storage.Backend.
func (b *Backend) Name() string {
	return "drive"
}

// LoadMetadataDocument implements storage.Backend. The document is located
// by name under the root folder; its id is remembered for later overwrites.
func (b *Backend) LoadMetadataDocument(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQueryTerm(metadataDocName), b.rootFolderID)
	matches, err := b.query(ctx, q)
	if err != nil {
		return nil, false, fmt.Errorf("metadata document lookup failed: %w", err)
	}
	if len(matches) == 0 {
		return nil, false, nil
	}

	b.metadataFileID = matches[0].ID

	data, err := b.downloadMedia(ctx, b.metadataFileID)
	if err != nil {
		return nil, false, fmt.Errorf("metadata document download failed: %w", err)
	}
	return data, true, nil
}

// StoreMetadataDocument implements storage.Backend. The first store creates
// the document; later stores replace its content in place.
func (b *Backend) StoreMetadataDocument(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if b.metadataFileID == "" {
		created, err := b.uploadMultipart(ctx, metadataDocName, "application/json", b.rootFolderID, data)
		if err != nil {
			return fmt.Errorf("metadata document creation failed: %w", err)
		}
		b.metadataFileID = created.ID
		return nil
	}

	if err := b.updateMedia(ctx, b.metadataFileID, "application/json", data); err != nil {
		return fmt.Errorf("metadata document update failed: %w", err)
	}
	return nil
}

// Upload implements storage.Backend. The remote display name carries the
// checksum prefix so the files folder stays inspectable; the returned
// FileData keeps the caller's original name.
func (b *Backend) Upload(ctx context.Context, checksum string, raw *storage.RawFileData) (*storage.FileData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	remoteName := fmt.Sprintf("%s_%s", checksum, raw.Name)
	created, err := b.uploadMultipart(ctx, remoteName, raw.MimeType, b.filesFolderID, raw.Content)
	if err != nil {
		return nil, err
	}

	size := created.sizeBytes()
	if size == 0 {
		size = int64(len(raw.Content))
	}
	modified := created.ModifiedTime
	if modified == "" {
		modified = time.Now().UTC().Format(time.RFC3339)
	}

	return &storage.FileData{
		FileReference: created.ID,
		Name:          raw.Name,
		MimeType:      raw.MimeType,
		Size:          size,
		ModifiedTime:  modified,
	}, nil
}

// Download implements storage.Backend.
func (b *Backend) Download(ctx context.Context, fd *storage.FileData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := b.downloadMedia(ctx, fd.FileReference)
	if err != nil {
		if isAPINotFound(err) {
			return nil, fmt.Errorf("document %s: %w", fd.FileReference, storage.ErrFileNotFound)
		}
		return nil, fmt.Errorf("content download failed: %w", err)
	}
	return data, nil
}

// Remove implements storage.Backend. A 404 from the API counts as success;
// the document is already gone.
func (b *Backend) Remove(ctx context.Context, fd *storage.FileData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := b.deleteFile(ctx, fd.FileReference); err != nil && !isAPINotFound(err) {
		return fmt.Errorf("document deletion failed: %w", err)
	}
	return nil
}

// ShareLink implements storage.Backend. The document is opened to
// anyone-with-the-link readers, then its direct content link is returned
// (falling back to the viewer link for types the API refuses to serve
// directly).
func (b *Backend) ShareLink(ctx context.Context, fd *storage.FileData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := b.createAnyoneReaderPermission(ctx, fd.FileReference); err != nil {
		return "", err
	}

	f, err := b.getFileLinks(ctx, fd.FileReference)
	if err != nil {
		return "", err
	}
	if f.WebContentLink != "" {
		return f.WebContentLink, nil
	}
	if f.WebViewLink != "" {
		return f.WebViewLink, nil
	}
	return "", fmt.Errorf("document %s has no shareable link", fd.FileReference)
}

func isAPINotFound(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
