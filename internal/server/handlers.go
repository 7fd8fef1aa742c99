package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meeplabs/docstore/pkg/registry"
	"github.com/meeplabs/docstore/pkg/storage"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// resolveStore looks up the backend named in the route, writing the error
// response itself when the lookup fails.
func (s *Server) resolveStore(c *gin.Context) (*storage.Store, bool) {
	store, err := s.registry.Get(c.Param("backend"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return nil, false
	}
	return store, true
}

// writeError maps storage errors onto HTTP statuses: unknown checksums and
// backends are 404, rejected input is 400, backend outages are 502,
// everything else surfaces as 500 with the underlying message.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrFileNotFound), errors.Is(err, registry.ErrUnknownBackend):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidField):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrBackendUnavailable):
		status = http.StatusBadGateway
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

// allowedMimeType reports whether uploads of this type are accepted:
// PDFs and images only.
func allowedMimeType(mime string) bool {
	return mime == "application/pdf" || strings.HasPrefix(mime, "image/")
}

// parseProcessQuery reads the ensure_process query parameter.
func parseProcessQuery(c *gin.Context) (storage.ProcessLevel, error) {
	return storage.ParseProcessLevel(c.DefaultQuery("ensure_process", "none"))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"backends": s.registry.Names(),
	})
}

// handleUpload accepts a multipart upload and stores it content-addressed.
//
// Rejected with 400: missing file part, missing content type, empty or
// oversized content, or a MIME type outside the PDF/image allow-list.
func (s *Server) handleUpload(c *gin.Context) {
	store, ok := s.resolveStore(c)
	if !ok {
		return
	}

	level, err := parseProcessQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "multipart field \"file\" is required"})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "file content type is required"})
		return
	}
	if !allowedMimeType(mimeType) {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("unsupported MIME type %q: only application/pdf and image/* are accepted", mimeType),
		})
		return
	}

	if fileHeader.Size <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "file size is required"})
		return
	}
	if fileHeader.Size > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("file size %d exceeds the %d byte limit", fileHeader.Size, s.cfg.MaxUploadBytes),
		})
		return
	}

	content, err := readMultipartFile(fileHeader, s.cfg.MaxUploadBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	resp, err := store.AddFile(c.Request.Context(), &storage.RawFileData{
		Content:  content,
		Name:     fileHeader.Filename,
		MimeType: mimeType,
	}, level)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleList returns the cached files of a backend, optionally filtered by
// keywords (comma separated, matched against names), modified_since and
// modified_before (RFC 3339) and capped by max_results.
func (s *Server) handleList(c *gin.Context) {
	store, ok := s.resolveStore(c)
	if !ok {
		return
	}

	query, err := parseSearchQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	results, err := store.SearchFiles(c.Request.Context(), query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func parseSearchQuery(c *gin.Context) (storage.SearchQuery, error) {
	var query storage.SearchQuery

	if raw := c.Query("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return query, fmt.Errorf("invalid max_results %q", raw)
		}
		query.MaxResults = n
	}

	if raw := c.Query("keywords"); raw != "" {
		for _, kw := range strings.Split(raw, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				query.Keywords = append(query.Keywords, kw)
			}
		}
	}

	parseTime := func(param string) (*time.Time, error) {
		raw := c.Query(param)
		if raw == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: expected RFC 3339", param, raw)
		}
		return &t, nil
	}

	var err error
	if query.ModifiedSince, err = parseTime("modified_since"); err != nil {
		return query, err
	}
	if query.ModifiedBefore, err = parseTime("modified_before"); err != nil {
		return query, err
	}
	return query, nil
}

func (s *Server) handleExists(c *gin.Context) {
	store, ok := s.resolveStore(c)
	if !ok {
		return
	}

	exists, err := store.FileExists(c.Request.Context(), c.Param("checksum"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

// handleShareLink returns a backend-generated share link for the file.
func (s *Server) handleShareLink(c *gin.Context) {
	store, ok := s.resolveStore(c)
	if !ok {
		return
	}

	link, err := store.DownloadLink(c.Request.Context(), c.Param("checksum"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

// handleDownload streams the raw bytes back with their stored MIME type and
// an attachment disposition carrying the original name.
func (s *Server) handleDownload(c *gin.Context) {
	store, ok := s.resolveStore(c)
	if !ok {
		return
	}

	raw, err := store.DownloadFile(c.Request.Context(), c.Param("checksum"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", raw.Name))
	c.Data(http.StatusOK, raw.MimeType, raw.Content)
}

// handleFileData returns the file's metadata, blocking until the requested
// derivation level is satisfied when ensure_process is set.
func (s *Server) handleFileData(c *gin.Context) {
	store, ok := s.resolveStore(c)
	if !ok {
		return
	}

	level, err := parseProcessQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	fd, err := store.GetFileData(c.Request.Context(), c.Param("checksum"), level)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fd)
}

// handleUpdate applies a partial metadata update from a JSON object body.
func (s *Server) handleUpdate(c *gin.Context) {
	store, ok := s.resolveStore(c)
	if !ok {
		return
	}

	var updates map[string]any
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "request body must be a JSON object"})
		return
	}

	fd, err := store.UpdateFileData(c.Request.Context(), c.Param("checksum"), updates)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fd)
}

func (s *Server) handleDelete(c *gin.Context) {
	store, ok := s.resolveStore(c)
	if !ok {
		return
	}

	checksum := c.Param("checksum")
	if err := store.DeleteFile(c.Request.Context(), checksum); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": checksum})
}

// readMultipartFile reads the upload fully, enforcing the size cap against
// the actual bytes read rather than trusting the declared size alone.
func readMultipartFile(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("file exceeds the %d byte limit", limit)
	}
	return content, nil
}
