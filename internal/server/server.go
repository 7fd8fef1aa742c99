// Package server implements the HTTP gateway in front of the storage
// backends: upload, listing, existence, share links, blocking metadata
// reads, partial updates, raw downloads and deletion, dispatched to a named
// backend through the registry.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meeplabs/docstore/internal/logger"
	"github.com/meeplabs/docstore/pkg/registry"
)

// Config contains the HTTP server settings.
type Config struct {
	// ListenAddr is the bind address, e.g. ":8080".
	ListenAddr string

	// ShutdownTimeout bounds graceful shutdown on exit.
	ShutdownTimeout time.Duration

	// MaxUploadBytes caps accepted upload sizes.
	MaxUploadBytes int64
}

// Server is the HTTP gateway.
type Server struct {
	cfg      Config
	registry *registry.Registry
	http     *http.Server
}

// New builds the server and its router.
func New(cfg Config, reg *registry.Registry) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}

	s := &Server{cfg: cfg, registry: reg}
	s.http = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.buildRouter(),
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured timeout. Returns nil on clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", s.cfg.ListenAddr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server (timeout %s)", s.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// buildRouter wires middleware and routes. Exposed to tests through
// Handler().
func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog())

	router.GET("/healthz", s.handleHealth)

	router.POST("/upload_file/:backend", s.handleUpload)
	router.GET("/list_files/:backend", s.handleList)
	router.GET("/exists/:backend/:checksum", s.handleExists)
	router.GET("/file/:backend/:checksum", s.handleShareLink)
	router.GET("/download/:backend/:checksum", s.handleDownload)
	router.POST("/data/:backend/:checksum", s.handleFileData)
	router.PATCH("/data/:backend/:checksum", s.handleUpdate)
	router.DELETE("/file/:backend/:checksum", s.handleDelete)

	return router
}

// Handler returns the underlying HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
