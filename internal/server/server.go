// Package server exposes the HTTP API: scanning, search, face
// clusters, status and organization suggestions.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartfolder/smartfolder/internal/errors"
	"github.com/smartfolder/smartfolder/internal/faces"
	"github.com/smartfolder/smartfolder/internal/scanner"
	"github.com/smartfolder/smartfolder/internal/search"
	"github.com/smartfolder/smartfolder/internal/store"
)

// Server wires the HTTP handlers to the application components.
type Server struct {
	st        *store.MetadataStore
	scanner   *scanner.Scanner
	search    *search.Coordinator
	faces     *faces.Engine
	scanPaths []string
	logger    *slog.Logger
}

// New creates a Server.
func New(st *store.MetadataStore, sc *scanner.Scanner, coord *search.Coordinator,
	faceEngine *faces.Engine, scanPaths []string, logger *slog.Logger) *Server {

	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		st:        st,
		scanner:   sc,
		search:    coord,
		faces:     faceEngine,
		scanPaths: scanPaths,
		logger:    logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/scan", s.handleScan)
		api.POST("/search", s.handleSearch)
		api.GET("/faces", s.handleFaceClusters)
		api.POST("/faces/:cluster_id", s.handleFaceClusterImages)
		api.GET("/status", s.handleStatus)
		api.GET("/stats", s.handleStats)
		api.GET("/organize", s.handleOrganize)
	}
	return r
}

// Run serves the API until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.Router().Run(addr)
}

// fail writes a structured error with the right HTTP status.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeQueryEmpty, errors.ErrCodeUnknownSearchMode,
		errors.ErrCodePathNotFound, errors.ErrCodePathUnreadable:
		status = http.StatusBadRequest
	case errors.ErrCodeUnknownCluster:
		status = http.StatusNotFound
	case errors.ErrCodeConcurrentScan:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errors.GetCode(err)})
}
