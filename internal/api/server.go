// Package api exposes the read-only audit HTTP API: sync run history
// and processed documents per user, plus health and metrics endpoints.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexwatch/tribsync/internal/domain"
	"github.com/lexwatch/tribsync/internal/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// SyncLogLister reads sync run history.
type SyncLogLister interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.SyncLog, error)
}

// DocumentLister reads processed documents.
type DocumentLister interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.PersistedDocument, error)
}

// Server is the audit API server.
type Server struct {
	router    *gin.Engine
	syncLogs  SyncLogLister
	documents DocumentLister
	log       logger.Interface
}

// NewServer creates the audit API server and registers its routes.
func NewServer(syncLogs SyncLogLister, documents DocumentLister, log logger.Interface) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		syncLogs:  syncLogs,
		documents: documents,
		log:       log,
	}

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/users/:user_id/sync-logs", s.handleSyncLogs)
		api.GET("/users/:user_id/documents", s.handleDocuments)
	}

	return s
}

// Handler returns the underlying handler for use with an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSyncLogs(c *gin.Context) {
	userID := c.Param("user_id")
	limit, offset := pagination(c)

	logs, err := s.syncLogs.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		s.log.Error("failed to list sync logs", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sync logs"})
		return
	}
	if logs == nil {
		logs = []*domain.SyncLog{}
	}
	c.JSON(http.StatusOK, gin.H{"sync_logs": logs, "limit": limit, "offset": offset})
}

func (s *Server) handleDocuments(c *gin.Context) {
	userID := c.Param("user_id")
	limit, offset := pagination(c)

	docs, err := s.documents.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		s.log.Error("failed to list documents", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}
	if docs == nil {
		docs = []*domain.PersistedDocument{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "limit": limit, "offset": offset})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
