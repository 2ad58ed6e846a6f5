package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scenehub/scenehub-backend/internal/conf"
	"github.com/scenehub/scenehub-backend/internal/pkg/logger"
	"github.com/scenehub/scenehub-backend/internal/upload/service"
	"go.uber.org/zap"
)

// Services groups the HTTP services the router mounts.
type Services struct {
	Session     *service.SessionService
	Artifact    *service.ArtifactService
	Lifecycle   *service.LifecycleService
	Maintenance *service.MaintenanceService
}

type HTTPServer struct {
	server *http.Server
	logger *logger.Logger
}

// NewHTTPServer builds the gin router and wires the API routes.
func NewHTTPServer(config *conf.Config, log *logger.Logger, svcs Services) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(log))
	router.Use(CORS(config.Server.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api/v1")
	api.Use(JWTAuth(config.Auth.JWTSecret, config.Auth.JWTIssuer, log))

	uploads := api.Group("/uploads")
	{
		uploads.POST("/sessions", svcs.Session.CreateSession)
		uploads.POST("/sessions/:id/chunks/:index", svcs.Session.MarkChunk)
		uploads.GET("/sessions/:id", svcs.Session.GetStatus)
		uploads.GET("/sessions/:id/progress", svcs.Session.GetProgress)
	}

	artifacts := api.Group("/artifacts")
	{
		artifacts.POST("", svcs.Artifact.Register)
		artifacts.POST("/:id/complete", svcs.Artifact.Complete)
		artifacts.POST("/:id/fail", svcs.Artifact.Fail)
	}

	entities := api.Group("/entities/:kind/:id")
	{
		entities.GET("", svcs.Lifecycle.Get)
		entities.GET("/artifacts", svcs.Artifact.ListByEntity)
		entities.POST("/finalize", svcs.Lifecycle.Finalize)
		entities.POST("/reset", svcs.Lifecycle.Reset)
	}

	maintenance := api.Group("/maintenance")
	{
		maintenance.GET("/orphans", svcs.Maintenance.FindOrphans)
		maintenance.POST("/orphans/cleanup", svcs.Maintenance.CleanupOrphans)
	}

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)

	return &HTTPServer{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: log,
	}
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
