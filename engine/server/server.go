package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docbed/docbed/pkg/logger"
)

// Server exposes the pipeline and search over HTTP.
type Server struct {
	config *Config
	router *gin.Engine
}

func NewServer(config *Config, jobs Jobs, docs Docs) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Server{config: config}
	s.router = buildRouter(context.Background(), config, jobs, docs)
	return s
}

func buildRouter(ctx context.Context, config *Config, jobs Jobs, docs Docs) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(ctx))
	if config.CORSEnabled {
		router.Use(corsMiddleware())
	}
	registerRoutes(router, &handlers{
		jobs:       jobs,
		docs:       docs,
		signingKey: []byte(config.SigningKey),
	})
	return router
}

// Handler returns the routed engine, mountable under httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "address", fmt.Sprintf("http://%s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	log.Debug("shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("server shutdown completed")
	return <-errCh
}
