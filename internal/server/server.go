package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/tracker"
)

type Server struct {
	router  *gin.Engine
	tracker *tracker.Service
}

// NewServer creates a new server instance
func NewServer(svc *tracker.Service) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	server := &Server{
		router:  router,
		tracker: svc,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.healthCheck)

		api.GET("/orders", s.listOrders)
		api.GET("/orders/deadlines", s.listDeadlines)
		api.POST("/orders", s.upsertOrder)
		api.GET("/orders/:key", s.getOrder)
		api.PATCH("/orders/:key/status", s.updateStatus)
		api.PUT("/orders/:key/deadline", s.setDeadline)
		api.DELETE("/orders/:key/evidence", s.invalidateEvidence)
		api.POST("/orders/:key/enrich", s.enrichOrder)
		api.POST("/orders/:key/merge", s.mergeOrders)

		api.GET("/rules", s.listRules)
		api.PUT("/rules/:domain", s.setRule)
		api.DELETE("/rules/:domain", s.deleteRule)

		api.POST("/scans", s.startScan)
	}
}

// healthCheck endpoint for monitoring
func (s *Server) healthCheck(c *gin.Context) {
	// a rule listing is the cheapest store round trip
	if _, err := s.tracker.ListMerchantRules(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"error":  "store unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "shopq",
		"version": "0.1.0",
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("server: shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("server: request")
	}
}
