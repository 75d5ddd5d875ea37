// Package httpapi exposes the Executor's upward interface (spec §6) as
// a gin HTTP server: streaming chat over SSE, non-streaming
// completion, and a provider status/history surface for operators.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GhostKellz/zeke-sub004/internal/engine"
)

// Config controls the server's listen address and gin mode.
type Config struct {
	Host string
	Port int
	Mode string // debug, release
}

// Server wraps gin's router in an *http.Server so the caller controls
// its lifecycle alongside the rest of the daemon.
type Server struct {
	http   *http.Server
	logger *zap.Logger
}

// New builds a Server routing onto the given Executor.
func New(cfg Config, exec *engine.Executor, logger *zap.Logger) *Server {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	h := &handler{exec: exec, logger: logger}
	router.GET("/health", h.health)

	v1 := router.Group("/v1")
	{
		v1.POST("/chat", h.chat)
		v1.GET("/chat/ws", h.chatWS)
		v1.POST("/complete", h.complete)
		v1.GET("/status", h.status)
		v1.GET("/history", h.history)
	}

	return &Server{
		http: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler: router,
		},
		logger: logger,
	}
}

// Start begins serving in the background. It returns immediately;
// bind errors are logged, not returned, matching the gateway's
// established start/stop lifecycle shape.
func (s *Server) Start() {
	s.logger.Info("starting http server", zap.String("address", s.http.Addr))
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.http.Shutdown(ctx)
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
