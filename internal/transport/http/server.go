package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"ragchat/internal/logger"
	"ragchat/internal/session"
	"ragchat/internal/transport/http/handler"
	"ragchat/internal/transport/http/middleware"
)

// Options configure the router.
type Options struct {
	GinMode        string
	MaxUploadBytes int64
	StartedAt      time.Time
	Logger         *slog.Logger
}

func NewRouter(registry *session.Registry, opts Options) *gin.Engine {
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	log := logger.OrDiscard(opts.Logger)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Tracing("ragchatd"), middleware.Logger(log))
	if opts.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = opts.MaxUploadBytes
	}

	healthHandler := handler.NewHealthHandler(registry, opts.StartedAt)
	sessionHandler := handler.NewSessionHandler(registry, opts.MaxUploadBytes, log)

	router.GET("/healthz", healthHandler.Check)

	v1 := router.Group("/api/v1")
	sessions := v1.Group("/sessions")
	sessions.POST("", sessionHandler.Create)
	sessions.GET("/:id", sessionHandler.Get)
	sessions.DELETE("/:id", sessionHandler.Delete)
	sessions.POST("/:id/documents", sessionHandler.Upload)
	sessions.POST("/:id/ask", sessionHandler.Ask)
	sessions.POST("/:id/clear", sessionHandler.Clear)

	return router
}
