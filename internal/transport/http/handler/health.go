package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ragchat/internal/session"
)

type HealthHandler struct {
	registry  *session.Registry
	startedAt time.Time
}

func NewHealthHandler(registry *session.Registry, startedAt time.Time) *HealthHandler {
	return &HealthHandler{registry: registry, startedAt: startedAt}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"sessions":   h.registry.Len(),
		"uptime_sec": int(time.Since(h.startedAt).Seconds()),
	})
}
