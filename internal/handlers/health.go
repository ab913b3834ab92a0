package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"easymanager/internal/store"
)

func Health(pinger store.Pinger, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		db := "connected"
		if err := ensureStore(c.Request.Context(), pinger); err != nil {
			logger.Warn("health check: store unreachable", zap.Error(err))
			status = http.StatusServiceUnavailable
			db = "disconnected"
		}

		c.JSON(status, gin.H{
			"status":   http.StatusText(status),
			"database": db,
			"time":     time.Now().UTC(),
		})
	}
}
