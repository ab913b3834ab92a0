package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminNotifier interface {
	NotifyAdmin(ctx context.Context, subject, message string) error
}

type adminNotifyRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message" binding:"required"`
}

// NotifyAdmin mails the admin right away and reports delivery failures to
// the caller.
func NotifyAdmin(notifier AdminNotifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/notify/admin"
		defer handlePanic(c, logger, route)

		var req adminNotifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		if err := notifier.NotifyAdmin(c.Request.Context(), req.Subject, req.Message); err != nil {
			logger.Error("admin notification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"message": "Failed to send notification",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Notification sent to admin"})
	}
}
