package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"easymanager/internal/realtime"
)

const heartbeatInterval = 25 * time.Second

type EventSource interface {
	Subscribe() (string, <-chan realtime.Event)
	Unsubscribe(id string)
}

// StreamEvents pushes realtime events to the client as server-sent events
// until it disconnects.
func StreamEvents(hub EventSource, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, events := hub.Subscribe()
		defer hub.Unsubscribe(id)

		logger.Info("event stream opened", zap.String("subscriber", id))
		defer logger.Info("event stream closed", zap.String("subscriber", id))

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case e, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent(e.Name, e.Payload)
				return true
			case <-heartbeat.C:
				c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
				return true
			}
		})
	}
}

// RelayBillEvent rebroadcasts a billUpdated payload sent by a client.
func RelayBillEvent(publisher realtime.Publisher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/events/bill"
		defer handlePanic(c, logger, route)

		var payload json.RawMessage
		if err := c.ShouldBindJSON(&payload); err != nil || len(payload) == 0 {
			respondWithError(c, logger, http.StatusBadRequest, route, "invalid body")
			return
		}

		publisher.Publish(c.Request.Context(), realtime.BillRelayed(payload))
		c.JSON(http.StatusAccepted, gin.H{"message": "Event accepted"})
	}
}
