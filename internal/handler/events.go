package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chungtau/mti-gateway/internal/middleware"
	"github.com/chungtau/mti-gateway/internal/notify"
)

const (
	notificationEvent = "mti_notification"
	heartbeatInterval = 15 * time.Second
)

// Subscriber is implemented by *notify.Hub
type Subscriber interface {
	Subscribe(merchantID string, l notify.Listener)
	Unsubscribe(l notify.Listener)
}

// EventsHandler streams merchant notifications as Server-Sent Events
type EventsHandler struct {
	hub    Subscriber
	buffer int
}

func NewEventsHandler(hub Subscriber, buffer int) *EventsHandler {
	return &EventsHandler{hub: hub, buffer: buffer}
}

// Stream handles GET /v1/events. The connection is subscribed for the
// authenticated merchant until the client goes away or falls too far behind.
func (h *EventsHandler) Stream(c *gin.Context) {
	merchantID := middleware.GetMerchantID(c)
	logger := zerolog.Ctx(c.Request.Context())

	q := notify.NewQueue(h.buffer)
	h.hub.Subscribe(merchantID, q)
	logger.Info().Str("merchant_id", merchantID).Msg("subscriber connected")
	defer func() {
		h.hub.Unsubscribe(q)
		q.Close()
		logger.Info().Str("merchant_id", merchantID).Msg("subscriber disconnected")
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("connected", gin.H{"merchantId": merchantID})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	done := c.Request.Context().Done()
	c.Stream(func(io.Writer) bool {
		select {
		case <-done:
			return false
		case ev, ok := <-q.Events():
			if !ok {
				return false
			}
			c.SSEvent(notificationEvent, ev)
			return true
		case t := <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": t.UTC()})
			return true
		}
	})
}
