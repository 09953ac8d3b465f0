package handler

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kiosk/backend/internal/infrastructure/notification"
	"github.com/kiosk/backend/internal/interfaces/http/middleware"
)

// EventStreamHandler serves the real-time notification stream over SSE.
// Terminals and staff consoles hold one connection each and receive the
// same ordered feed the other transports carry.
type EventStreamHandler struct {
	BaseHandler
	hub *notification.Hub
}

// NewEventStreamHandler creates a new EventStreamHandler
func NewEventStreamHandler(hub *notification.Hub) *EventStreamHandler {
	return &EventStreamHandler{hub: hub}
}

// RegisterRoutes registers the stream route
func (h *EventStreamHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events/stream", h.Stream)
}

// Stream attaches the caller to the hub until it disconnects
func (h *EventStreamHandler) Stream(c *gin.Context) {
	client, err := h.hub.Register(middleware.GetJWTRole(c))
	if err != nil {
		h.Error(c, http.StatusServiceUnavailable, "MAX_CONNECTIONS_REACHED", err.Error())
		return
	}
	defer h.hub.Unregister(client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	sendEvent(c.Writer, "connected",
		fmt.Sprintf(`{"client_id":"%s","timestamp":%d}`, client.ID, time.Now().Unix()), "")
	c.Writer.Flush()

	reqCtx := c.Request.Context()
	hubCtx := h.hub.Context()

	for {
		select {
		case <-reqCtx.Done():
			return
		case <-client.Done:
			return
		case <-hubCtx.Done():
			return
		case n, ok := <-client.Chan:
			if !ok {
				return
			}
			id := ""
			if n.Sequence > 0 {
				id = fmt.Sprintf("%d", n.Sequence)
			}
			sendEvent(c.Writer, n.Event, n.Data, id)
			c.Writer.Flush()
		}
	}
}

func sendEvent(w io.Writer, event, data, id string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
