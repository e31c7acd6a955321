package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// EventsHandler serves the push notification stream.
type EventsHandler struct {
	stream http.Handler
}

// NewEventsHandler creates a new EventsHandler around the WebSocket handler.
func NewEventsHandler(stream http.Handler) *EventsHandler {
	return &EventsHandler{stream: stream}
}

// Events handles GET /api/events - upgrades to the WebSocket event stream.
// A new connection replaces the previous subscriber.
func (h *EventsHandler) Events(c *gin.Context) {
	h.stream.ServeHTTP(c.Writer, c.Request)
}

// RegisterRoutes registers the events route on a Gin router group.
func (h *EventsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events", h.Events)
}
