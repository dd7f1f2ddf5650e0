package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"snaplive/internal/hub"
)

// RoomInspector is implemented by *hub.Hub.
type RoomInspector interface {
	RoomSize(slug string) int
	ActiveRooms() []string
}

// RoomHandler exposes live room diagnostics.
type RoomHandler struct {
	rooms RoomInspector
}

func NewRoomHandler(rooms RoomInspector) *RoomHandler {
	if rooms == nil {
		panic("RoomInspector cannot be nil for RoomHandler")
	}
	return &RoomHandler{rooms: rooms}
}

// Viewers handles GET /api/rooms/:slug.
func (h *RoomHandler) Viewers(c *gin.Context) {
	slug := c.Param("slug")
	if !hub.ValidSlug(slug) {
		ErrorResponse(c, http.StatusBadRequest, hub.ErrInvalidSlug.Error())
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"slug":    slug,
		"room":    hub.RoomName(slug),
		"viewers": h.rooms.RoomSize(slug),
	})
}

// Health handles GET /health.
func Health(rooms RoomInspector) gin.HandlerFunc {
	return func(c *gin.Context) {
		SuccessResponse(c, http.StatusOK, gin.H{
			"status":      "ok",
			"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
			"activeRooms": len(rooms.ActiveRooms()),
		})
	}
}
