package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"snaplive/internal/domain"
	"snaplive/internal/middleware"
	"snaplive/internal/service"
)

// EventManager is implemented by *service.EventService.
type EventManager interface {
	Create(ctx context.Context, ownerID uint, in service.CreateEventInput) (*domain.Event, error)
	GetPublic(ctx context.Context, slug string) (*domain.Event, error)
	ListMine(ctx context.Context, ownerID uint) ([]domain.Event, error)
	Update(ctx context.Context, ownerID uint, id string, patch service.UpdateEventInput) (*domain.Event, error)
	Delete(ctx context.Context, ownerID uint, id string) error
	QRCodeDataURL(ctx context.Context, slug string) (string, error)
}

// EventHandler serves the organizer event routes and the public event page.
type EventHandler struct {
	events EventManager
}

func NewEventHandler(events EventManager) *EventHandler {
	if events == nil {
		panic("EventManager cannot be nil for EventHandler")
	}
	return &EventHandler{events: events}
}

// PublicEvent is what guests see of an event.
type PublicEvent struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Type      domain.EventType `json:"type"`
	Slug      string           `json:"slug"`
	EventDate string           `json:"eventDate"`
}

func toPublicEvent(e *domain.Event) PublicEvent {
	return PublicEvent{ID: e.ID, Name: e.Name, Type: e.Type, Slug: e.Slug, EventDate: e.EventDate.Format(domain.DateLayout)}
}

// CreateEventRequest is the body of POST /api/events.
type CreateEventRequest struct {
	Name      string `json:"name" binding:"required"`
	Type      string `json:"type" binding:"required"`
	EventDate string `json:"eventDate" binding:"required"`
}

// Create handles POST /api/events.
func (h *EventHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Handler.CreateEvent: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "name, type and eventDate are required")
		return
	}

	event, err := h.events.Create(c.Request.Context(), userID, service.CreateEventInput(req))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, gin.H{"message": "Event created", "event": event})
}

// ListMine handles GET /api/events/my-events.
func (h *EventHandler) ListMine(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	events, err := h.events.ListMine(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"events": events})
}

// GetPublic handles GET /api/events/:slug.
func (h *EventHandler) GetPublic(c *gin.Context) {
	event, err := h.events.GetPublic(c.Request.Context(), c.Param("slug"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"event": toPublicEvent(event)})
}

// QRCode handles GET /api/events/:slug/qr. With ?format=base64 the code is
// rendered on the fly and returned as a data URL.
func (h *EventHandler) QRCode(c *gin.Context) {
	if c.Query("format") == "base64" {
		dataURL, err := h.events.QRCodeDataURL(c.Request.Context(), c.Param("slug"))
		if err != nil {
			HandleServiceError(c, err)
			return
		}
		SuccessResponse(c, http.StatusOK, gin.H{"qr": dataURL})
		return
	}
	event, err := h.events.GetPublic(c.Request.Context(), c.Param("slug"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"qrCodeUrl": event.QRCodeURL})
}

// Update handles PUT /api/events/:id.
func (h *EventHandler) Update(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	var patch service.UpdateEventInput
	if err := c.ShouldBindJSON(&patch); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	event, err := h.events.Update(c.Request.Context(), userID, c.Param("id"), patch)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Event updated", "event": event})
}

// Delete handles DELETE /api/events/:id.
func (h *EventHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	if err := h.events.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Event deleted"})
}
