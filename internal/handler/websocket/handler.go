package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"snaplive/internal/hub"
)

// OriginChecker decides which browser origins may open a socket.
// *middleware.OriginPolicy implements it.
type OriginChecker interface {
	Allowed(origin string) bool
}

// WebSocketHandler upgrades /ws requests and hands the connection to the hub.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler creates a WebSocketHandler. Origins rejected by
// origins get a 403 from the upgrader.
func NewWebSocketHandler(h *hub.Hub, origins OriginChecker) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if origins == nil {
		panic("OriginChecker cannot be nil for WebSocketHandler")
	}
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return origins.Allowed(r.Header.Get("Origin"))
			},
		},
		hub: h,
	}
}

// HandleConnection serves GET /ws. Guests are anonymous; an optional
// ?eventSlug= query joins that room right away.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	logCtx := logrus.WithFields(logrus.Fields{"client_ip": c.ClientIP(), "origin": c.GetHeader("Origin")})

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logCtx.WithError(err).Warn("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn)
	logCtx = logCtx.WithField("subscriber_id", client.ID())
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	if slug := c.Query("eventSlug"); slug != "" {
		client.Join(slug)
	}
	client.Run()
}
