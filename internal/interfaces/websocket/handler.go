package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-subscription-ws/internal/infrastructure/hub"
	"go-subscription-ws/internal/infrastructure/logger"
	"go-subscription-ws/internal/protocol"
)

// WebSocketHandler accepts subscription connections and hands each one to
// the protocol server.
type WebSocketHandler struct {
	hub      *hub.Hub
	server   *protocol.Server
	logger   logger.Logger
	upgrader websocket.Upgrader
	wsConfig hub.WebSocketConfig
}

// NewWebSocketHandler creates a new WebSocket handler instance
func NewWebSocketHandler(
	hubInstance *hub.Hub,
	server *protocol.Server,
	wsConfig hub.WebSocketConfig,
	logger logger.Logger,
) *WebSocketHandler {
	wsConfig.Binary = server.Codec().Binary()

	return &WebSocketHandler{
		hub:      hubInstance,
		server:   server,
		logger:   logger.WithField("handler", "websocket"),
		wsConfig: wsConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{protocol.Subprotocol},
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from any origin for development
				// In production, you should implement proper origin checking
				return true
			},
		},
	}
}

// Connect upgrades the request and runs the protocol until the connection ends.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	wsConn := hub.NewWebSocketConnection("ws-"+uuid.NewString(), conn, h.wsConfig, h.logger)

	if wsConn.Subprotocol() != protocol.Subprotocol {
		h.logger.Warnf("Rejecting connection %s: unsupported sub-protocol %q", wsConn.ID(), wsConn.Subprotocol())
		wsConn.Close(protocol.CloseProtocolError, "unsupported sub-protocol")
		return
	}

	session := h.server.Accept(wsConn)
	wsConn.Start(session)

	if err := h.hub.RegisterConnection(wsConn); err != nil {
		h.logger.Errorf("Failed to register WebSocket connection: %v", err)
		wsConn.Close(protocol.CloseGoingAway, "server unavailable")
	}

	h.logger.Infof("WebSocket connection %s accepted", wsConn.ID())

	<-session.Done()
	h.logger.Infof("WebSocket connection %s disconnected", wsConn.ID())
}

// GetConnections returns information about WebSocket connections
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnectionsByType("websocket")
	connectionInfo := make([]gin.H, 0, len(connections))

	for _, conn := range connections {
		connectionInfo = append(connectionInfo, describeConnection(conn))
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connectionInfo,
		"hub_running":       h.hub.IsRunning(),
	})
}

// GetConnection returns one tracked connection by id.
func (h *WebSocketHandler) GetConnection(c *gin.Context) {
	conn, ok := h.hub.GetConnection(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Connection not found",
		})
		return
	}

	c.JSON(http.StatusOK, describeConnection(conn))
}

func describeConnection(conn hub.Connection) gin.H {
	info := gin.H{
		"id":     conn.ID(),
		"type":   conn.Type(),
		"closed": conn.IsClosed(),
	}
	if ws, ok := conn.(*hub.WebSocketConnection); ok {
		info["last_activity"] = ws.LastActivity()
	}
	return info
}
