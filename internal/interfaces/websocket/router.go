package websocket

import (
	"github.com/gin-gonic/gin"

	"go-subscription-ws/internal/infrastructure/hub"
	"go-subscription-ws/internal/infrastructure/logger"
	"go-subscription-ws/internal/protocol"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	server *protocol.Server,
	wsConfig hub.WebSocketConfig,
	rg *gin.RouterGroup,
) {
	wsHandler := NewWebSocketHandler(hubInstance, server, wsConfig, logger)

	// Subscription endpoint
	rg.GET("/subscriptions", wsHandler.Connect)

	apiGroup := rg.Group("/api/v1/ws")
	apiGroup.GET("/connections", wsHandler.GetConnections)
	apiGroup.GET("/connections/:id", wsHandler.GetConnection)
}
