package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-subscription-ws/internal/infrastructure/hub"
	"go-subscription-ws/internal/infrastructure/logger"
	"go-subscription-ws/internal/infrastructure/pubsub"
	"go-subscription-ws/internal/interfaces/rest/v1/handler"
	"go-subscription-ws/internal/interfaces/websocket"
	"go-subscription-ws/internal/protocol"
)

func InitRouter(
	hubInstance *hub.Hub,
	subscriptions *protocol.Server,
	broker *pubsub.Broker,
	wsConfig hub.WebSocketConfig,
	log logger.Logger,
) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	// Health check endpoint
	rootGroup.GET("/hub/status", func(c *gin.Context) {
		isRunning := hubInstance.IsRunning()
		log.Debugf(
			"Hub status check - Running: %v, Connections: %d",
			isRunning,
			hubInstance.ConnectionCount(),
		)
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"hub_running": isRunning,
			"connections": hubInstance.ConnectionCount(),
			"topics":      len(broker.Topics()),
		})
	})

	topicHandler := handler.NewTopicHandler(broker, log)
	apiGroup := rootGroup.Group("/api/v1")
	{
		apiGroup.GET("/topics", topicHandler.ListTopics)
		apiGroup.POST("/topics/:topic/events", topicHandler.PublishEvent)
	}

	websocket.InitWebSocketRouter(log, hubInstance, subscriptions, wsConfig, rootGroup)

	return router
}
