package handler

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"go-subscription-ws/internal/infrastructure/logger"
	"go-subscription-ws/internal/infrastructure/pubsub"
	"go-subscription-ws/internal/protocol"
)

// TopicHandler publishes events to subscription topics.
type TopicHandler struct {
	broker *pubsub.Broker
	logger logger.Logger
}

// PublishEventRequest is the body of a publish call. A non-empty Errors list
// is delivered to subscribers as an execution error instead of Data.
type PublishEventRequest struct {
	Data   any                       `json:"data"`
	Errors []protocol.FormattedError `json:"errors"`
}

type TopicInfo struct {
	Topic       string `json:"topic"`
	Subscribers int    `json:"subscribers"`
}

func NewTopicHandler(broker *pubsub.Broker, logger logger.Logger) *TopicHandler {
	return &TopicHandler{
		broker: broker,
		logger: logger.WithField("handler", "topic"),
	}
}

func (h *TopicHandler) PublishEvent(c *gin.Context) {
	topic := c.Param("topic")

	var req PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid event format",
		})
		return
	}

	event := protocol.Event{Data: gin.H{"data": req.Data}}
	if len(req.Errors) > 0 {
		event = protocol.Event{Err: &protocol.ExecutionError{Errors: req.Errors}}
	}

	delivered, err := h.broker.Publish(c.Request.Context(), topic, event)
	if err != nil {
		h.logger.Errorf("Failed to publish event to %s: %v", topic, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to publish event",
		})
		return
	}

	h.logger.Infof("Event published to topic %s, delivered to %d subscribers", topic, delivered)

	c.JSON(http.StatusOK, gin.H{
		"status":    "published",
		"topic":     topic,
		"delivered": delivered,
	})
}

func (h *TopicHandler) ListTopics(c *gin.Context) {
	topics := h.broker.Topics()
	sort.Strings(topics)

	infos := make([]TopicInfo, 0, len(topics))
	for _, t := range topics {
		infos = append(infos, TopicInfo{Topic: t, Subscribers: h.broker.SubscriberCount(t)})
	}

	c.JSON(http.StatusOK, gin.H{
		"topics": infos,
	})
}
