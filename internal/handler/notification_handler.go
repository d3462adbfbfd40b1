package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"researchhub/internal/notify"
)

type NotificationHandler struct {
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
}

func NewNotificationHandler(dispatcher *notify.Dispatcher, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher, logger: logger}
}

func (h *NotificationHandler) List(c *gin.Context) {
	actor := actorFrom(c)
	notifications, err := h.dispatcher.ListByUser(c.Request.Context(), actor.ID)
	if err != nil {
		writeError(c, h.logger, "ListNotifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": notifications})
}

// MarkRead flips one of the caller's own notifications; a foreign id reads
// as not found.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		h.logger.Warn("MarkRead: invalid notification id", zap.String("id", c.Param("id")))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	actor := actorFrom(c)

	if err := h.dispatcher.MarkAsRead(c.Request.Context(), id, actor.ID); err != nil {
		writeError(c, h.logger, "MarkRead", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	actor := actorFrom(c)
	count, err := h.dispatcher.CountUnread(c.Request.Context(), actor.ID)
	if err != nil {
		writeError(c, h.logger, "UnreadCount", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"unread": count}})
}
