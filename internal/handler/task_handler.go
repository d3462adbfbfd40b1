package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"researchhub/internal/workflow"
)

type TaskHandler struct {
	svc    *workflow.Service
	logger *zap.Logger
}

func NewTaskHandler(svc *workflow.Service, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{svc: svc, logger: logger}
}

// CompleteTask is the direct manager path, skipping the request workflow.
func (h *TaskHandler) CompleteTask(c *gin.Context) {
	taskID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		h.logger.Warn("CompleteTask: invalid task id", zap.String("id", c.Param("id")))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	actor := actorFrom(c)
	h.logger.Info("CompleteTask request received",
		zap.Int("task_id", taskID),
		zap.Int("user_id", actor.ID),
		zap.String("client_ip", c.ClientIP()),
	)

	task, err := h.svc.Complete(c.Request.Context(), taskID, actor)
	if err != nil {
		writeError(c, h.logger, "CompleteTask", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": task})
}
