package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"researchhub/internal/workflow"
)

type RequestHandler struct {
	svc    *workflow.Service
	logger *zap.Logger
}

func NewRequestHandler(svc *workflow.Service, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{svc: svc, logger: logger}
}

type createCompletionRequest struct {
	TaskID int    `json:"taskId" binding:"required"`
	Notes  string `json:"notes"`
}

func (h *RequestHandler) CreateCompletion(c *gin.Context) {
	var body createCompletionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.Warn("CreateCompletion: invalid body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "taskId required"})
		return
	}
	actor := actorFrom(c)
	h.logger.Info("CreateCompletion request received",
		zap.Int("task_id", body.TaskID),
		zap.Int("user_id", actor.ID),
		zap.String("client_ip", c.ClientIP()),
	)

	req, err := h.svc.RequestCompletion(c.Request.Context(), body.TaskID, actor, body.Notes)
	if err != nil {
		writeError(c, h.logger, "CreateCompletion", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": req})
}

type createReassignmentRequest struct {
	TaskID                int    `json:"taskId" binding:"required"`
	RequestedAssignedToID int    `json:"requestedAssignedToId" binding:"required"`
	Notes                 string `json:"notes"`
}

func (h *RequestHandler) CreateReassignment(c *gin.Context) {
	var body createReassignmentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.Warn("CreateReassignment: invalid body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "taskId and requestedAssignedToId required"})
		return
	}
	actor := actorFrom(c)
	h.logger.Info("CreateReassignment request received",
		zap.Int("task_id", body.TaskID),
		zap.Int("requested_assigned_to_id", body.RequestedAssignedToID),
		zap.Int("user_id", actor.ID),
		zap.String("client_ip", c.ClientIP()),
	)

	req, err := h.svc.RequestReassignment(c.Request.Context(), body.TaskID, actor, body.RequestedAssignedToID, body.Notes)
	if err != nil {
		writeError(c, h.logger, "CreateReassignment", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": req})
}

func (h *RequestHandler) Approve(c *gin.Context) {
	requestID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		h.logger.Warn("Approve: invalid request id", zap.String("id", c.Param("id")))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	actor := actorFrom(c)
	h.logger.Info("Approve request received",
		zap.Int("request_id", requestID),
		zap.Int("user_id", actor.ID),
		zap.String("client_ip", c.ClientIP()),
	)

	task, req, err := h.svc.Approve(c.Request.Context(), requestID, actor)
	if err != nil {
		writeError(c, h.logger, "Approve", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"request": req, "task": task}})
}

type rejectRequest struct {
	Notes string `json:"notes"`
}

func (h *RequestHandler) Reject(c *gin.Context) {
	requestID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		h.logger.Warn("Reject: invalid request id", zap.String("id", c.Param("id")))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	// Body is optional; reviewer notes may be omitted.
	var body rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.logger.Warn("Reject: invalid body", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	actor := actorFrom(c)
	h.logger.Info("Reject request received",
		zap.Int("request_id", requestID),
		zap.Int("user_id", actor.ID),
		zap.String("client_ip", c.ClientIP()),
	)

	req, err := h.svc.Reject(c.Request.Context(), requestID, actor, body.Notes)
	if err != nil {
		writeError(c, h.logger, "Reject", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (h *RequestHandler) List(c *gin.Context) {
	actor := actorFrom(c)

	if raw := c.Query("taskId"); raw != "" {
		taskID, err := strconv.Atoi(raw)
		if err != nil {
			h.logger.Warn("ListRequests: invalid taskId", zap.String("taskId", raw))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid taskId"})
			return
		}
		requests, err := h.svc.ListByTask(c.Request.Context(), actor, taskID)
		if err != nil {
			writeError(c, h.logger, "ListRequests", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": requests})
		return
	}

	requests, err := h.svc.List(c.Request.Context(), actor)
	if err != nil {
		writeError(c, h.logger, "ListRequests", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": requests})
}
