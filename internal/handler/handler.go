// Package handler holds the gin HTTP handlers for the API service. Handlers
// parse and validate input, call into the services and translate errors to
// HTTP statuses; no business rules live here.
package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"researchhub/internal/apperr"
	"researchhub/internal/workflow"
	"researchhub/pkg/rbac"
)

// actorFrom reads the identity the auth middleware stored on the context.
func actorFrom(c *gin.Context) workflow.Actor {
	userID, _ := c.Get("user_id")
	role, _ := c.Get("role")
	id, _ := userID.(int)
	roleStr, _ := role.(string)
	return workflow.Actor{ID: id, Role: rbac.ParseRole(roleStr)}
}

// writeError maps a service error onto the HTTP response, logging server
// faults at error level and client faults at warn.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		logger.Error(op+" failed", zap.Error(err))
	} else {
		logger.Warn(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}
