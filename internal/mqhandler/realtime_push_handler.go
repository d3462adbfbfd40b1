// Package mqhandler holds the realtime service's MQ consumer handlers.
package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"researchhub/contracts/events"
	"researchhub/internal/realtime"
	"researchhub/pkg/util"
)

// RealtimePushHandler consumes realtime.push envelopes published by the API
// service and fans them out to local subscribers. Redelivered envelopes are
// skipped via the deduper so a client never sees the same event twice.
type RealtimePushHandler struct {
	hub     *realtime.Hub
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewRealtimePushHandler(hub *realtime.Hub, deduper *util.Deduper, logger *zap.Logger) *RealtimePushHandler {
	return &RealtimePushHandler{
		hub:     hub,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *RealtimePushHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var env events.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.logger.Error("Failed to unmarshal realtime envelope", zap.Error(err))
		return nil
	}
	if env.Event == "" {
		h.logger.Warn("Realtime envelope without event name skipped")
		return nil
	}

	if !h.deduper.AcquireOnce(ctx, "realtime-push", env.ID) {
		h.logger.Info("Duplicate realtime envelope skipped",
			zap.String("envelope_id", env.ID),
			zap.String("event", env.Event),
		)
		return nil
	}

	h.logger.Debug("Fanning out realtime event",
		zap.String("envelope_id", env.ID),
		zap.String("event", env.Event),
		zap.Int("target_count", len(env.TargetUserIDs)),
	)
	h.hub.Broadcast(env)
	return nil
}
