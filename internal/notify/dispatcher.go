// Package notify persists notification rows and hands them to the realtime
// bus. Persistence is synchronous and ordered strictly before dispatch, so a
// client that misses the realtime event can always catch up by re-fetching
// its notifications.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"researchhub/internal/model"
	"researchhub/internal/realtime"
	"researchhub/internal/store"
	"researchhub/pkg/metrics"
)

// unreadCountTTL bounds staleness of the cached unread counter when
// invalidation is missed.
const unreadCountTTL = time.Hour

type Dispatcher struct {
	notifications store.NotificationStore
	bus           realtime.Emitter
	rdb           *redis.Client
	logger        *zap.Logger
}

func NewDispatcher(notifications store.NotificationStore, bus realtime.Emitter, rdb *redis.Client, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		bus:           bus,
		rdb:           rdb,
		logger:        logger,
	}
}

// CreateAndDispatch persists the notification, then emits the given realtime
// event to its recipient. The caller awaits only the persistence step: the
// emission is fire-and-forget and its outcome never surfaces to the end
// user.
func (d *Dispatcher) CreateAndDispatch(ctx context.Context, n *model.Notification, event string, payload any) (*model.Notification, error) {
	if _, err := d.notifications.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	metrics.IncrementNotificationCreated(n.Type)
	d.bumpUnreadCache(ctx, n.UserID)

	d.bus.Emit(ctx, event, payload, n.UserID)
	return n, nil
}

// ListByUser returns the recipient's notifications, newest first.
func (d *Dispatcher) ListByUser(ctx context.Context, userID int) ([]model.Notification, error) {
	return d.notifications.ListByUser(ctx, userID)
}

// MarkAsRead flips a notification's read flag for its recipient.
func (d *Dispatcher) MarkAsRead(ctx context.Context, id, userID int) error {
	if err := d.notifications.MarkAsRead(ctx, id, userID); err != nil {
		return err
	}
	d.invalidateUnreadCache(context.WithoutCancel(ctx), userID)
	return nil
}

// CountUnread returns the unread count, served from the redis cache when
// warm and recomputed from the store otherwise.
func (d *Dispatcher) CountUnread(ctx context.Context, userID int) (int, error) {
	if d.rdb != nil {
		if count, err := d.rdb.Get(ctx, unreadKey(userID)).Int(); err == nil {
			return count, nil
		}
	}

	count, err := d.notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if d.rdb != nil {
		if err := d.rdb.Set(ctx, unreadKey(userID), count, unreadCountTTL).Err(); err != nil {
			d.logger.Warn("Failed to warm unread-count cache",
				zap.Int("user_id", userID),
				zap.Error(err),
			)
		}
	}
	return count, nil
}

func unreadKey(userID int) string {
	return fmt.Sprintf("notify:unread:%d", userID)
}

func (d *Dispatcher) bumpUnreadCache(ctx context.Context, userID int) {
	if d.rdb == nil {
		return
	}
	// Only bump a warm counter; a cold cache repopulates from the store.
	if exists, err := d.rdb.Exists(ctx, unreadKey(userID)).Result(); err != nil || exists == 0 {
		return
	}
	if err := d.rdb.Incr(ctx, unreadKey(userID)).Err(); err != nil {
		d.logger.Warn("Failed to bump unread-count cache",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) invalidateUnreadCache(ctx context.Context, userID int) {
	if d.rdb == nil {
		return
	}
	if err := d.rdb.Del(ctx, unreadKey(userID)).Err(); err != nil {
		d.logger.Warn("Failed to invalidate unread-count cache",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
	}
}
