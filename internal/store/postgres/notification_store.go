package postgres

import (
	"context"

	"go.uber.org/zap"

	"researchhub/internal/apperr"
	"researchhub/internal/model"
)

type NotificationStore struct {
	q      querier
	logger *zap.Logger
}

const notificationColumns = `
    id, user_id, type, title, message, task_id, study_id, project_id,
    room_id, is_read, created_at
`

func (s *NotificationStore) Insert(ctx context.Context, n *model.Notification) (int, error) {
	query := `
        INSERT INTO notifications
            (user_id, type, title, message, task_id, study_id, project_id, room_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at
    `
	err := s.q.QueryRow(ctx, query,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		n.TaskID,
		n.StudyID,
		n.ProjectID,
		n.RoomID,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		s.logger.Error("Failed to insert notification",
			zap.Int("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err),
		)
		return 0, apperr.Database("insert notification", err)
	}
	s.logger.Info("Notification inserted",
		zap.Int("notification_id", n.ID),
		zap.Int("user_id", n.UserID),
		zap.String("type", n.Type),
	)
	return n.ID, nil
}

func (s *NotificationStore) GetByID(ctx context.Context, id int) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	var n model.Notification
	err := s.q.QueryRow(ctx, query, id).Scan(
		&n.ID,
		&n.UserID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.TaskID,
		&n.StudyID,
		&n.ProjectID,
		&n.RoomID,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err, "notification")
	}
	return &n, nil
}

func (s *NotificationStore) ListByUser(ctx context.Context, userID int) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.q.Query(ctx, query, userID)
	if err != nil {
		s.logger.Error("Failed to query notifications",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		return nil, apperr.Database("list notifications", err)
	}
	defer rows.Close()

	notifications := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.TaskID,
			&n.StudyID,
			&n.ProjectID,
			&n.RoomID,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			return nil, apperr.Database("scan notification", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database("iterate notifications", err)
	}
	return notifications, nil
}

// MarkAsRead flips the read flag. Scoped by user_id so a recipient can only
// touch their own rows.
func (s *NotificationStore) MarkAsRead(ctx context.Context, id, userID int) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	tag, err := s.q.Exec(ctx, query, id, userID)
	if err != nil {
		s.logger.Error("Failed to mark notification read",
			zap.Int("notification_id", id),
			zap.Error(err),
		)
		return apperr.Database("mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found")
	}
	return nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, userID int) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`
	var count int
	if err := s.q.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, apperr.Database("count unread notifications", err)
	}
	return count, nil
}
