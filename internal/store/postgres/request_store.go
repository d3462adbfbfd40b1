package postgres

import (
	"context"
	"time"

	"go.uber.org/zap"

	"researchhub/internal/apperr"
	"researchhub/internal/model"
)

type RequestStore struct {
	q      querier
	logger *zap.Logger
}

const requestColumns = `
    id, task_id, requested_by_id, kind, requested_assigned_to_id,
    status, notes, reviewed_by_id, reviewed_at, reviewer_notes, created_at
`

func scanRequest(row interface{ Scan(dest ...any) error }) (*model.TaskRequest, error) {
	var r model.TaskRequest
	err := row.Scan(
		&r.ID,
		&r.TaskID,
		&r.RequestedByID,
		&r.Kind,
		&r.RequestedAssignedToID,
		&r.Status,
		&r.Notes,
		&r.ReviewedByID,
		&r.ReviewedAt,
		&r.ReviewerNotes,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RequestStore) Insert(ctx context.Context, r *model.TaskRequest) (int, error) {
	query := `
        INSERT INTO task_requests
            (task_id, requested_by_id, kind, requested_assigned_to_id, status, notes)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `
	err := s.q.QueryRow(ctx, query,
		r.TaskID,
		r.RequestedByID,
		r.Kind,
		r.RequestedAssignedToID,
		r.Status,
		r.Notes,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		s.logger.Error("Failed to insert task request",
			zap.Int("task_id", r.TaskID),
			zap.String("kind", r.Kind),
			zap.Error(err),
		)
		return 0, apperr.Database("insert task request", err)
	}
	s.logger.Info("Task request inserted",
		zap.Int("request_id", r.ID),
		zap.Int("task_id", r.TaskID),
		zap.String("kind", r.Kind),
	)
	return r.ID, nil
}

func (s *RequestStore) GetByID(ctx context.Context, id int) (*model.TaskRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM task_requests WHERE id = $1`
	r, err := scanRequest(s.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapErr(err, "task request")
	}
	return r, nil
}

func (s *RequestStore) GetByIDForUpdate(ctx context.Context, id int) (*model.TaskRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM task_requests WHERE id = $1 FOR UPDATE`
	r, err := scanRequest(s.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapErr(err, "task request")
	}
	return r, nil
}

func (s *RequestStore) MarkReviewed(ctx context.Context, id int, status string, reviewedByID int, at time.Time, reviewerNotes string) error {
	// Guarded on pending so a lost race can never overwrite a terminal row.
	query := `
        UPDATE task_requests
        SET status = $2, reviewed_by_id = $3, reviewed_at = $4, reviewer_notes = $5
        WHERE id = $1 AND status = $6
    `
	tag, err := s.q.Exec(ctx, query, id, status, reviewedByID, at, reviewerNotes, model.RequestStatusPending)
	if err != nil {
		s.logger.Error("Failed to mark request reviewed",
			zap.Int("request_id", id),
			zap.String("status", status),
			zap.Error(err),
		)
		return apperr.Database("mark request reviewed", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("request is not pending")
	}
	s.logger.Info("Task request reviewed",
		zap.Int("request_id", id),
		zap.String("status", status),
		zap.Int("reviewed_by_id", reviewedByID),
	)
	return nil
}

func (s *RequestStore) List(ctx context.Context) ([]model.TaskRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM task_requests ORDER BY created_at DESC`
	return s.listQuery(ctx, query)
}

func (s *RequestStore) ListByRequester(ctx context.Context, userID int) ([]model.TaskRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM task_requests WHERE requested_by_id = $1 ORDER BY created_at DESC`
	return s.listQuery(ctx, query, userID)
}

func (s *RequestStore) ListByTask(ctx context.Context, taskID int) ([]model.TaskRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM task_requests WHERE task_id = $1 ORDER BY created_at`
	return s.listQuery(ctx, query, taskID)
}

func (s *RequestStore) listQuery(ctx context.Context, query string, args ...any) ([]model.TaskRequest, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		s.logger.Error("Failed to query task requests", zap.Error(err))
		return nil, apperr.Database("list task requests", err)
	}
	defer rows.Close()

	requests := []model.TaskRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, apperr.Database("scan task request", err)
		}
		requests = append(requests, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database("iterate task requests", err)
	}
	return requests, nil
}
