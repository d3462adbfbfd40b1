package postgres

import (
	"context"
	"time"

	"go.uber.org/zap"

	"researchhub/internal/apperr"
	"researchhub/internal/model"
)

type TaskStore struct {
	q      querier
	logger *zap.Logger
}

const taskColumns = `
    id, study_id, project_id, task_type, title, status, priority,
    assigned_to_id, created_by_id, completed_at, completed_by_id,
    due_date, created_at, updated_at
`

func scanTask(row interface{ Scan(dest ...any) error }) (*model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID,
		&t.StudyID,
		&t.ProjectID,
		&t.TaskType,
		&t.Title,
		&t.Status,
		&t.Priority,
		&t.AssignedToID,
		&t.CreatedByID,
		&t.CompletedAt,
		&t.CompletedByID,
		&t.DueDate,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TaskStore) GetByID(ctx context.Context, id int) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND deleted_at IS NULL`
	t, err := scanTask(s.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapErr(err, "task")
	}
	return t, nil
}

func (s *TaskStore) GetByIDForUpdate(ctx context.Context, id int) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	t, err := scanTask(s.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapErr(err, "task")
	}
	return t, nil
}

func (s *TaskStore) CountByStudy(ctx context.Context, studyID int) (int, int, error) {
	query := `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status = $2)
        FROM tasks
        WHERE study_id = $1 AND deleted_at IS NULL
    `
	var total, completed int
	err := s.q.QueryRow(ctx, query, studyID, model.TaskStatusCompleted).Scan(&total, &completed)
	if err != nil {
		s.logger.Error("Failed to count study tasks",
			zap.Int("study_id", studyID),
			zap.Error(err),
		)
		return 0, 0, apperr.Database("count study tasks", err)
	}
	return total, completed, nil
}

func (s *TaskStore) MarkCompleted(ctx context.Context, id, completedByID int, at time.Time) error {
	query := `
        UPDATE tasks
        SET status = $2, completed_at = $3, completed_by_id = $4, updated_at = NOW()
        WHERE id = $1
    `
	tag, err := s.q.Exec(ctx, query, id, model.TaskStatusCompleted, at, completedByID)
	if err != nil {
		s.logger.Error("Failed to mark task completed",
			zap.Int("task_id", id),
			zap.Error(err),
		)
		return apperr.Database("mark task completed", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("task not found")
	}
	s.logger.Info("Task marked completed",
		zap.Int("task_id", id),
		zap.Int("completed_by_id", completedByID),
	)
	return nil
}

func (s *TaskStore) UpdateAssignee(ctx context.Context, id, assignedToID int) error {
	query := `
        UPDATE tasks
        SET assigned_to_id = $2, updated_at = NOW()
        WHERE id = $1
    `
	tag, err := s.q.Exec(ctx, query, id, assignedToID)
	if err != nil {
		s.logger.Error("Failed to update task assignee",
			zap.Int("task_id", id),
			zap.Error(err),
		)
		return apperr.Database("update task assignee", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("task not found")
	}
	s.logger.Info("Task reassigned",
		zap.Int("task_id", id),
		zap.Int("assigned_to_id", assignedToID),
	)
	return nil
}
