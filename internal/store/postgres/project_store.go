package postgres

import (
	"context"

	"go.uber.org/zap"

	"researchhub/internal/apperr"
	"researchhub/internal/model"
)

type StudyStore struct {
	q      querier
	logger *zap.Logger
}

func scanStudy(row interface{ Scan(dest ...any) error }) (*model.Study, error) {
	var st model.Study
	err := row.Scan(
		&st.ID,
		&st.ProjectID,
		&st.Title,
		&st.Progress,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *StudyStore) GetByID(ctx context.Context, id int) (*model.Study, error) {
	query := `
        SELECT id, project_id, title, progress, created_at, updated_at
        FROM studies WHERE id = $1
    `
	st, err := scanStudy(s.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapErr(err, "study")
	}
	return st, nil
}

func (s *StudyStore) GetByIDForUpdate(ctx context.Context, id int) (*model.Study, error) {
	query := `
        SELECT id, project_id, title, progress, created_at, updated_at
        FROM studies WHERE id = $1 FOR UPDATE
    `
	st, err := scanStudy(s.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapErr(err, "study")
	}
	return st, nil
}

func (s *StudyStore) UpdateProgress(ctx context.Context, id int, progress float64) error {
	query := `UPDATE studies SET progress = $2, updated_at = NOW() WHERE id = $1`
	tag, err := s.q.Exec(ctx, query, id, progress)
	if err != nil {
		s.logger.Error("Failed to update study progress",
			zap.Int("study_id", id),
			zap.Error(err),
		)
		return apperr.Database("update study progress", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("study not found")
	}
	return nil
}

type ProjectStore struct {
	q      querier
	logger *zap.Logger
}

func (s *ProjectStore) GetByID(ctx context.Context, id int) (*model.Project, error) {
	query := `
        SELECT id, title, owner_id, progress, created_at, updated_at
        FROM projects WHERE id = $1
    `
	var p model.Project
	err := s.q.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Title,
		&p.OwnerID,
		&p.Progress,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err, "project")
	}
	return &p, nil
}

func (s *ProjectStore) ListStudyProgress(ctx context.Context, projectID int) ([]float64, error) {
	query := `SELECT progress FROM studies WHERE project_id = $1 ORDER BY id`
	rows, err := s.q.Query(ctx, query, projectID)
	if err != nil {
		s.logger.Error("Failed to list study progress",
			zap.Int("project_id", projectID),
			zap.Error(err),
		)
		return nil, apperr.Database("list study progress", err)
	}
	defer rows.Close()

	values := []float64{}
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, apperr.Database("scan study progress", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database("iterate study progress", err)
	}
	return values, nil
}

func (s *ProjectStore) UpdateProgress(ctx context.Context, id int, progress float64) error {
	query := `UPDATE projects SET progress = $2, updated_at = NOW() WHERE id = $1`
	tag, err := s.q.Exec(ctx, query, id, progress)
	if err != nil {
		s.logger.Error("Failed to update project progress",
			zap.Int("project_id", id),
			zap.Error(err),
		)
		return apperr.Database("update project progress", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("project not found")
	}
	return nil
}
