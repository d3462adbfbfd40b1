package postgres

import (
	"context"

	"go.uber.org/zap"

	"researchhub/internal/model"
)

type UserStore struct {
	q      querier
	logger *zap.Logger
}

func (s *UserStore) GetByID(ctx context.Context, id int) (*model.User, error) {
	query := `SELECT id, name, role, active FROM users WHERE id = $1`
	var u model.User
	err := s.q.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.Role, &u.Active)
	if err != nil {
		return nil, mapErr(err, "user")
	}
	return &u, nil
}
