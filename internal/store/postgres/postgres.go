// Package postgres implements the store interfaces on pgx. Row locks come
// from SELECT ... FOR UPDATE inside the enclosing transaction.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"researchhub/internal/apperr"
	"researchhub/internal/store"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB implements store.DB over a pgx pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	stores
}

type stores struct {
	tasks         *TaskStore
	studies       *StudyStore
	projects      *ProjectStore
	requests      *RequestStore
	notifications *NotificationStore
	users         *UserStore
}

func newStores(q querier, logger *zap.Logger) stores {
	return stores{
		tasks:         &TaskStore{q: q, logger: logger},
		studies:       &StudyStore{q: q, logger: logger},
		projects:      &ProjectStore{q: q, logger: logger},
		requests:      &RequestStore{q: q, logger: logger},
		notifications: &NotificationStore{q: q, logger: logger},
		users:         &UserStore{q: q, logger: logger},
	}
}

func (s stores) Tasks() store.TaskStore                 { return s.tasks }
func (s stores) Studies() store.StudyStore              { return s.studies }
func (s stores) Projects() store.ProjectStore           { return s.projects }
func (s stores) Requests() store.RequestStore           { return s.requests }
func (s stores) Notifications() store.NotificationStore { return s.notifications }
func (s stores) Users() store.UserStore                 { return s.users }

func NewDB(pool *pgxpool.Pool, logger *zap.Logger) *DB {
	return &DB{
		pool:   pool,
		logger: logger,
		stores: newStores(pool, logger),
	}
}

// Pool exposes the underlying pool for health probes.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// InTx runs fn inside one transaction. fn returning an error rolls back; a
// commit failure surfaces as a database error.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgtx, err := db.pool.Begin(ctx)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return apperr.Database("begin transaction", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(ctx, newStores(pgtx, db.logger)); err != nil {
		return err
	}

	if err := pgtx.Commit(ctx); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return apperr.Database("commit transaction", err)
	}
	return nil
}

// mapErr converts pgx errors into the service error taxonomy.
func mapErr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(what + " not found")
	}
	return apperr.Database(what+" query failed", err)
}
