// Package store defines the repository interfaces the core services depend
// on. RequestWorkflow and ProgressEngine only see these interfaces; the pgx
// implementation lives in store/postgres and an in-memory substitute for
// tests in store/memstore.
package store

import (
	"context"
	"time"

	"researchhub/internal/model"
)

// TaskStore reads and mutates tasks.
type TaskStore interface {
	GetByID(ctx context.Context, id int) (*model.Task, error)
	// GetByIDForUpdate takes the row lock inside the current transaction; a
	// concurrent reviewer blocks here until the winner commits.
	GetByIDForUpdate(ctx context.Context, id int) (*model.Task, error)
	// CountByStudy returns total and completed research-task counts for one
	// study, read from the transaction's own snapshot.
	CountByStudy(ctx context.Context, studyID int) (total, completed int, err error)
	MarkCompleted(ctx context.Context, id, completedByID int, at time.Time) error
	UpdateAssignee(ctx context.Context, id, assignedToID int) error
}

// StudyStore reads and mutates studies.
type StudyStore interface {
	GetByID(ctx context.Context, id int) (*model.Study, error)
	// GetByIDForUpdate serializes concurrent recomputes on the study row.
	GetByIDForUpdate(ctx context.Context, id int) (*model.Study, error)
	UpdateProgress(ctx context.Context, id int, progress float64) error
}

// ProjectStore reads and mutates projects.
type ProjectStore interface {
	GetByID(ctx context.Context, id int) (*model.Project, error)
	// ListStudyProgress returns the cached progress of every study in the
	// project, in id order.
	ListStudyProgress(ctx context.Context, projectID int) ([]float64, error)
	UpdateProgress(ctx context.Context, id int, progress float64) error
}

// RequestStore reads and mutates task requests.
type RequestStore interface {
	Insert(ctx context.Context, r *model.TaskRequest) (int, error)
	GetByID(ctx context.Context, id int) (*model.TaskRequest, error)
	GetByIDForUpdate(ctx context.Context, id int) (*model.TaskRequest, error)
	// MarkReviewed finalizes a pending request; the row is immutable after.
	MarkReviewed(ctx context.Context, id int, status string, reviewedByID int, at time.Time, reviewerNotes string) error
	List(ctx context.Context) ([]model.TaskRequest, error)
	ListByRequester(ctx context.Context, userID int) ([]model.TaskRequest, error)
	ListByTask(ctx context.Context, taskID int) ([]model.TaskRequest, error)
}

// NotificationStore persists notification rows.
type NotificationStore interface {
	Insert(ctx context.Context, n *model.Notification) (int, error)
	GetByID(ctx context.Context, id int) (*model.Notification, error)
	ListByUser(ctx context.Context, userID int) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, id, userID int) error
	CountUnread(ctx context.Context, userID int) (int, error)
}

// UserStore reads user records owned by the external auth collaborator.
type UserStore interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
}

// Tx is the set of stores visible inside one transaction (or, via DB, in
// auto-commit mode).
type Tx interface {
	Tasks() TaskStore
	Studies() StudyStore
	Projects() ProjectStore
	Requests() RequestStore
	Notifications() NotificationStore
	Users() UserStore
}

// DB is the entity store entry point. The embedded Tx runs each call in
// auto-commit mode; InTx runs fn inside one transaction, committing when fn
// returns nil and rolling back otherwise.
type DB interface {
	Tx
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
