// Package workflow implements the task-request state machine: researchers
// propose completing or reassigning their tasks, managers review. pending is
// the only live state; approved and rejected are terminal and immutable.
// Every review runs in one transaction with the task row locked, so a lost
// race surfaces as a conflict instead of corrupting state.
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"researchhub/contracts/events"
	"researchhub/internal/apperr"
	"researchhub/internal/model"
	"researchhub/internal/notify"
	"researchhub/internal/progress"
	"researchhub/internal/realtime"
	"researchhub/internal/store"
	"researchhub/pkg/metrics"
	"researchhub/pkg/rbac"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   int
	Role rbac.Role
}

type Service struct {
	db       store.DB
	progress *progress.Engine
	notifier *notify.Dispatcher
	bus      realtime.Emitter
	logger   *zap.Logger
}

func NewService(db store.DB, engine *progress.Engine, notifier *notify.Dispatcher, bus realtime.Emitter, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		progress: engine,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
	}
}

// RequestCompletion creates a pending completion request. The requester must
// be the task's current assignee and the task must still be open.
func (s *Service) RequestCompletion(ctx context.Context, taskID int, requester Actor, notes string) (*model.TaskRequest, error) {
	return s.createRequest(ctx, taskID, requester, model.RequestKindCompletion, nil, notes)
}

// RequestReassignment creates a pending reassignment request toward an
// active user.
func (s *Service) RequestReassignment(ctx context.Context, taskID int, requester Actor, targetID int, notes string) (*model.TaskRequest, error) {
	return s.createRequest(ctx, taskID, requester, model.RequestKindReassignment, &targetID, notes)
}

func (s *Service) createRequest(ctx context.Context, taskID int, requester Actor, kind string, targetID *int, notes string) (*model.TaskRequest, error) {
	if err := rbac.Check(requester.Role, rbac.ResourceTaskRequest, rbac.ActionCreate); err != nil {
		return nil, apperr.Permission(err.Error())
	}

	task, err := s.db.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.AssignedToID == nil || *task.AssignedToID != requester.ID {
		return nil, apperr.Validation("requester is not the task's current assignee")
	}
	if !task.IsOpen() {
		return nil, apperr.Validation(fmt.Sprintf("task is already %s", task.Status))
	}

	if kind == model.RequestKindReassignment {
		if targetID == nil {
			return nil, apperr.Validation("requested_assigned_to_id is required")
		}
		target, err := s.db.Users().GetByID(ctx, *targetID)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return nil, apperr.Validation("requested assignee does not exist")
			}
			return nil, err
		}
		if !target.Active {
			return nil, apperr.Validation("requested assignee is not active")
		}
		if rbac.ParseRole(target.Role) != rbac.RoleResearcher {
			return nil, apperr.Validation("requested assignee is not a researcher")
		}
		if target.ID == requester.ID {
			return nil, apperr.Validation("cannot request reassignment to yourself")
		}
	}

	req := &model.TaskRequest{
		TaskID:                taskID,
		RequestedByID:         requester.ID,
		Kind:                  kind,
		RequestedAssignedToID: targetID,
		Status:                model.RequestStatusPending,
		Notes:                 notes,
	}
	if _, err := s.db.Requests().Insert(ctx, req); err != nil {
		return nil, err
	}

	metrics.IncrementRequestDecision(kind, "created")
	s.logger.Info("Task request created",
		zap.Int("request_id", req.ID),
		zap.Int("task_id", taskID),
		zap.String("kind", kind),
		zap.Int("requested_by_id", requester.ID),
	)

	// The task's creator reviews workload changes; skip the self-notify.
	if task.CreatedByID != requester.ID {
		s.dispatch(ctx, &model.Notification{
			UserID:  task.CreatedByID,
			Type:    model.NotificationRequestCreated,
			Title:   "Task request awaiting review",
			Message: fmt.Sprintf("A %s request was submitted for task %q", kind, task.Title),
			TaskID:  &taskID,
		}, events.TaskRequestCreated, events.TaskRequestPayload{Request: req, Task: task})
	}
	s.bus.Emit(ctx, events.TaskRequestCreated, events.TaskRequestPayload{Request: req, Task: task})

	return req, nil
}

// Approve applies a pending request. For completions the task is completed
// and study/project progress recomputed inside the same transaction; for
// reassignments the task changes hands. Returns the updated task and
// request together.
func (s *Service) Approve(ctx context.Context, requestID int, reviewer Actor) (*model.Task, *model.TaskRequest, error) {
	if err := rbac.Check(reviewer.Role, rbac.ResourceTaskRequest, rbac.ActionReview); err != nil {
		return nil, nil, apperr.Permission(err.Error())
	}

	var (
		task *model.Task
		req  *model.TaskRequest
	)
	err := s.db.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		req, err = tx.Requests().GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != model.RequestStatusPending {
			return apperr.Conflict("request is not pending")
		}

		task, err = tx.Tasks().GetByIDForUpdate(ctx, req.TaskID)
		if err != nil {
			return err
		}

		now := time.Now()
		switch req.Kind {
		case model.RequestKindCompletion:
			if !task.IsOpen() {
				return apperr.Conflict(fmt.Sprintf("task is already %s", task.Status))
			}
			if err := tx.Tasks().MarkCompleted(ctx, task.ID, reviewer.ID, now); err != nil {
				return err
			}
			if task.StudyID != nil {
				if err := s.progress.Recompute(ctx, tx, *task.StudyID); err != nil {
					return err
				}
			}
		case model.RequestKindReassignment:
			if !task.IsOpen() {
				return apperr.Conflict(fmt.Sprintf("task is already %s", task.Status))
			}
			target, err := tx.Users().GetByID(ctx, *req.RequestedAssignedToID)
			if err != nil {
				return err
			}
			if !target.Active {
				return apperr.Validation("requested assignee is no longer active")
			}
			if err := tx.Tasks().UpdateAssignee(ctx, task.ID, target.ID); err != nil {
				return err
			}
		default:
			return apperr.Validation(fmt.Sprintf("unknown request kind %q", req.Kind))
		}

		if err := tx.Requests().MarkReviewed(ctx, req.ID, model.RequestStatusApproved, reviewer.ID, now, ""); err != nil {
			return err
		}

		task, err = tx.Tasks().GetByID(ctx, task.ID)
		if err != nil {
			return err
		}
		req, err = tx.Requests().GetByID(ctx, req.ID)
		return err
	})
	if err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			kind := "unknown"
			if req != nil {
				kind = req.Kind
			}
			metrics.IncrementRequestDecision(kind, "conflict")
		}
		return nil, nil, err
	}

	metrics.IncrementRequestDecision(req.Kind, "approved")
	s.logger.Info("Task request approved",
		zap.Int("request_id", req.ID),
		zap.Int("task_id", task.ID),
		zap.String("kind", req.Kind),
		zap.Int("reviewed_by_id", reviewer.ID),
	)

	s.dispatch(ctx, &model.Notification{
		UserID:  req.RequestedByID,
		Type:    model.NotificationRequestApproved,
		Title:   "Task request approved",
		Message: fmt.Sprintf("Your %s request for task %q was approved", req.Kind, task.Title),
		TaskID:  &task.ID,
	}, events.TaskRequestApproved, events.TaskRequestPayload{Request: req, Task: task})

	switch req.Kind {
	case model.RequestKindCompletion:
		s.bus.Emit(ctx, events.TaskCompleted, events.TaskPayload{Task: task})
	case model.RequestKindReassignment:
		s.dispatch(ctx, &model.Notification{
			UserID:  *req.RequestedAssignedToID,
			Type:    model.NotificationTaskAssigned,
			Title:   "Task assigned to you",
			Message: fmt.Sprintf("Task %q is now assigned to you", task.Title),
			TaskID:  &task.ID,
		}, events.TaskAssigned, events.TaskPayload{Task: task})
		s.bus.Emit(ctx, events.TaskAssigned, events.TaskPayload{Task: task})
	}

	return task, req, nil
}

// Reject finalizes a pending request without touching the task.
func (s *Service) Reject(ctx context.Context, requestID int, reviewer Actor, notes string) (*model.TaskRequest, error) {
	if err := rbac.Check(reviewer.Role, rbac.ResourceTaskRequest, rbac.ActionReview); err != nil {
		return nil, apperr.Permission(err.Error())
	}

	var req *model.TaskRequest
	err := s.db.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		req, err = tx.Requests().GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != model.RequestStatusPending {
			return apperr.Conflict("request is not pending")
		}
		if err := tx.Requests().MarkReviewed(ctx, req.ID, model.RequestStatusRejected, reviewer.ID, time.Now(), notes); err != nil {
			return err
		}
		req, err = tx.Requests().GetByID(ctx, req.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementRequestDecision(req.Kind, "rejected")
	s.logger.Info("Task request rejected",
		zap.Int("request_id", req.ID),
		zap.Int("task_id", req.TaskID),
		zap.Int("reviewed_by_id", reviewer.ID),
	)

	s.dispatch(ctx, &model.Notification{
		UserID:  req.RequestedByID,
		Type:    model.NotificationRequestRejected,
		Title:   "Task request rejected",
		Message: fmt.Sprintf("Your %s request was rejected", req.Kind),
		TaskID:  &req.TaskID,
	}, events.TaskRequestRejected, events.TaskRequestPayload{Request: req})

	return req, nil
}

// Complete is the direct manager completion path, bypassing the request
// workflow but routing through the same transactional recompute so the
// aggregates can never diverge between the two paths.
func (s *Service) Complete(ctx context.Context, taskID int, reviewer Actor) (*model.Task, error) {
	if err := rbac.Check(reviewer.Role, rbac.ResourceTask, rbac.ActionComplete); err != nil {
		return nil, apperr.Permission(err.Error())
	}

	var task *model.Task
	err := s.db.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		task, err = tx.Tasks().GetByIDForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if !task.IsOpen() {
			return apperr.Conflict(fmt.Sprintf("task is already %s", task.Status))
		}
		if err := tx.Tasks().MarkCompleted(ctx, task.ID, reviewer.ID, time.Now()); err != nil {
			return err
		}
		if task.StudyID != nil {
			if err := s.progress.Recompute(ctx, tx, *task.StudyID); err != nil {
				return err
			}
		}
		task, err = tx.Tasks().GetByID(ctx, task.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Task completed directly",
		zap.Int("task_id", task.ID),
		zap.Int("completed_by_id", reviewer.ID),
	)

	if task.AssignedToID != nil && *task.AssignedToID != reviewer.ID {
		s.dispatch(ctx, &model.Notification{
			UserID:  *task.AssignedToID,
			Type:    model.NotificationTaskCompleted,
			Title:   "Task completed",
			Message: fmt.Sprintf("Task %q was marked completed", task.Title),
			TaskID:  &task.ID,
		}, events.TaskCompleted, events.TaskPayload{Task: task})
	}
	s.bus.Emit(ctx, events.TaskCompleted, events.TaskPayload{Task: task})

	return task, nil
}

// List returns every request for managers and only the actor's own for
// researchers.
func (s *Service) List(ctx context.Context, actor Actor) ([]model.TaskRequest, error) {
	if err := rbac.Check(actor.Role, rbac.ResourceTaskRequest, rbac.ActionRead); err != nil {
		return nil, apperr.Permission(err.Error())
	}
	if actor.Role == rbac.RoleManager || actor.Role == rbac.RoleAdmin {
		return s.db.Requests().List(ctx)
	}
	return s.db.Requests().ListByRequester(ctx, actor.ID)
}

// ListByTask returns one task's request history, newest state included.
// Managers see every request; researchers only those they submitted.
func (s *Service) ListByTask(ctx context.Context, actor Actor, taskID int) ([]model.TaskRequest, error) {
	if err := rbac.Check(actor.Role, rbac.ResourceTaskRequest, rbac.ActionRead); err != nil {
		return nil, apperr.Permission(err.Error())
	}
	if _, err := s.db.Tasks().GetByID(ctx, taskID); err != nil {
		return nil, err
	}
	requests, err := s.db.Requests().ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if actor.Role == rbac.RoleManager || actor.Role == rbac.RoleAdmin {
		return requests, nil
	}
	own := make([]model.TaskRequest, 0, len(requests))
	for _, r := range requests {
		if r.RequestedByID == actor.ID {
			own = append(own, r)
		}
	}
	return own, nil
}

// dispatch persists a notification and emits its realtime event, never
// failing the calling operation.
func (s *Service) dispatch(ctx context.Context, n *model.Notification, event string, payload any) {
	if _, err := s.notifier.CreateAndDispatch(ctx, n, event, payload); err != nil {
		s.logger.Error("Failed to dispatch notification",
			zap.Int("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err),
		)
	}
}
