package model

import "time"

// TaskRequest kinds.
const (
	RequestKindCompletion   = "completion"
	RequestKindReassignment = "reassignment"
)

// TaskRequest statuses. pending is the only non-terminal state; approved and
// rejected rows are immutable.
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

// TaskRequest is a researcher's proposal to complete or reassign a task,
// subject to manager review.
type TaskRequest struct {
	ID                    int        `json:"id"`
	TaskID                int        `json:"task_id"`
	RequestedByID         int        `json:"requested_by_id"`
	Kind                  string     `json:"kind"`
	RequestedAssignedToID *int       `json:"requested_assigned_to_id,omitempty"`
	Status                string     `json:"status"`
	Notes                 string     `json:"notes,omitempty"`
	ReviewedByID          *int       `json:"reviewed_by_id,omitempty"`
	ReviewedAt            *time.Time `json:"reviewed_at,omitempty"`
	ReviewerNotes         string     `json:"reviewer_notes,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}
