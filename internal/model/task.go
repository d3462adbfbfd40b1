package model

import "time"

// Task statuses.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

// Task types. A research task belongs to a study; an administrative task
// hangs directly off a project and never feeds progress aggregates.
const (
	TaskTypeResearch       = "research"
	TaskTypeAdministrative = "administrative"
)

type Task struct {
	ID            int        `json:"id"`
	StudyID       *int       `json:"study_id,omitempty"`
	ProjectID     *int       `json:"project_id,omitempty"`
	TaskType      string     `json:"task_type"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	Priority      string     `json:"priority"` // LOW / MEDIUM / HIGH
	AssignedToID  *int       `json:"assigned_to_id,omitempty"`
	CreatedByID   int        `json:"created_by_id"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CompletedByID *int       `json:"completed_by_id,omitempty"`
	DueDate       time.Time  `json:"due_date"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsOpen reports whether the task can still be completed or reassigned.
func (t *Task) IsOpen() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusInProgress
}
