package model

import "time"

// Notification types.
const (
	NotificationRequestCreated  = "task_request_created"
	NotificationRequestApproved = "task_request_approved"
	NotificationRequestRejected = "task_request_rejected"
	NotificationTaskAssigned    = "task_assigned"
	NotificationTaskCompleted   = "task_completed"
)

// Notification is the durable per-recipient record of a domain event,
// independent of realtime delivery success. Created once, mutated only to
// flip IsRead.
type Notification struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	TaskID    *int      `json:"task_id,omitempty"`
	StudyID   *int      `json:"study_id,omitempty"`
	ProjectID *int      `json:"project_id,omitempty"`
	RoomID    *int      `json:"room_id,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
