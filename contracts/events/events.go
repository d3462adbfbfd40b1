package events

import (
	"time"

	"researchhub/internal/model"
)

// Realtime event names. Fire-and-forget; no acknowledgement contract.
const (
	TaskRequestCreated  = "task-request:created"
	TaskRequestApproved = "task-request:approved"
	TaskRequestRejected = "task-request:rejected"
	TaskAssigned        = "task:assigned"
	TaskCompleted       = "task:completed"
	TypingStarted       = "typing:started"
	TypingStopped       = "typing:stopped"
)

// RoutingKey is the topic routing key realtime events travel under when the
// cross-process path goes through the MQ.
const RoutingKey = "realtime.push"

// Envelope wraps one realtime event for transport. TargetUserIDs empty means
// broadcast to every connected client.
type Envelope struct {
	ID            string    `json:"id"`
	Event         string    `json:"event"`
	Payload       any       `json:"payload"`
	TargetUserIDs []int     `json:"target_user_ids,omitempty"`
	EmittedAt     time.Time `json:"emitted_at"`
}

// TaskRequestPayload carries the snapshot a client needs to update its view
// of a request without a follow-up fetch.
type TaskRequestPayload struct {
	Request *model.TaskRequest `json:"request"`
	Task    *model.Task        `json:"task,omitempty"`
}

// TaskPayload carries a task snapshot for task:assigned / task:completed.
type TaskPayload struct {
	Task *model.Task `json:"task"`
}

// TypingPayload identifies who is composing in which room.
type TypingPayload struct {
	RoomID int `json:"room_id"`
	UserID int `json:"user_id"`
}
