package realtime

import (
	"sync"

	"go.uber.org/zap"

	"researchhub/contracts/events"
	"researchhub/pkg/metrics"
)

// subscriberBuffer is how many undelivered events a slow client may queue
// before further events are dropped for it.
const subscriberBuffer = 16

// Subscriber is one connected client stream.
type Subscriber struct {
	UserID int
	C      chan events.Envelope
}

// Hub fans events out to connected subscribers. Purely in-memory; a
// subscriber that cannot keep up loses events, per the at-most-once contract.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]map[*Subscriber]struct{} // keyed by user id
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[int]map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a stream for a user. The caller owns the returned
// subscriber and must Unsubscribe it on disconnect.
func (h *Hub) Subscribe(userID int) *Subscriber {
	sub := &Subscriber{
		UserID: userID,
		C:      make(chan events.Envelope, subscriberBuffer),
	}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	metrics.RealtimeSubscribers.Inc()
	h.logger.Debug("Subscriber connected", zap.Int("user_id", userID))
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[sub.UserID]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			close(sub.C)
			metrics.RealtimeSubscribers.Dec()
		}
		if len(set) == 0 {
			delete(h.subs, sub.UserID)
		}
	}
	h.mu.Unlock()
}

// Broadcast delivers an envelope to its target users, or to every connected
// subscriber when no targets are set. Sends never block: a full subscriber
// buffer drops the event for that subscriber.
func (h *Hub) Broadcast(env events.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(env.TargetUserIDs) == 0 {
		for _, set := range h.subs {
			for sub := range set {
				h.send(sub, env)
			}
		}
		return
	}

	for _, userID := range env.TargetUserIDs {
		for sub := range h.subs[userID] {
			h.send(sub, env)
		}
	}
}

func (h *Hub) send(sub *Subscriber, env events.Envelope) {
	select {
	case sub.C <- env:
	default:
		h.logger.Warn("Dropping event for slow subscriber",
			zap.Int("user_id", sub.UserID),
			zap.String("event", env.Event),
		)
	}
}

// SubscriberCount reports connected subscribers, for the readiness probe.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}
