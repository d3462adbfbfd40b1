package realtime

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"researchhub/contracts/events"
)

func recvOne(t *testing.T, sub *Subscriber) events.Envelope {
	t.Helper()
	select {
	case env := <-sub.C:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return events.Envelope{}
	}
}

func assertNone(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case env := <-sub.C:
		t.Fatalf("unexpected event %q for user %d", env.Event, sub.UserID)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_TargetedDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop())
	alice := hub.Subscribe(1)
	bob := hub.Subscribe(2)
	defer hub.Unsubscribe(alice)
	defer hub.Unsubscribe(bob)

	hub.Broadcast(events.Envelope{
		ID:            "e1",
		Event:         events.TaskCompleted,
		TargetUserIDs: []int{1},
	})

	if got := recvOne(t, alice); got.Event != events.TaskCompleted {
		t.Errorf("alice got %q, want %q", got.Event, events.TaskCompleted)
	}
	assertNone(t, bob)
}

func TestHub_BroadcastReachesAll(t *testing.T) {
	hub := NewHub(zap.NewNop())
	alice := hub.Subscribe(1)
	bob := hub.Subscribe(2)
	defer hub.Unsubscribe(alice)
	defer hub.Unsubscribe(bob)

	hub.Broadcast(events.Envelope{ID: "e1", Event: events.TypingStarted})

	recvOne(t, alice)
	recvOne(t, bob)
}

func TestHub_MultipleConnectionsPerUser(t *testing.T) {
	hub := NewHub(zap.NewNop())
	tab1 := hub.Subscribe(1)
	tab2 := hub.Subscribe(1)
	defer hub.Unsubscribe(tab1)
	defer hub.Unsubscribe(tab2)

	hub.Broadcast(events.Envelope{ID: "e1", Event: events.TaskAssigned, TargetUserIDs: []int{1}})

	recvOne(t, tab1)
	recvOne(t, tab2)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop())
	sub := hub.Subscribe(1)
	hub.Unsubscribe(sub)

	if hub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", hub.SubscriberCount())
	}

	// Must not panic on a closed channel.
	hub.Broadcast(events.Envelope{ID: "e1", Event: events.TaskCompleted, TargetUserIDs: []int{1}})

	// Double unsubscribe is a no-op.
	hub.Unsubscribe(sub)
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(zap.NewNop())
	sub := hub.Subscribe(1)
	defer hub.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			hub.Broadcast(events.Envelope{ID: "e", Event: events.TypingStarted, TargetUserIDs: []int{1}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a slow subscriber")
	}
}
