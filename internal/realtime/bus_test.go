package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"

	"researchhub/contracts/events"
)

func TestBus_LocalHubPreferred(t *testing.T) {
	logger := zap.NewNop()
	hub := NewHub(logger)

	var fallbackHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackHits++
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	bus := NewBus(hub, nil, srv.URL, logger)

	sub := hub.Subscribe(7)
	defer hub.Unsubscribe(sub)

	bus.Emit(context.Background(), events.TaskCompleted, events.TypingPayload{}, 7)

	env := <-sub.C
	if env.Event != events.TaskCompleted {
		t.Errorf("event = %q", env.Event)
	}
	if env.ID == "" {
		t.Error("envelope id not set")
	}
	if fallbackHits != 0 {
		t.Errorf("HTTP fallback hit %d times with a local hub present", fallbackHits)
	}
}

func TestBus_HTTPFallbackWhenNoOtherPath(t *testing.T) {
	logger := zap.NewNop()

	var (
		mu       sync.Mutex
		received []events.Envelope
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/events" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var env events.Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		received = append(received, env)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	bus := NewBus(nil, nil, srv.URL, logger)
	bus.Emit(context.Background(), events.TaskAssigned, nil, 3, 4)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("fallback received %d envelopes, want 1", len(received))
	}
	if received[0].Event != events.TaskAssigned {
		t.Errorf("event = %q", received[0].Event)
	}
	if len(received[0].TargetUserIDs) != 2 {
		t.Errorf("targets = %v", received[0].TargetUserIDs)
	}
}

func TestBus_NoDeliveryPathDropsQuietly(t *testing.T) {
	bus := NewBus(nil, nil, "", zap.NewNop())
	// Must not panic or block.
	bus.Emit(context.Background(), events.TaskCompleted, nil, 1)
}

func TestBus_BreakerStopsHammeringDeadFallback(t *testing.T) {
	logger := zap.NewNop()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	bus := NewBus(nil, nil, srv.URL, logger)
	for i := 0; i < 10; i++ {
		bus.Emit(context.Background(), events.TaskCompleted, nil, 1)
	}

	// The breaker opens after its failure threshold; the remaining emits
	// must not reach the server.
	if hits >= 10 {
		t.Fatalf("fallback hit %d times, breaker never opened", hits)
	}
	if hits == 0 {
		t.Fatal("fallback never attempted")
	}
}
