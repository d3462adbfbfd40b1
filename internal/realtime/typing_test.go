package realtime

import (
	"sync"
	"testing"
	"time"
)

type typingRecorder struct {
	mu      sync.Mutex
	started []int
	stopped []int
}

func (r *typingRecorder) start(roomID, userID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, roomID)
}

func (r *typingRecorder) stop(roomID, userID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, roomID)
}

func (r *typingRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started), len(r.stopped)
}

func TestTypingSession_StartOncePerRoom(t *testing.T) {
	rec := &typingRecorder{}
	s := NewTypingSession(7, rec.start, rec.stop)
	defer s.Close()

	s.MarkTyping(1)
	s.MarkTyping(1)
	s.MarkTyping(1)

	started, stopped := rec.counts()
	if started != 1 {
		t.Errorf("started events = %d, want 1 (repeat keystrokes only reset the timer)", started)
	}
	if stopped != 0 {
		t.Errorf("stopped events = %d, want 0", stopped)
	}
}

func TestTypingSession_ExplicitClear(t *testing.T) {
	rec := &typingRecorder{}
	s := NewTypingSession(7, rec.start, rec.stop)
	defer s.Close()

	s.MarkTyping(1)
	s.ClearTyping(1)

	if _, stopped := rec.counts(); stopped != 1 {
		t.Errorf("stopped events = %d, want 1", stopped)
	}
	if rooms := s.ActiveRooms(); len(rooms) != 0 {
		t.Errorf("active rooms after clear = %v, want none", rooms)
	}

	// Clearing an inactive room is a no-op.
	s.ClearTyping(1)
	if _, stopped := rec.counts(); stopped != 1 {
		t.Errorf("stopped events after double clear = %d, want 1", stopped)
	}
}

func TestTypingSession_AutoExpiry(t *testing.T) {
	rec := &typingRecorder{}
	s := NewTypingSession(7, rec.start, rec.stop)
	s.expiry = 20 * time.Millisecond
	defer s.Close()

	s.MarkTyping(1)

	deadline := time.Now().Add(time.Second)
	for {
		if _, stopped := rec.counts(); stopped == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("indicator did not auto-expire")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rooms := s.ActiveRooms(); len(rooms) != 0 {
		t.Errorf("active rooms after expiry = %v, want none", rooms)
	}
}

func TestTypingSession_CloseStopsAllRooms(t *testing.T) {
	rec := &typingRecorder{}
	s := NewTypingSession(7, rec.start, rec.stop)

	s.MarkTyping(1)
	s.MarkTyping(2)
	s.MarkTyping(3)
	s.Close()

	if _, stopped := rec.counts(); stopped != 3 {
		t.Errorf("stopped events after Close = %d, want 3", stopped)
	}

	// Session is dead after Close.
	s.MarkTyping(4)
	if started, _ := rec.counts(); started != 3 {
		t.Errorf("started events after Close = %d, want 3", started)
	}
}
