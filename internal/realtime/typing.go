package realtime

import (
	"sync"
	"time"
)

// typingExpiry is how long a typing indicator lives without a new keystroke.
const typingExpiry = 3 * time.Second

// TypingSession tracks which rooms one connection is composing in. The
// session owns every timer it starts; Close cancels them all, so a
// disconnect can never leak a timer or a stale indicator. State is
// process-local and lost on restart, which only affects a transient UI
// affordance.
type TypingSession struct {
	userID  int
	expiry  time.Duration
	onStart func(roomID, userID int)
	onStop  func(roomID, userID int)

	mu     sync.Mutex
	timers map[int]*time.Timer // keyed by room id
	closed bool
}

// NewTypingSession builds a session for one connection. onStart/onStop are
// invoked when an indicator appears or disappears (explicit stop, expiry, or
// session teardown).
func NewTypingSession(userID int, onStart, onStop func(roomID, userID int)) *TypingSession {
	return &TypingSession{
		userID:  userID,
		expiry:  typingExpiry,
		onStart: onStart,
		onStop:  onStop,
		timers:  make(map[int]*time.Timer),
	}
}

// MarkTyping records a keystroke in a room: starts the indicator on the
// first call and pushes the expiry out on every subsequent one.
func (s *TypingSession) MarkTyping(roomID int) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if timer, ok := s.timers[roomID]; ok {
		timer.Reset(s.expiry)
		s.mu.Unlock()
		return
	}

	s.timers[roomID] = time.AfterFunc(s.expiry, func() {
		s.expire(roomID)
	})
	s.mu.Unlock()

	s.onStart(roomID, s.userID)
}

// ClearTyping stops the indicator for a room.
func (s *TypingSession) ClearTyping(roomID int) {
	s.mu.Lock()
	timer, ok := s.timers[roomID]
	if ok {
		timer.Stop()
		delete(s.timers, roomID)
	}
	s.mu.Unlock()

	if ok {
		s.onStop(roomID, s.userID)
	}
}

func (s *TypingSession) expire(roomID int) {
	s.mu.Lock()
	_, ok := s.timers[roomID]
	if ok {
		delete(s.timers, roomID)
	}
	s.mu.Unlock()

	if ok {
		s.onStop(roomID, s.userID)
	}
}

// Close tears the session down on disconnect, cancelling every live timer
// and stopping every active indicator.
func (s *TypingSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	rooms := make([]int, 0, len(s.timers))
	for roomID, timer := range s.timers {
		timer.Stop()
		rooms = append(rooms, roomID)
	}
	s.timers = nil
	s.mu.Unlock()

	for _, roomID := range rooms {
		s.onStop(roomID, s.userID)
	}
}

// ActiveRooms lists rooms with a live indicator, for tests and diagnostics.
func (s *TypingSession) ActiveRooms() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]int, 0, len(s.timers))
	for roomID := range s.timers {
		rooms = append(rooms, roomID)
	}
	return rooms
}
