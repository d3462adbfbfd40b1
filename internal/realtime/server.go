package realtime

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"researchhub/contracts/events"
)

// Server is the fan-out service's HTTP surface: the SSE stream, the typing
// endpoints, and the internal ingest endpoint the API service falls back to
// when the MQ is down.
type Server struct {
	hub    *Hub
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[int]*userSession // keyed by user id
}

// userSession holds one user's typing state, shared across that user's open
// streams and torn down when the last one disconnects.
type userSession struct {
	typing *TypingSession
	conns  int
}

func NewServer(hub *Hub, logger *zap.Logger) *Server {
	return &Server{
		hub:      hub,
		logger:   logger,
		sessions: make(map[int]*userSession),
	}
}

// Stream is the SSE endpoint. It holds the connection open and writes every
// event routed to the user until the client goes away.
func (s *Server) Stream(c *gin.Context) {
	userID := c.GetInt("user_id")
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	sub := s.hub.Subscribe(userID)
	s.attach(userID)
	defer func() {
		s.hub.Unsubscribe(sub)
		s.detach(userID)
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Info("SSE stream opened", zap.Int("user_id", userID))

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SSE stream closed", zap.Int("user_id", userID))
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				s.logger.Error("Failed to marshal envelope", zap.Error(err))
				continue
			}
			if _, err := io.WriteString(c.Writer, "event: "+env.Event+"\ndata: "+string(data)+"\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// TypingStart marks the caller as composing in a room. Repeated calls renew
// the expiry; silence stops it automatically.
func (s *Server) TypingStart(c *gin.Context) {
	userID := c.GetInt("user_id")
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	session := s.session(userID)
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no active realtime connection"})
		return
	}
	session.MarkTyping(roomID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) TypingStop(c *gin.Context) {
	userID := c.GetInt("user_id")
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	session := s.session(userID)
	if session == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no active realtime connection"})
		return
	}
	session.ClearTyping(roomID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// IngestEvent accepts an envelope from the API service's HTTP fallback path
// and fans it out locally.
func (s *Server) IngestEvent(c *gin.Context) {
	var env events.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		s.logger.Warn("IngestEvent: invalid envelope", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid envelope"})
		return
	}
	if env.Event == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event name required"})
		return
	}

	s.hub.Broadcast(env)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// attach creates or shares the user's typing session for a new stream.
func (s *Server) attach(userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	us, ok := s.sessions[userID]
	if !ok {
		us = &userSession{
			typing: NewTypingSession(userID, s.broadcastTyping(events.TypingStarted), s.broadcastTyping(events.TypingStopped)),
		}
		s.sessions[userID] = us
	}
	us.conns++
}

// detach drops one stream; the last disconnect closes the typing session,
// stopping any indicators the user left behind.
func (s *Server) detach(userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	us, ok := s.sessions[userID]
	if !ok {
		return
	}
	us.conns--
	if us.conns <= 0 {
		us.typing.Close()
		delete(s.sessions, userID)
	}
}

func (s *Server) session(userID int) *TypingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if us, ok := s.sessions[userID]; ok {
		return us.typing
	}
	return nil
}

func (s *Server) broadcastTyping(event string) func(roomID, userID int) {
	return func(roomID, userID int) {
		s.hub.Broadcast(events.Envelope{
			ID:        uuid.NewString(),
			Event:     event,
			Payload:   events.TypingPayload{RoomID: roomID, UserID: userID},
			EmittedAt: time.Now(),
		})
	}
}
