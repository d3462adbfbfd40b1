// Package realtime delivers domain events to connected clients. Delivery is
// best-effort and at-most-once: nothing is persisted, nothing is replayed,
// and no failure ever reaches the caller that produced the event.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"researchhub/contracts/events"
	"researchhub/pkg/circuitbreaker"
	"researchhub/pkg/metrics"
	"researchhub/pkg/mq"
)

// Emitter is what the workflow and notification services see of the bus.
type Emitter interface {
	// Emit delivers one event to the targeted users (all connected clients
	// when no targets are given). Best-effort: failures are logged, never
	// returned.
	Emit(ctx context.Context, event string, payload any, targetUserIDs ...int)
}

// emitTimeout bounds the whole async emission, including the HTTP fallback.
const emitTimeout = 10 * time.Second

// Bus implements Emitter with three delivery paths tried in order: an
// in-process hub when the realtime server runs embedded, the MQ topic
// exchange, and finally an HTTP call to the separately hosted realtime
// service.
type Bus struct {
	hub         *Hub
	publisher   *mq.Publisher
	fallbackURL string
	client      *http.Client
	breaker     *circuitbreaker.CircuitBreaker
	logger      *zap.Logger
}

func NewBus(hub *Hub, publisher *mq.Publisher, fallbackURL string, logger *zap.Logger) *Bus {
	return &Bus{
		hub:         hub,
		publisher:   publisher,
		fallbackURL: fallbackURL,
		client:      &http.Client{Timeout: emitTimeout},
		breaker:     circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger:      logger,
	}
}

func (b *Bus) Emit(ctx context.Context, event string, payload any, targetUserIDs ...int) {
	env := events.Envelope{
		ID:            uuid.NewString(),
		Event:         event,
		Payload:       payload,
		TargetUserIDs: targetUserIDs,
		EmittedAt:     time.Now(),
	}

	if b.hub != nil {
		b.hub.Broadcast(env)
		metrics.IncrementRealtimeEmit(event, "local", "ok")
		return
	}

	if b.publisher.IsConnected() {
		err := b.publisher.Publish(events.RoutingKey, env)
		if err == nil {
			metrics.IncrementRealtimeEmit(event, "mq", "ok")
			return
		}
		b.logger.Warn("MQ emit failed, trying HTTP fallback",
			zap.String("event", event),
			zap.Error(err),
		)
		metrics.IncrementRealtimeEmit(event, "mq", "error")
	}

	if b.fallbackURL == "" {
		metrics.IncrementRealtimeEmit(event, "http", "dropped")
		b.logger.Warn("Realtime event dropped, no delivery path",
			zap.String("event", event),
		)
		return
	}

	err := b.breaker.Execute(func() error {
		return b.postEvent(ctx, env)
	})
	if err != nil {
		metrics.IncrementRealtimeEmit(event, "http", "error")
		b.logger.Warn("Realtime HTTP fallback failed",
			zap.String("event", event),
			zap.String("event_id", env.ID),
			zap.Error(err),
		)
		return
	}
	metrics.IncrementRealtimeEmit(event, "http", "ok")
}

// EmitAsync dispatches Emit on its own goroutine with a bounded deadline,
// detached from the request that produced the event. The HTTP response may
// return to the caller before any client has received the event.
func (b *Bus) EmitAsync(event string, payload any, targetUserIDs ...int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		b.Emit(ctx, event, payload, targetUserIDs...)
	}()
}

// Async wraps the bus as an Emitter whose Emit returns immediately, for
// callers on the HTTP request path.
func (b *Bus) Async() Emitter { return asyncEmitter{b} }

type asyncEmitter struct{ b *Bus }

func (a asyncEmitter) Emit(ctx context.Context, event string, payload any, targetUserIDs ...int) {
	a.b.EmitAsync(event, payload, targetUserIDs...)
}

func (b *Bus) postEvent(ctx context.Context, env events.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.fallbackURL+"/internal/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}
