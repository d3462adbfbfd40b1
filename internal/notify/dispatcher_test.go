package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"researchhub/internal/apperr"
	"researchhub/internal/model"
	"researchhub/internal/store"
	"researchhub/internal/store/memstore"
)

type failingStore struct{ store.NotificationStore }

func (failingStore) Insert(ctx context.Context, n *model.Notification) (int, error) {
	return 0, apperr.Database("insert notification", errors.New("connection refused"))
}

// recordingEmitter captures emissions and, through the probe callback, lets a
// test observe store state at the exact moment of dispatch.
type recordingEmitter struct {
	mu    sync.Mutex
	calls []emitCall
	probe func()
}

type emitCall struct {
	event   string
	targets []int
}

func (r *recordingEmitter) Emit(ctx context.Context, event string, payload any, targetUserIDs ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.probe != nil {
		r.probe()
	}
	r.calls = append(r.calls, emitCall{event: event, targets: targetUserIDs})
}

func (r *recordingEmitter) all() []emitCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitCall(nil), r.calls...)
}

func TestCreateAndDispatch_PersistsBeforeDispatch(t *testing.T) {
	db := memstore.New()
	emitter := &recordingEmitter{}
	d := NewDispatcher(db.Notifications(), emitter, nil, zap.NewNop())

	ctx := context.Background()
	var rowsAtDispatch int
	emitter.probe = func() {
		rows, err := db.Notifications().ListByUser(ctx, 5)
		if err != nil {
			t.Errorf("ListByUser() during dispatch error: %v", err)
		}
		rowsAtDispatch = len(rows)
	}

	n := &model.Notification{
		UserID:  5,
		Type:    model.NotificationTaskCompleted,
		Title:   "Task completed",
		Message: "Sequencing run finished",
	}
	if _, err := d.CreateAndDispatch(ctx, n, "task:completed", nil); err != nil {
		t.Fatalf("CreateAndDispatch() error: %v", err)
	}

	if rowsAtDispatch != 1 {
		t.Errorf("rows queryable at dispatch time = %d, want 1 (persist must precede dispatch)", rowsAtDispatch)
	}

	calls := emitter.all()
	if len(calls) != 1 {
		t.Fatalf("emit calls = %d, want 1", len(calls))
	}
	if calls[0].event != "task:completed" {
		t.Errorf("emitted event = %q, want %q", calls[0].event, "task:completed")
	}
	if len(calls[0].targets) != 1 || calls[0].targets[0] != 5 {
		t.Errorf("emit targets = %v, want [5]", calls[0].targets)
	}
}

func TestCreateAndDispatch_NoDispatchOnPersistFailure(t *testing.T) {
	db := memstore.New()
	emitter := &recordingEmitter{}
	d := NewDispatcher(failingStore{db.Notifications()}, emitter, nil, zap.NewNop())

	n := &model.Notification{UserID: 5, Type: model.NotificationTaskAssigned}
	if _, err := d.CreateAndDispatch(context.Background(), n, "task:assigned", nil); err == nil {
		t.Fatal("CreateAndDispatch() = nil error, want persistence failure")
	}
	if len(emitter.all()) != 0 {
		t.Error("dispatch invoked despite persistence failure")
	}
}

func TestMarkAsRead_ScopedToRecipient(t *testing.T) {
	db := memstore.New()
	d := NewDispatcher(db.Notifications(), &recordingEmitter{}, nil, zap.NewNop())

	ctx := context.Background()
	n := &model.Notification{UserID: 5, Type: model.NotificationRequestApproved}
	if _, err := d.CreateAndDispatch(ctx, n, "task-request:approved", nil); err != nil {
		t.Fatalf("CreateAndDispatch() error: %v", err)
	}

	if err := d.MarkAsRead(ctx, n.ID, 6); err == nil {
		t.Error("MarkAsRead() by non-recipient = nil error, want not found")
	}
	if err := d.MarkAsRead(ctx, n.ID, 5); err != nil {
		t.Errorf("MarkAsRead() by recipient error: %v", err)
	}

	count, err := d.CountUnread(ctx, 5)
	if err != nil {
		t.Fatalf("CountUnread() error: %v", err)
	}
	if count != 0 {
		t.Errorf("unread count after read = %d, want 0", count)
	}
}
