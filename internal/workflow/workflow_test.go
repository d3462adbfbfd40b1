package workflow

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"

	"researchhub/contracts/events"
	"researchhub/internal/apperr"
	"researchhub/internal/model"
	"researchhub/internal/notify"
	"researchhub/internal/progress"
	"researchhub/internal/store/memstore"
	"researchhub/pkg/rbac"
)

// recordingEmitter captures emitted events so tests can assert on the
// realtime side effects without a hub.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

type emitted struct {
	event   string
	targets []int
}

func (r *recordingEmitter) Emit(ctx context.Context, event string, payload any, targetUserIDs ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{event: event, targets: targetUserIDs})
}

func (r *recordingEmitter) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.event == event {
			return true
		}
	}
	return false
}

type fixture struct {
	svc        *Service
	store      *memstore.Store
	emitter    *recordingEmitter
	manager    Actor
	researcher Actor
	colleague  Actor
	study      model.Study
	task       model.Task
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ms := memstore.New()
	logger := zap.NewNop()
	emitter := &recordingEmitter{}
	dispatcher := notify.NewDispatcher(ms.Notifications(), emitter, nil, logger)
	svc := NewService(ms, progress.NewEngine(logger), dispatcher, emitter, logger)

	manager := ms.SeedUser(model.User{Name: "morgan", Role: "manager", Active: true})
	researcher := ms.SeedUser(model.User{Name: "riley", Role: "researcher", Active: true})
	colleague := ms.SeedUser(model.User{Name: "casey", Role: "researcher", Active: true})

	project := ms.SeedProject(model.Project{Title: "cohort-a"})
	study := ms.SeedStudy(model.Study{ProjectID: project.ID, Title: "baseline"})
	task := ms.SeedTask(model.Task{
		Title:        "collect samples",
		StudyID:      &study.ID,
		AssignedToID: &researcher.ID,
		CreatedByID:  manager.ID,
	})
	// A second open task so completion never drives the study to 100%.
	ms.SeedTask(model.Task{
		Title:        "analyze samples",
		StudyID:      &study.ID,
		AssignedToID: &colleague.ID,
		CreatedByID:  manager.ID,
	})

	return &fixture{
		svc:        svc,
		store:      ms,
		emitter:    emitter,
		manager:    Actor{ID: manager.ID, Role: rbac.RoleManager},
		researcher: Actor{ID: researcher.ID, Role: rbac.RoleResearcher},
		colleague:  Actor{ID: colleague.ID, Role: rbac.RoleResearcher},
		study:      study,
		task:       task,
	}
}

// ─── Request creation ───

func TestRequestCompletion_CreatesPendingRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestCompletion(ctx, f.task.ID, f.researcher, "done early")
	if err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}
	if req.Status != model.RequestStatusPending {
		t.Errorf("status = %q, want pending", req.Status)
	}
	if req.Kind != model.RequestKindCompletion {
		t.Errorf("kind = %q, want completion", req.Kind)
	}
	if req.Notes != "done early" {
		t.Errorf("notes = %q", req.Notes)
	}

	task, err := f.store.Tasks().GetByID(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if task.Status != model.TaskStatusPending {
		t.Errorf("task status changed to %q before review", task.Status)
	}

	ns, err := f.store.Notifications().ListByUser(ctx, f.manager.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(ns) != 1 || ns[0].Type != model.NotificationRequestCreated {
		t.Errorf("manager notifications = %+v, want one task_request_created", ns)
	}
	if !f.emitter.has(events.TaskRequestCreated) {
		t.Error("task-request:created event not emitted")
	}
}

func TestRequestCompletion_RejectsNonAssignee(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestCompletion(context.Background(), f.task.ID, f.colleague, "")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestRequestCompletion_RejectsClosedTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Complete(ctx, f.task.ID, f.manager); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	_, err := f.svc.RequestCompletion(ctx, f.task.ID, f.researcher, "")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestRequestReassignment_ValidatesTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inactive := f.store.SeedUser(model.User{Name: "drew", Role: "researcher", Active: false})

	cases := []struct {
		name     string
		targetID int
	}{
		{"missing target", 9999},
		{"inactive target", inactive.ID},
		{"manager target", f.manager.ID},
		{"self target", f.researcher.ID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.RequestReassignment(ctx, f.task.ID, f.researcher, tc.targetID, "")
			if !apperr.IsKind(err, apperr.KindValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
}

// ─── Review: approve ───

func TestApprove_CompletionCompletesTaskAndRecomputes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestCompletion(ctx, f.task.ID, f.researcher, "")
	if err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}

	task, reviewed, err := f.svc.Approve(ctx, req.ID, f.manager)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if task.Status != model.TaskStatusCompleted {
		t.Errorf("task status = %q, want completed", task.Status)
	}
	if task.CompletedByID == nil || *task.CompletedByID != f.manager.ID {
		t.Errorf("completed_by_id = %v, want reviewer %d", task.CompletedByID, f.manager.ID)
	}
	if task.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if reviewed.Status != model.RequestStatusApproved {
		t.Errorf("request status = %q, want approved", reviewed.Status)
	}
	if reviewed.ReviewedByID == nil || *reviewed.ReviewedByID != f.manager.ID {
		t.Errorf("reviewed_by_id = %v", reviewed.ReviewedByID)
	}

	// 1 of 2 study tasks completed.
	study, err := f.store.Studies().GetByID(ctx, f.study.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if study.Progress != 50.00 {
		t.Errorf("study progress = %v, want 50.00", study.Progress)
	}

	ns, err := f.store.Notifications().ListByUser(ctx, f.researcher.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(ns) != 1 || ns[0].Type != model.NotificationRequestApproved {
		t.Errorf("requester notifications = %+v, want one task_request_approved", ns)
	}
	if !f.emitter.has(events.TaskCompleted) {
		t.Error("task:completed event not emitted")
	}
}

func TestApprove_ReassignmentChangesAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestReassignment(ctx, f.task.ID, f.researcher, f.colleague.ID, "overloaded")
	if err != nil {
		t.Fatalf("RequestReassignment: %v", err)
	}

	task, _, err := f.svc.Approve(ctx, req.ID, f.manager)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if task.AssignedToID == nil || *task.AssignedToID != f.colleague.ID {
		t.Errorf("assigned_to_id = %v, want %d", task.AssignedToID, f.colleague.ID)
	}
	if task.Status != model.TaskStatusPending {
		t.Errorf("task status = %q, reassignment must not complete", task.Status)
	}

	ns, err := f.store.Notifications().ListByUser(ctx, f.colleague.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(ns) != 1 || ns[0].Type != model.NotificationTaskAssigned {
		t.Errorf("new assignee notifications = %+v, want one task_assigned", ns)
	}
}

func TestApprove_ReassignmentOfClosedTaskIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestReassignment(ctx, f.task.ID, f.researcher, f.colleague.ID, "")
	if err != nil {
		t.Fatalf("RequestReassignment: %v", err)
	}
	if _, err := f.svc.Complete(ctx, f.task.ID, f.manager); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if _, _, err := f.svc.Approve(ctx, req.ID, f.manager); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("Approve err = %v, want conflict", err)
	}

	task, err := f.store.Tasks().GetByID(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if task.AssignedToID == nil || *task.AssignedToID != f.researcher.ID {
		t.Errorf("assigned_to_id = %v, closed task must not change hands", task.AssignedToID)
	}
	got, err := f.store.Requests().GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.RequestStatusPending {
		t.Errorf("request status = %q, conflicted review must not finalize it", got.Status)
	}
}

func TestApprove_RequiresReviewerRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestCompletion(ctx, f.task.ID, f.researcher, "")
	if err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}
	if _, _, err := f.svc.Approve(ctx, req.ID, f.researcher); !apperr.IsKind(err, apperr.KindPermission) {
		t.Fatalf("err = %v, want permission", err)
	}

	got, err := f.store.Requests().GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.RequestStatusPending {
		t.Errorf("request status = %q after denied review", got.Status)
	}
}

func TestApprove_NonPendingIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestCompletion(ctx, f.task.ID, f.researcher, "")
	if err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}
	if _, _, err := f.svc.Approve(ctx, req.ID, f.manager); err != nil {
		t.Fatalf("first Approve: %v", err)
	}
	if _, _, err := f.svc.Approve(ctx, req.ID, f.manager); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("second Approve err = %v, want conflict", err)
	}
	if _, err := f.svc.Reject(ctx, req.ID, f.manager, "too late"); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("Reject after approve err = %v, want conflict", err)
	}
}

func TestApprove_ConcurrentReviewsSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestCompletion(ctx, f.task.ID, f.researcher, "")
	if err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}

	const reviewers = 8
	errs := make(chan error, reviewers)
	var wg sync.WaitGroup
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.Approve(ctx, req.ID, f.manager)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case apperr.IsKind(err, apperr.KindConflict):
			conflicts++
		default:
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if wins != 1 || conflicts != reviewers-1 {
		t.Fatalf("wins = %d, conflicts = %d, want exactly one winner", wins, conflicts)
	}

	task, err := f.store.Tasks().GetByID(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if task.Status != model.TaskStatusCompleted {
		t.Errorf("task status = %q", task.Status)
	}
}

func TestApprove_SiblingRequestStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	completion, err := f.svc.RequestCompletion(ctx, f.task.ID, f.researcher, "")
	if err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}
	sibling, err := f.svc.RequestReassignment(ctx, f.task.ID, f.researcher, f.colleague.ID, "")
	if err != nil {
		t.Fatalf("RequestReassignment: %v", err)
	}

	if _, _, err := f.svc.Approve(ctx, completion.ID, f.manager); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// Review finalizes only the reviewed row; the sibling stays pending and
	// fails on its own merits when someone reviews it later.
	got, err := f.store.Requests().GetByID(ctx, sibling.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.RequestStatusPending {
		t.Errorf("sibling status = %q, want pending", got.Status)
	}
	if _, _, err := f.svc.Approve(ctx, sibling.ID, f.manager); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("sibling Approve err = %v, want conflict on closed task", err)
	}
}

func TestApprove_ConcurrentSiblingCompletionsSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Two pending completion requests for the same task; the race loser must
	// fail on the task state, not corrupt it.
	first, err := f.svc.RequestCompletion(ctx, f.task.ID, f.researcher, "")
	if err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}
	second, err := f.svc.RequestCompletion(ctx, f.task.ID, f.researcher, "")
	if err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []int{first.ID, second.ID} {
		wg.Add(1)
		go func(requestID int) {
			defer wg.Done()
			_, _, err := f.svc.Approve(ctx, requestID, f.manager)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case apperr.IsKind(err, apperr.KindConflict):
			conflicts++
		default:
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("wins = %d, conflicts = %d, want exactly one of each", wins, conflicts)
	}

	task, err := f.store.Tasks().GetByID(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if task.Status != model.TaskStatusCompleted {
		t.Errorf("task status = %q", task.Status)
	}
	study, err := f.store.Studies().GetByID(ctx, f.study.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if study.Progress != 50.00 {
		t.Errorf("study progress = %v, recompute ran more than once or not at all", study.Progress)
	}
}

// ─── Review: reject ───

func TestReject_LeavesTaskUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.RequestCompletion(ctx, f.task.ID, f.researcher, "")
	if err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}
	before, err := f.store.Tasks().GetByID(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	rejected, err := f.svc.Reject(ctx, req.ID, f.manager, "needs verification")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != model.RequestStatusRejected {
		t.Errorf("status = %q, want rejected", rejected.Status)
	}
	if rejected.ReviewerNotes != "needs verification" {
		t.Errorf("reviewer_notes = %q", rejected.ReviewerNotes)
	}

	after, err := f.store.Tasks().GetByID(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("task mutated by rejection:\nbefore %+v\nafter  %+v", before, after)
	}

	study, err := f.store.Studies().GetByID(ctx, f.study.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if study.Progress != 0 {
		t.Errorf("study progress = %v after rejection, want 0", study.Progress)
	}

	ns, err := f.store.Notifications().ListByUser(ctx, f.researcher.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(ns) != 1 || ns[0].Type != model.NotificationRequestRejected {
		t.Errorf("requester notifications = %+v, want one task_request_rejected", ns)
	}
}

// ─── Direct completion ───

func TestComplete_DirectPathRecomputes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.svc.Complete(ctx, f.task.ID, f.manager)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if task.Status != model.TaskStatusCompleted {
		t.Errorf("task status = %q", task.Status)
	}

	study, err := f.store.Studies().GetByID(ctx, f.study.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if study.Progress != 50.00 {
		t.Errorf("study progress = %v, want 50.00", study.Progress)
	}

	if _, err := f.svc.Complete(ctx, f.task.ID, f.manager); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("second Complete err = %v, want conflict", err)
	}
	if _, err := f.svc.Complete(ctx, f.task.ID, f.researcher); !apperr.IsKind(err, apperr.KindPermission) {
		t.Fatalf("researcher Complete err = %v, want permission", err)
	}
}

// ─── Listing ───

func TestList_ScopedByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.RequestCompletion(ctx, f.task.ID, f.researcher, ""); err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}
	colleagueTask := f.store.SeedTask(model.Task{
		Title:        "write up findings",
		StudyID:      &f.study.ID,
		AssignedToID: &f.colleague.ID,
		CreatedByID:  f.manager.ID,
	})
	if _, err := f.svc.RequestCompletion(ctx, colleagueTask.ID, f.colleague, ""); err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}

	all, err := f.svc.List(ctx, f.manager)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("manager sees %d requests, want 2", len(all))
	}

	own, err := f.svc.List(ctx, f.researcher)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(own) != 1 || own[0].RequestedByID != f.researcher.ID {
		t.Errorf("researcher sees %+v, want only own request", own)
	}
}

func TestListByTask_RequestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.RequestCompletion(ctx, f.task.ID, f.researcher, "")
	if err != nil {
		t.Fatalf("RequestCompletion: %v", err)
	}
	if _, err := f.svc.Reject(ctx, first.ID, f.manager, "not yet"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := f.svc.RequestReassignment(ctx, f.task.ID, f.researcher, f.colleague.ID, ""); err != nil {
		t.Fatalf("RequestReassignment: %v", err)
	}

	history, err := f.svc.ListByTask(ctx, f.manager, f.task.ID)
	if err != nil {
		t.Fatalf("ListByTask: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("manager sees %d requests for task, want 2", len(history))
	}

	// A researcher who never touched the task sees an empty history, not an
	// error.
	none, err := f.svc.ListByTask(ctx, f.colleague, f.task.ID)
	if err != nil {
		t.Fatalf("ListByTask: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("colleague sees %d requests, want 0", len(none))
	}

	if _, err := f.svc.ListByTask(ctx, f.manager, 9999); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("missing task err = %v, want not found", err)
	}
}
