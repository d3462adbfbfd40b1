// Package memstore is the in-memory store.DB used by service tests. A single
// mutex stands in for the database's row locking: transactions serialize on
// it, and a failed transaction restores the pre-transaction snapshot, so the
// loser of a review race observes the winner's committed state exactly as it
// would through SELECT ... FOR UPDATE.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"researchhub/internal/apperr"
	"researchhub/internal/model"
	"researchhub/internal/store"
)

type data struct {
	tasks         map[int]model.Task
	studies       map[int]model.Study
	projects      map[int]model.Project
	requests      map[int]model.TaskRequest
	notifications map[int]model.Notification
	users         map[int]model.User
}

func newData() *data {
	return &data{
		tasks:         map[int]model.Task{},
		studies:       map[int]model.Study{},
		projects:      map[int]model.Project{},
		requests:      map[int]model.TaskRequest{},
		notifications: map[int]model.Notification{},
		users:         map[int]model.User{},
	}
}

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTask(t model.Task) model.Task {
	t.StudyID = copyIntPtr(t.StudyID)
	t.ProjectID = copyIntPtr(t.ProjectID)
	t.AssignedToID = copyIntPtr(t.AssignedToID)
	t.CompletedAt = copyTimePtr(t.CompletedAt)
	t.CompletedByID = copyIntPtr(t.CompletedByID)
	return t
}

func copyRequest(r model.TaskRequest) model.TaskRequest {
	r.RequestedAssignedToID = copyIntPtr(r.RequestedAssignedToID)
	r.ReviewedByID = copyIntPtr(r.ReviewedByID)
	r.ReviewedAt = copyTimePtr(r.ReviewedAt)
	return r
}

func copyNotification(n model.Notification) model.Notification {
	n.TaskID = copyIntPtr(n.TaskID)
	n.StudyID = copyIntPtr(n.StudyID)
	n.ProjectID = copyIntPtr(n.ProjectID)
	n.RoomID = copyIntPtr(n.RoomID)
	return n
}

func (d *data) clone() *data {
	c := newData()
	for id, t := range d.tasks {
		c.tasks[id] = copyTask(t)
	}
	for id, s := range d.studies {
		c.studies[id] = s
	}
	for id, p := range d.projects {
		c.projects[id] = p
	}
	for id, r := range d.requests {
		c.requests[id] = copyRequest(r)
	}
	for id, n := range d.notifications {
		c.notifications[id] = copyNotification(n)
	}
	for id, u := range d.users {
		c.users[id] = u
	}
	return c
}

// Store implements store.DB in memory.
type Store struct {
	mu  sync.Mutex
	d   *data
	seq int
}

func New() *Store {
	return &Store{d: newData()}
}

func (s *Store) nextID() int {
	s.seq++
	return s.seq
}

// InTx serializes on the store mutex and rolls back to a snapshot when fn
// fails, mirroring the transactional contract of the postgres store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(ctx, &view{s: s, inTx: true}); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

func (s *Store) Tasks() store.TaskStore                 { return &taskView{view{s: s}} }
func (s *Store) Studies() store.StudyStore              { return &studyView{view{s: s}} }
func (s *Store) Projects() store.ProjectStore           { return &projectView{view{s: s}} }
func (s *Store) Requests() store.RequestStore           { return &requestView{view{s: s}} }
func (s *Store) Notifications() store.NotificationStore { return &notificationView{view{s: s}} }
func (s *Store) Users() store.UserStore                 { return &userView{view{s: s}} }

// view is the shared accessor base. Outside a transaction each call locks the
// store; inside one the transaction already holds the lock.
type view struct {
	s    *Store
	inTx bool
}

func (v *view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v *view) Tasks() store.TaskStore                 { return &taskView{*v} }
func (v *view) Studies() store.StudyStore              { return &studyView{*v} }
func (v *view) Projects() store.ProjectStore           { return &projectView{*v} }
func (v *view) Requests() store.RequestStore           { return &requestView{*v} }
func (v *view) Notifications() store.NotificationStore { return &notificationView{*v} }
func (v *view) Users() store.UserStore                 { return &userView{*v} }

// ─── Seeding helpers for tests ──────────────────────────────────────────────

func (s *Store) SeedUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextID()
	}
	s.d.users[u.ID] = u
	return u
}

func (s *Store) SeedProject(p model.Project) model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID()
	}
	s.d.projects[p.ID] = p
	return p
}

func (s *Store) SeedStudy(st model.Study) model.Study {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == 0 {
		st.ID = s.nextID()
	}
	s.d.studies[st.ID] = st
	return st
}

func (s *Store) SeedTask(t model.Task) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.nextID()
	}
	if t.Status == "" {
		t.Status = model.TaskStatusPending
	}
	if t.TaskType == "" {
		if t.StudyID != nil {
			t.TaskType = model.TaskTypeResearch
		} else {
			t.TaskType = model.TaskTypeAdministrative
		}
	}
	s.d.tasks[t.ID] = copyTask(t)
	return t
}

// ─── TaskStore ──────────────────────────────────────────────────────────────

type taskView struct{ view }

func (v *taskView) get(id int) (*model.Task, error) {
	t, ok := v.s.d.tasks[id]
	if !ok {
		return nil, apperr.NotFound("task not found")
	}
	c := copyTask(t)
	return &c, nil
}

func (v *taskView) GetByID(ctx context.Context, id int) (*model.Task, error) {
	defer v.lock()()
	return v.get(id)
}

func (v *taskView) GetByIDForUpdate(ctx context.Context, id int) (*model.Task, error) {
	defer v.lock()()
	return v.get(id)
}

func (v *taskView) CountByStudy(ctx context.Context, studyID int) (int, int, error) {
	defer v.lock()()
	total, completed := 0, 0
	for _, t := range v.s.d.tasks {
		if t.StudyID == nil || *t.StudyID != studyID {
			continue
		}
		total++
		if t.Status == model.TaskStatusCompleted {
			completed++
		}
	}
	return total, completed, nil
}

func (v *taskView) MarkCompleted(ctx context.Context, id, completedByID int, at time.Time) error {
	defer v.lock()()
	t, ok := v.s.d.tasks[id]
	if !ok {
		return apperr.NotFound("task not found")
	}
	t.Status = model.TaskStatusCompleted
	t.CompletedAt = &at
	t.CompletedByID = &completedByID
	t.UpdatedAt = at
	v.s.d.tasks[id] = t
	return nil
}

func (v *taskView) UpdateAssignee(ctx context.Context, id, assignedToID int) error {
	defer v.lock()()
	t, ok := v.s.d.tasks[id]
	if !ok {
		return apperr.NotFound("task not found")
	}
	t.AssignedToID = &assignedToID
	t.UpdatedAt = time.Now()
	v.s.d.tasks[id] = t
	return nil
}

// ─── StudyStore ─────────────────────────────────────────────────────────────

type studyView struct{ view }

func (v *studyView) get(id int) (*model.Study, error) {
	st, ok := v.s.d.studies[id]
	if !ok {
		return nil, apperr.NotFound("study not found")
	}
	return &st, nil
}

func (v *studyView) GetByID(ctx context.Context, id int) (*model.Study, error) {
	defer v.lock()()
	return v.get(id)
}

func (v *studyView) GetByIDForUpdate(ctx context.Context, id int) (*model.Study, error) {
	defer v.lock()()
	return v.get(id)
}

func (v *studyView) UpdateProgress(ctx context.Context, id int, progress float64) error {
	defer v.lock()()
	st, ok := v.s.d.studies[id]
	if !ok {
		return apperr.NotFound("study not found")
	}
	st.Progress = progress
	st.UpdatedAt = time.Now()
	v.s.d.studies[id] = st
	return nil
}

// ─── ProjectStore ───────────────────────────────────────────────────────────

type projectView struct{ view }

func (v *projectView) GetByID(ctx context.Context, id int) (*model.Project, error) {
	defer v.lock()()
	p, ok := v.s.d.projects[id]
	if !ok {
		return nil, apperr.NotFound("project not found")
	}
	return &p, nil
}

func (v *projectView) ListStudyProgress(ctx context.Context, projectID int) ([]float64, error) {
	defer v.lock()()
	ids := []int{}
	for id, st := range v.s.d.studies {
		if st.ProjectID == projectID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	values := make([]float64, 0, len(ids))
	for _, id := range ids {
		values = append(values, v.s.d.studies[id].Progress)
	}
	return values, nil
}

func (v *projectView) UpdateProgress(ctx context.Context, id int, progress float64) error {
	defer v.lock()()
	p, ok := v.s.d.projects[id]
	if !ok {
		return apperr.NotFound("project not found")
	}
	p.Progress = progress
	p.UpdatedAt = time.Now()
	v.s.d.projects[id] = p
	return nil
}

// ─── RequestStore ───────────────────────────────────────────────────────────

type requestView struct{ view }

func (v *requestView) Insert(ctx context.Context, r *model.TaskRequest) (int, error) {
	defer v.lock()()
	r.ID = v.s.nextID()
	r.CreatedAt = time.Now()
	v.s.d.requests[r.ID] = copyRequest(*r)
	return r.ID, nil
}

func (v *requestView) get(id int) (*model.TaskRequest, error) {
	r, ok := v.s.d.requests[id]
	if !ok {
		return nil, apperr.NotFound("task request not found")
	}
	c := copyRequest(r)
	return &c, nil
}

func (v *requestView) GetByID(ctx context.Context, id int) (*model.TaskRequest, error) {
	defer v.lock()()
	return v.get(id)
}

func (v *requestView) GetByIDForUpdate(ctx context.Context, id int) (*model.TaskRequest, error) {
	defer v.lock()()
	return v.get(id)
}

func (v *requestView) MarkReviewed(ctx context.Context, id int, status string, reviewedByID int, at time.Time, reviewerNotes string) error {
	defer v.lock()()
	r, ok := v.s.d.requests[id]
	if !ok {
		return apperr.NotFound("task request not found")
	}
	if r.Status != model.RequestStatusPending {
		return apperr.Conflict("request is not pending")
	}
	r.Status = status
	r.ReviewedByID = &reviewedByID
	r.ReviewedAt = &at
	r.ReviewerNotes = reviewerNotes
	v.s.d.requests[id] = r
	return nil
}

func (v *requestView) list(match func(model.TaskRequest) bool) []model.TaskRequest {
	ids := []int{}
	for id, r := range v.s.d.requests {
		if match(r) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]model.TaskRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyRequest(v.s.d.requests[id]))
	}
	return out
}

func (v *requestView) List(ctx context.Context) ([]model.TaskRequest, error) {
	defer v.lock()()
	return v.list(func(model.TaskRequest) bool { return true }), nil
}

func (v *requestView) ListByRequester(ctx context.Context, userID int) ([]model.TaskRequest, error) {
	defer v.lock()()
	return v.list(func(r model.TaskRequest) bool { return r.RequestedByID == userID }), nil
}

func (v *requestView) ListByTask(ctx context.Context, taskID int) ([]model.TaskRequest, error) {
	defer v.lock()()
	return v.list(func(r model.TaskRequest) bool { return r.TaskID == taskID }), nil
}

// ─── NotificationStore ──────────────────────────────────────────────────────

type notificationView struct{ view }

func (v *notificationView) Insert(ctx context.Context, n *model.Notification) (int, error) {
	defer v.lock()()
	n.ID = v.s.nextID()
	n.CreatedAt = time.Now()
	v.s.d.notifications[n.ID] = copyNotification(*n)
	return n.ID, nil
}

func (v *notificationView) GetByID(ctx context.Context, id int) (*model.Notification, error) {
	defer v.lock()()
	n, ok := v.s.d.notifications[id]
	if !ok {
		return nil, apperr.NotFound("notification not found")
	}
	c := copyNotification(n)
	return &c, nil
}

func (v *notificationView) ListByUser(ctx context.Context, userID int) ([]model.Notification, error) {
	defer v.lock()()
	ids := []int{}
	for id, n := range v.s.d.notifications {
		if n.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	out := make([]model.Notification, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyNotification(v.s.d.notifications[id]))
	}
	return out, nil
}

func (v *notificationView) MarkAsRead(ctx context.Context, id, userID int) error {
	defer v.lock()()
	n, ok := v.s.d.notifications[id]
	if !ok || n.UserID != userID {
		return apperr.NotFound("notification not found")
	}
	n.IsRead = true
	v.s.d.notifications[id] = n
	return nil
}

func (v *notificationView) CountUnread(ctx context.Context, userID int) (int, error) {
	defer v.lock()()
	count := 0
	for _, n := range v.s.d.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// ─── UserStore ──────────────────────────────────────────────────────────────

type userView struct{ view }

func (v *userView) GetByID(ctx context.Context, id int) (*model.User, error) {
	defer v.lock()()
	u, ok := v.s.d.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &u, nil
}
