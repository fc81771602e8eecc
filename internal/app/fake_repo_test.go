package app

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/hylla/timeboard/internal/domain"
)

type fakeRepo struct {
	mu    sync.Mutex
	tasks map[string]domain.Task
	logs  map[string]domain.TimeLog
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tasks: map[string]domain.Task{},
		logs:  map[string]domain.TimeLog{},
	}
}

func (f *fakeRepo) CreateTask(_ context.Context, t domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = cloneTask(t)
	return nil
}

func (f *fakeRepo) GetTask(_ context.Context, id string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return cloneTask(t), nil
}

func (f *fakeRepo) UpdateTask(_ context.Context, id string, mutate func(*domain.Task) error) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	next := cloneTask(t)
	if err := mutate(&next); err != nil {
		return domain.Task{}, err
	}
	f.tasks[id] = cloneTask(next)
	return next, nil
}

func (f *fakeRepo) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeRepo) ListTasks(_ context.Context, q TaskQuery) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.matchLocked(q)
	logged := f.sumLocked()
	sort.SliceStable(out, func(i, j int) bool {
		if q.Sort == SortLoggedHours && logged[out[i].ID] != logged[out[j].ID] {
			return logged[out[i].ID] > logged[out[j].ID]
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeRepo) CountTasks(_ context.Context, q TaskQuery) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matchLocked(q)), nil
}

func (f *fakeRepo) matchLocked(q TaskQuery) []domain.Task {
	out := []domain.Task{}
	for _, t := range f.tasks {
		if q.IDs != nil && !slices.Contains(q.IDs, t.ID) {
			continue
		}
		if q.ProjectID != "" && t.ProjectID != q.ProjectID {
			continue
		}
		if q.AssigneeID != "" && !slices.Contains(t.AssignedTo, q.AssigneeID) {
			continue
		}
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		if q.Priority != "" && t.Priority != q.Priority {
			continue
		}
		if q.OverdueBefore != nil && (t.Status == domain.StatusCompleted || t.DueDate == nil || !t.DueDate.Before(*q.OverdueBefore)) {
			continue
		}
		if q.DueBetween != nil && (t.DueDate == nil || t.DueDate.Before(q.DueBetween.From) || t.DueDate.After(q.DueBetween.To)) {
			continue
		}
		if q.CreatedBetween != nil && (t.CreatedAt.Before(q.CreatedBetween.From) || t.CreatedAt.After(q.CreatedBetween.To)) {
			continue
		}
		out = append(out, cloneTask(t))
	}
	return out
}

func (f *fakeRepo) CreateTimeLog(_ context.Context, l domain.TimeLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.logs {
		if existing.TaskID == l.TaskID && existing.UserID == l.UserID && existing.Running() {
			return ErrConflict
		}
	}
	f.logs[l.ID] = l
	return nil
}

func (f *fakeRepo) GetTimeLog(_ context.Context, id string) (domain.TimeLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return domain.TimeLog{}, ErrNotFound
	}
	return l, nil
}

func (f *fakeRepo) UpdateTimeLog(_ context.Context, id string, mutate func(*domain.TimeLog) error) (domain.TimeLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return domain.TimeLog{}, ErrNotFound
	}
	if err := mutate(&l); err != nil {
		return domain.TimeLog{}, err
	}
	f.logs[id] = l
	return l, nil
}

func (f *fakeRepo) FindActiveTimeLog(_ context.Context, taskID, userID string) (domain.TimeLog, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.logs {
		if l.TaskID == taskID && l.UserID == userID && l.Running() {
			return l, true, nil
		}
	}
	return domain.TimeLog{}, false, nil
}

func (f *fakeRepo) ListTimeLogsByTask(_ context.Context, taskID string) ([]domain.TimeLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.TimeLog{}
	for _, l := range f.logs {
		if l.TaskID == taskID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

func (f *fakeRepo) ListTimeLogs(_ context.Context, q TimeLogQuery) ([]domain.TimeLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.TimeLog{}
	for _, l := range f.logs {
		if q.UserID != "" && l.UserID != q.UserID {
			continue
		}
		if (q.State == RunningTimeLogs && !l.Running()) || (q.State == ClosedTimeLogs && l.Running()) {
			continue
		}
		if q.StartedBetween != nil && (l.StartTime.Before(q.StartedBetween.From) || l.StartTime.After(q.StartedBetween.To)) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (f *fakeRepo) SumDurations(_ context.Context, taskIDs []string) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sumLocked()
	out := map[string]int64{}
	for _, id := range taskIDs {
		if ms, ok := all[id]; ok {
			out[id] = ms
		}
	}
	return out, nil
}

func (f *fakeRepo) sumLocked() map[string]int64 {
	out := map[string]int64{}
	for _, l := range f.logs {
		if !l.Running() {
			out[l.TaskID] += l.DurationMS
		}
	}
	return out
}

func cloneTask(t domain.Task) domain.Task {
	t.AssignedTo = slices.Clone(t.AssignedTo)
	t.Checklist = slices.Clone(t.Checklist)
	t.Remarks = slices.Clone(t.Remarks)
	t.Comments = slices.Clone(t.Comments)
	t.Dependencies = slices.Clone(t.Dependencies)
	t.Attachments = slices.Clone(t.Attachments)
	return t
}

// recordingPublisher captures published notifications.
type recordingPublisher struct {
	mu   sync.Mutex
	sent []Notification
}

func (p *recordingPublisher) Publish(n Notification) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return true
}

func (p *recordingPublisher) recipients() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, n := range p.sent {
		out = append(out, n.UserID)
	}
	return out
}
