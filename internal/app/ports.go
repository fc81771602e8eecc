package app

import (
	"context"
	"time"

	"github.com/hylla/timeboard/internal/domain"
)

// TaskSort selects list ordering.
type TaskSort string

// TaskSort values.
const (
	SortRecency     TaskSort = "recency"
	SortLoggedHours TaskSort = "totalLoggedHours"
)

// TimeRange is a closed [From, To] interval.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// TaskQuery is a set of optional predicates over tasks. Zero-valued fields do not
// filter; a non-nil IDs restricts matches to those ids, so an empty one matches nothing.
type TaskQuery struct {
	IDs        []string
	ProjectID  string
	AssigneeID string
	Status     domain.Status
	Priority   domain.Priority
	// OverdueBefore keeps incomplete tasks whose due date is strictly before the instant.
	OverdueBefore  *time.Time
	DueBetween     *TimeRange
	CreatedBetween *TimeRange
	Sort           TaskSort
	Limit          int
}

// TimeLogState selects logs by running state.
type TimeLogState int

// TimeLogState values.
const (
	AnyTimeLogs TimeLogState = iota
	RunningTimeLogs
	ClosedTimeLogs
)

// TimeLogQuery is a set of optional predicates over time logs. Zero-valued fields do not filter.
type TimeLogQuery struct {
	UserID         string
	State          TimeLogState
	StartedBetween *TimeRange
}

// TaskStore persists tasks. It holds no business rules.
type TaskStore interface {
	CreateTask(context.Context, domain.Task) error
	GetTask(context.Context, string) (domain.Task, error)
	// UpdateTask loads the task, applies mutate, and persists the result as one atomic unit.
	// An error from mutate aborts the write and is returned unchanged.
	UpdateTask(ctx context.Context, id string, mutate func(*domain.Task) error) (domain.Task, error)
	DeleteTask(context.Context, string) error
	ListTasks(context.Context, TaskQuery) ([]domain.Task, error)
	CountTasks(context.Context, TaskQuery) (int, error)
}

// TimeLogStore persists time logs.
type TimeLogStore interface {
	// CreateTimeLog inserts a running log, failing with ErrConflict when the
	// (task, user) pair already has one. The check and insert are a single conditional write.
	CreateTimeLog(context.Context, domain.TimeLog) error
	GetTimeLog(context.Context, string) (domain.TimeLog, error)
	UpdateTimeLog(ctx context.Context, id string, mutate func(*domain.TimeLog) error) (domain.TimeLog, error)
	FindActiveTimeLog(ctx context.Context, taskID, userID string) (domain.TimeLog, bool, error)
	// ListTimeLogsByTask orders newest start first.
	ListTimeLogsByTask(context.Context, string) ([]domain.TimeLog, error)
	// ListTimeLogs orders by user id, then start time ascending.
	ListTimeLogs(context.Context, TimeLogQuery) ([]domain.TimeLog, error)
	// SumDurations totals closed-log durations per task id. Tasks without logs are omitted.
	SumDurations(ctx context.Context, taskIDs []string) (map[string]int64, error)
}
