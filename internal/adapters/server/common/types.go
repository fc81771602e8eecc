// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"

	"github.com/hylla/timeboard/internal/app"
	"github.com/hylla/timeboard/internal/domain"
)

// TaskService is the lifecycle surface both transports call.
type TaskService interface {
	CreateTask(context.Context, app.CreateTaskInput) (domain.Task, error)
	GetTask(context.Context, string) (app.TaskView, error)
	UpdateTask(context.Context, string, domain.TaskPatch) (domain.Task, error)
	DeleteTask(context.Context, string) error
	SetStatus(context.Context, string, domain.Status) (domain.Task, error)
	UpdateChecklist(context.Context, string, []domain.ChecklistItem) (domain.Task, error)
	AddRemark(ctx context.Context, taskID, text string) (domain.Task, error)
	AddComment(ctx context.Context, taskID, text string) (domain.Task, error)
}

// TimerService is the time-tracking surface.
type TimerService interface {
	StartTimer(ctx context.Context, taskID string) (domain.TimeLog, error)
	StopTimer(ctx context.Context, taskID, timeLogID string) (domain.TimeLog, error)
	GetActiveTimer(ctx context.Context, taskID string) (domain.TimeLog, bool, error)
	ListTimeLogsForTask(ctx context.Context, taskID string) (app.TimeLogList, error)
	GetTimeLog(ctx context.Context, timeLogID string) (domain.TimeLog, error)
	ListActiveTimeLogs(context.Context) ([]app.TimeLogEntry, error)
	ListTimeLogsByDay(ctx context.Context, userID, day string) ([]app.TimeLogEntry, error)
	ListAllTimeLogsByDay(ctx context.Context, day string) ([]app.TimeLogEntry, error)
}

// ReportService is the read-side listing and dashboard surface.
type ReportService interface {
	ListTasks(context.Context, app.ListTasksFilter) (app.TaskList, error)
	ListTasksForUser(ctx context.Context, userID string, status domain.Status) (app.TaskList, error)
	DashboardStats(ctx context.Context, projectID string) (app.DashboardStats, error)
}

// Services bundles the surfaces a transport serves. Nil members disable their routes.
type Services struct {
	Tasks   TaskService
	Timers  TimerService
	Reports ReportService
}

// ActiveTimer is the transport shape for an active-timer lookup.
type ActiveTimer struct {
	Active  bool            `json:"active"`
	TimeLog *domain.TimeLog `json:"timeLog"`
}

// NewActiveTimer wraps a lookup result.
func NewActiveTimer(log domain.TimeLog, ok bool) ActiveTimer {
	if !ok {
		return ActiveTimer{}
	}
	return ActiveTimer{Active: true, TimeLog: &log}
}
