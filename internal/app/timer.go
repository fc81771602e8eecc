package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/timeboard/internal/domain"
)

// TimeLogList is a task's time logs, newest start first, with their closed-log total.
type TimeLogList struct {
	Logs            []domain.TimeLog `json:"logs"`
	TotalDurationMS int64            `json:"totalDurationMs"`
}

// StartTimer opens a running log for the caller on taskID.
func (s *Service) StartTimer(ctx context.Context, taskID string) (domain.TimeLog, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return domain.TimeLog{}, err
	}
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return domain.TimeLog{}, err
	}
	if err := Authorize(caller, taskResource(task), ActionTrackTime).Err(); err != nil {
		return domain.TimeLog{}, err
	}

	log, err := domain.NewTimeLog(s.idGen(), task.ID, caller.ID, s.clock())
	if err != nil {
		return domain.TimeLog{}, err
	}
	if err := s.logs.CreateTimeLog(ctx, log); err != nil {
		if errors.Is(err, ErrConflict) {
			return domain.TimeLog{}, fmt.Errorf("%w: you already have an active timer for this task, stop it first", ErrConflict)
		}
		return domain.TimeLog{}, err
	}
	s.logger.Debug("timer started", "task_id", task.ID, "user_id", caller.ID, "time_log_id", log.ID)
	return log, nil
}

// StopTimer closes a running log. Checks run in order: existence, task
// membership, ownership, then running state, all inside one store write.
func (s *Service) StopTimer(ctx context.Context, taskID, timeLogID string) (domain.TimeLog, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return domain.TimeLog{}, err
	}
	now := s.clock()
	log, err := s.logs.UpdateTimeLog(ctx, timeLogID, func(log *domain.TimeLog) error {
		if log.TaskID != taskID {
			return fmt.Errorf("%w: time log does not belong to task %q", ErrMismatch, taskID)
		}
		if err := Authorize(caller, Resource{OwnerID: log.UserID}, ActionStopTimer).Err(); err != nil {
			return err
		}
		if err := log.Stop(now); err != nil {
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return nil
	})
	if err != nil {
		return domain.TimeLog{}, err
	}
	s.logger.Debug("timer stopped", "task_id", taskID, "user_id", log.UserID, "duration_ms", log.DurationMS)
	return log, nil
}

// GetActiveTimer returns the caller's running log on taskID, if any.
func (s *Service) GetActiveTimer(ctx context.Context, taskID string) (domain.TimeLog, bool, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return domain.TimeLog{}, false, err
	}
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return domain.TimeLog{}, false, err
	}
	if err := Authorize(caller, taskResource(task), ActionTrackTime).Err(); err != nil {
		return domain.TimeLog{}, false, err
	}
	return s.logs.FindActiveTimeLog(ctx, task.ID, caller.ID)
}

// ListTimeLogsForTask returns every log recorded against a task that still resolves.
// Running logs contribute nothing to the total.
func (s *Service) ListTimeLogsForTask(ctx context.Context, taskID string) (TimeLogList, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return TimeLogList{}, err
	}
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return TimeLogList{}, err
	}
	if err := Authorize(caller, taskResource(task), ActionViewTask).Err(); err != nil {
		return TimeLogList{}, err
	}
	logs, err := s.logs.ListTimeLogsByTask(ctx, task.ID)
	if err != nil {
		return TimeLogList{}, err
	}
	out := TimeLogList{Logs: logs}
	for _, log := range logs {
		if !log.Running() {
			out.TotalDurationMS += log.DurationMS
		}
	}
	return out, nil
}

// GetTimeLog returns one log by id to its owner or an admin, even when its task was deleted.
func (s *Service) GetTimeLog(ctx context.Context, timeLogID string) (domain.TimeLog, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return domain.TimeLog{}, err
	}
	log, err := s.logs.GetTimeLog(ctx, timeLogID)
	if err != nil {
		return domain.TimeLog{}, err
	}
	if err := Authorize(caller, Resource{OwnerID: log.UserID}, ActionViewTimeLog).Err(); err != nil {
		return domain.TimeLog{}, err
	}
	return log, nil
}

// TimeLogTask is the task display data attached to a time log entry.
type TimeLogTask struct {
	ID                      string          `json:"id"`
	ProjectID               string          `json:"projectId"`
	Title                   string          `json:"title"`
	Status                  domain.Status   `json:"status"`
	Priority                domain.Priority `json:"priority"`
	Progress                int             `json:"progress"`
	DueDate                 *time.Time      `json:"dueDate,omitempty"`
	ChecklistTotal          int             `json:"checklistTotal"`
	CompletedChecklistCount int             `json:"completedChecklistCount"`
	Assignees               []UserProfile   `json:"assignees"`
}

// TimeLogEntry is a time log with its task and user resolved for display.
// Task is nil once the task has been deleted.
type TimeLogEntry struct {
	domain.TimeLog
	Task *TimeLogTask `json:"task"`
	User *UserProfile `json:"user,omitempty"`
}

// ListActiveTimeLogs returns every running log across users. Admin only.
func (s *Service) ListActiveTimeLogs(ctx context.Context) ([]TimeLogEntry, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, Resource{}, ActionViewAllTimeLogs).Err(); err != nil {
		return nil, err
	}
	logs, err := s.logs.ListTimeLogs(ctx, TimeLogQuery{State: RunningTimeLogs})
	if err != nil {
		return nil, err
	}
	return s.describeTimeLogs(ctx, logs)
}

// ListTimeLogsByDay returns userID's closed logs that started on day (YYYY-MM-DD)
// in the reference zone, oldest first. The user or an admin may read them.
func (s *Service) ListTimeLogsByDay(ctx context.Context, userID, day string) ([]TimeLogEntry, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if err := Authorize(caller, Resource{OwnerID: userID}, ActionViewTimeLog).Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	bounds, err := s.dayRange(day)
	if err != nil {
		return nil, err
	}
	logs, err := s.logs.ListTimeLogs(ctx, TimeLogQuery{
		UserID:         userID,
		State:          ClosedTimeLogs,
		StartedBetween: &bounds,
	})
	if err != nil {
		return nil, err
	}
	return s.describeTimeLogs(ctx, logs)
}

// ListAllTimeLogsByDay returns every user's closed logs that started on day,
// ordered by user and then start time. Admin only.
func (s *Service) ListAllTimeLogsByDay(ctx context.Context, day string) ([]TimeLogEntry, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, Resource{}, ActionViewAllTimeLogs).Err(); err != nil {
		return nil, err
	}
	bounds, err := s.dayRange(day)
	if err != nil {
		return nil, err
	}
	logs, err := s.logs.ListTimeLogs(ctx, TimeLogQuery{
		State:          ClosedTimeLogs,
		StartedBetween: &bounds,
	})
	if err != nil {
		return nil, err
	}
	return s.describeTimeLogs(ctx, logs)
}

func (s *Service) dayRange(day string) (TimeRange, error) {
	if strings.TrimSpace(day) == "" {
		return TimeRange{}, fmt.Errorf("%w: a date is required", domain.ErrInvalidDate)
	}
	from, to, err := domain.DayBounds(day, s.loc)
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: date must be %s", err, domain.DayLayout)
	}
	return TimeRange{From: from, To: to}, nil
}

// describeTimeLogs resolves each log's task and user. Deleted tasks and unknown
// users leave their display fields empty.
func (s *Service) describeTimeLogs(ctx context.Context, logs []domain.TimeLog) ([]TimeLogEntry, error) {
	out := make([]TimeLogEntry, 0, len(logs))
	if len(logs) == 0 {
		return out, nil
	}
	taskIDs := []string{}
	userIDs := []string{}
	for _, log := range logs {
		if !slices.Contains(taskIDs, log.TaskID) {
			taskIDs = append(taskIDs, log.TaskID)
		}
		userIDs = append(userIDs, log.UserID)
	}
	tasks, err := s.tasks.ListTasks(ctx, TaskQuery{IDs: taskIDs})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
		userIDs = append(userIDs, task.AssignedTo...)
	}
	profiles := s.enricher().lookupUsers(ctx, userIDs)

	for _, log := range logs {
		entry := TimeLogEntry{TimeLog: log}
		if task, ok := byID[log.TaskID]; ok {
			entry.Task = &TimeLogTask{
				ID:                      task.ID,
				ProjectID:               task.ProjectID,
				Title:                   task.Title,
				Status:                  task.Status,
				Priority:                task.Priority,
				Progress:                task.Progress,
				DueDate:                 task.DueDate,
				ChecklistTotal:          len(task.Checklist),
				CompletedChecklistCount: task.CompletedChecklistCount(),
				Assignees:               []UserProfile{},
			}
			for _, id := range task.AssignedTo {
				if p, ok := profiles[id]; ok {
					entry.Task.Assignees = append(entry.Task.Assignees, p)
				}
			}
		}
		if p, ok := profiles[log.UserID]; ok {
			entry.User = &p
		}
		out = append(out, entry)
	}
	return out, nil
}
