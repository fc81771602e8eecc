package app

import (
	"context"
	"time"

	"github.com/hylla/timeboard/internal/domain"
)

// TaskView is a task plus the fields derived at read time.
type TaskView struct {
	domain.Task
	CompletedChecklistCount int   `json:"completedChecklistCount"`
	IsOverdue               bool  `json:"isOverdue"`
	TotalLoggedMS           int64 `json:"totalLoggedMs"`
	// Assignees holds display data for assignees the directory could resolve.
	Assignees []UserProfile `json:"assignees,omitempty"`
}

// enricher derives read-time fields shared by Service and Aggregator.
type enricher struct {
	logs      TimeLogStore
	directory Directory
	clock     Clock
	loc       *time.Location
	logger    Logger
}

// enrich builds views in input order. Remarks are dropped unless keepRemarks is set.
func (e enricher) enrich(ctx context.Context, tasks []domain.Task, keepRemarks bool) ([]TaskView, error) {
	ids := make([]string, 0, len(tasks))
	userIDs := []string{}
	for _, task := range tasks {
		ids = append(ids, task.ID)
		userIDs = append(userIDs, task.AssignedTo...)
	}

	totals := map[string]int64{}
	if len(ids) > 0 {
		var err error
		totals, err = e.logs.SumDurations(ctx, ids)
		if err != nil {
			return nil, err
		}
	}
	profiles := e.lookupUsers(ctx, userIDs)

	now := e.clock()
	out := make([]TaskView, 0, len(tasks))
	for _, task := range tasks {
		if !keepRemarks {
			task.Remarks = nil
		}
		view := TaskView{
			Task:                    task,
			CompletedChecklistCount: task.CompletedChecklistCount(),
			IsOverdue:               task.IsOverdue(now, e.loc),
			TotalLoggedMS:           totals[task.ID],
			Assignees:               []UserProfile{},
		}
		for _, id := range task.AssignedTo {
			if p, ok := profiles[id]; ok {
				view.Assignees = append(view.Assignees, p)
			}
		}
		out = append(out, view)
	}
	return out, nil
}

// lookupUsers treats directory failures as absent display data.
func (e enricher) lookupUsers(ctx context.Context, ids []string) map[string]UserProfile {
	if e.directory == nil || len(ids) == 0 {
		return nil
	}
	profiles, err := e.directory.LookupUsers(ctx, ids)
	if err != nil {
		e.logger.Warn("user directory lookup failed", "err", err)
		return nil
	}
	return profiles
}
