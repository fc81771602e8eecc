package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/timeboard/internal/domain"
	"golang.org/x/sync/errgroup"
)

// recentTaskLimit bounds the dashboard's recent-task list.
const recentTaskLimit = 10

// allAssignees is the admin sentinel meaning "no assignee filter".
const allAssignees = "all"

// Aggregator answers read-only listing and dashboard queries.
type Aggregator struct {
	tasks  TaskStore
	enrich enricher
}

// NewAggregator constructs an aggregator over the given stores.
func NewAggregator(tasks TaskStore, logs TimeLogStore, clock Clock, cfg ServiceConfig) *Aggregator {
	if clock == nil {
		clock = time.Now
	}
	cfg = normalizeServiceConfig(cfg)
	return &Aggregator{
		tasks: tasks,
		enrich: enricher{
			logs:      logs,
			directory: cfg.Directory,
			clock:     clock,
			loc:       cfg.Location,
			logger:    cfg.Logger,
		},
	}
}

// ListTasksFilter holds optional listing filters. Day filters use YYYY-MM-DD.
type ListTasksFilter struct {
	ProjectID      string
	AssignedUserID string
	Status         domain.Status
	Overdue        bool
	DueDate        string
	CreatedDate    string
	SortBy         TaskSort
}

// StatusSummary counts tasks per status tab over the listing scope.
type StatusSummary struct {
	All        int `json:"all"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
}

// TaskList is a filtered listing plus its scope-wide status summary.
type TaskList struct {
	Tasks   []TaskView    `json:"tasks"`
	Summary StatusSummary `json:"statusSummary"`
}

// ListTasks returns tasks visible to the caller under filter. Members only ever
// see their own assignments. Overdue replaces both status and due-day filters.
func (a *Aggregator) ListTasks(ctx context.Context, filter ListTasksFilter) (TaskList, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return TaskList{}, err
	}
	scope := a.scopeQuery(caller, filter.ProjectID, filter.AssignedUserID)

	query := scope
	switch filter.SortBy {
	case "", SortRecency:
		query.Sort = SortRecency
	case SortLoggedHours:
		query.Sort = SortLoggedHours
	default:
		return TaskList{}, fmt.Errorf("%w: unsupported sort %q", domain.ErrValidation, filter.SortBy)
	}
	if filter.Overdue {
		cutoff := a.startOfToday()
		query.OverdueBefore = &cutoff
	} else {
		query.Status = filter.Status
		if strings.TrimSpace(filter.DueDate) != "" {
			from, to, err := domain.DayBounds(filter.DueDate, a.enrich.loc)
			if err != nil {
				return TaskList{}, err
			}
			query.DueBetween = &TimeRange{From: from, To: to}
		}
	}
	if strings.TrimSpace(filter.CreatedDate) != "" {
		from, to, err := domain.DayBounds(filter.CreatedDate, a.enrich.loc)
		if err != nil {
			return TaskList{}, err
		}
		query.CreatedBetween = &TimeRange{From: from, To: to}
	}

	tasks, err := a.tasks.ListTasks(ctx, query)
	if err != nil {
		return TaskList{}, err
	}
	views, err := a.enrich.enrich(ctx, tasks, caller.IsAdmin())
	if err != nil {
		return TaskList{}, err
	}
	summary, err := a.statusSummary(ctx, scope)
	if err != nil {
		return TaskList{}, err
	}
	return TaskList{Tasks: views, Summary: summary}, nil
}

// ListTasksForUser lists one user's assignments for an admin, optionally by status.
func (a *Aggregator) ListTasksForUser(ctx context.Context, userID string, status domain.Status) (TaskList, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return TaskList{}, err
	}
	if err := Authorize(caller, Resource{}, ActionListUserTasks).Err(); err != nil {
		return TaskList{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" || userID == allAssignees {
		return TaskList{}, domain.ErrInvalidID
	}
	return a.ListTasks(ctx, ListTasksFilter{AssignedUserID: userID, Status: status})
}

// statusSummary counts each tab concurrently over scope.
func (a *Aggregator) statusSummary(ctx context.Context, scope TaskQuery) (StatusSummary, error) {
	var out StatusSummary
	cutoff := a.startOfToday()
	g, gctx := errgroup.WithContext(ctx)
	a.countInto(gctx, g, &out.All, scope)
	a.countInto(gctx, g, &out.Pending, withStatus(scope, domain.StatusPending))
	a.countInto(gctx, g, &out.InProgress, withStatus(scope, domain.StatusInProgress))
	a.countInto(gctx, g, &out.Completed, withStatus(scope, domain.StatusCompleted))
	a.countInto(gctx, g, &out.Overdue, withOverdue(scope, cutoff))
	if err := g.Wait(); err != nil {
		return StatusSummary{}, err
	}
	return out, nil
}

// RecentTask is the trimmed task shape used on the dashboard.
type RecentTask struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Status    domain.Status   `json:"status"`
	Priority  domain.Priority `json:"priority"`
	DueDate   *time.Time      `json:"dueDate,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// DashboardStats summarizes the caller's scope.
type DashboardStats struct {
	TotalTasks      int `json:"totalTasks"`
	PendingTasks    int `json:"pendingTasks"`
	InProgressTasks int `json:"inProgressTasks"`
	CompletedTasks  int `json:"completedTasks"`
	OverdueTasks    int `json:"overdueTasks"`

	// StatusDistribution is keyed by space-free status plus "All".
	StatusDistribution map[string]int `json:"statusDistribution"`
	// PriorityDistribution is zero-filled for every priority.
	PriorityDistribution map[string]int `json:"priorityDistribution"`
	RecentTasks          []RecentTask   `json:"recentTasks"`
	TotalLoggedHours     float64        `json:"totalLoggedHours"`
}

// DashboardStats computes counts, distributions, recent tasks, and logged hours
// over the caller's role scope, optionally narrowed to one project.
func (a *Aggregator) DashboardStats(ctx context.Context, projectID string) (DashboardStats, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return DashboardStats{}, err
	}
	scope := a.scopeQuery(caller, projectID, "")

	var (
		out                 DashboardStats
		low, medium, high   int
		recent, scopedTasks []domain.Task
	)
	cutoff := a.startOfToday()
	g, gctx := errgroup.WithContext(ctx)
	a.countInto(gctx, g, &out.TotalTasks, scope)
	a.countInto(gctx, g, &out.PendingTasks, withStatus(scope, domain.StatusPending))
	a.countInto(gctx, g, &out.InProgressTasks, withStatus(scope, domain.StatusInProgress))
	a.countInto(gctx, g, &out.CompletedTasks, withStatus(scope, domain.StatusCompleted))
	a.countInto(gctx, g, &out.OverdueTasks, withOverdue(scope, cutoff))
	a.countInto(gctx, g, &low, withPriority(scope, domain.PriorityLow))
	a.countInto(gctx, g, &medium, withPriority(scope, domain.PriorityMedium))
	a.countInto(gctx, g, &high, withPriority(scope, domain.PriorityHigh))
	g.Go(func() error {
		q := scope
		q.Sort = SortRecency
		q.Limit = recentTaskLimit
		var err error
		recent, err = a.tasks.ListTasks(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		scopedTasks, err = a.tasks.ListTasks(gctx, scope)
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardStats{}, err
	}

	out.StatusDistribution = map[string]int{
		domain.StatusPending.Key():    out.PendingTasks,
		domain.StatusInProgress.Key(): out.InProgressTasks,
		domain.StatusCompleted.Key():  out.CompletedTasks,
		"All":                         out.TotalTasks,
	}
	out.PriorityDistribution = map[string]int{
		string(domain.PriorityLow):    low,
		string(domain.PriorityMedium): medium,
		string(domain.PriorityHigh):   high,
	}
	out.RecentTasks = make([]RecentTask, 0, len(recent))
	for _, task := range recent {
		out.RecentTasks = append(out.RecentTasks, RecentTask{
			ID:        task.ID,
			Title:     task.Title,
			Status:    task.Status,
			Priority:  task.Priority,
			DueDate:   task.DueDate,
			CreatedAt: task.CreatedAt,
		})
	}

	if len(scopedTasks) > 0 {
		ids := make([]string, 0, len(scopedTasks))
		for _, task := range scopedTasks {
			ids = append(ids, task.ID)
		}
		totals, err := a.enrich.logs.SumDurations(ctx, ids)
		if err != nil {
			return DashboardStats{}, err
		}
		var totalMS int64
		for _, ms := range totals {
			totalMS += ms
		}
		out.TotalLoggedHours = float64(totalMS) / float64(time.Hour/time.Millisecond)
	}
	return out, nil
}

// scopeQuery applies role visibility and the project filter. Admins may narrow
// to one assignee; members are pinned to themselves.
func (a *Aggregator) scopeQuery(caller Caller, projectID, assignedUserID string) TaskQuery {
	q := TaskQuery{ProjectID: strings.TrimSpace(projectID)}
	if !caller.IsAdmin() {
		q.AssigneeID = caller.ID
		return q
	}
	assignedUserID = strings.TrimSpace(assignedUserID)
	if assignedUserID != "" && assignedUserID != allAssignees {
		q.AssigneeID = assignedUserID
	}
	return q
}

func (a *Aggregator) countInto(ctx context.Context, g *errgroup.Group, dst *int, q TaskQuery) {
	g.Go(func() error {
		n, err := a.tasks.CountTasks(ctx, q)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	})
}

func (a *Aggregator) startOfToday() time.Time {
	return domain.StartOfDay(a.enrich.clock(), a.enrich.loc)
}

func withStatus(q TaskQuery, status domain.Status) TaskQuery {
	q.Status = status
	return q
}

func withPriority(q TaskQuery, priority domain.Priority) TaskQuery {
	q.Priority = priority
	return q
}

func withOverdue(q TaskQuery, cutoff time.Time) TaskQuery {
	q.OverdueBefore = &cutoff
	return q
}
