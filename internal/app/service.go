package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/timeboard/internal/domain"
)

// ServiceConfig holds optional collaborators for Service and Aggregator.
type ServiceConfig struct {
	// Location is the reference zone for day boundaries. Defaults to UTC.
	Location  *time.Location
	Publisher Publisher
	Directory Directory
	Logger    Logger
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service is the task lifecycle engine. It is stateless between calls; every
// operation resolves the caller from context and checks Authorize first.
type Service struct {
	tasks     TaskStore
	logs      TimeLogStore
	idGen     IDGenerator
	clock     Clock
	loc       *time.Location
	publisher Publisher
	directory Directory
	logger    Logger
}

// NewService constructs a lifecycle service.
func NewService(tasks TaskStore, logs TimeLogStore, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	cfg = normalizeServiceConfig(cfg)
	return &Service{
		tasks:     tasks,
		logs:      logs,
		idGen:     idGen,
		clock:     clock,
		loc:       cfg.Location,
		publisher: cfg.Publisher,
		directory: cfg.Directory,
		logger:    cfg.Logger,
	}
}

func normalizeServiceConfig(cfg ServiceConfig) ServiceConfig {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	return cfg
}

// CreateTaskInput holds input values for create task operations.
type CreateTaskInput struct {
	ProjectID      string
	Title          string
	Description    string
	Priority       domain.Priority
	AssignedTo     []string
	StartDate      *time.Time
	DueDate        *time.Time
	EstimatedHours float64
	Checklist      []domain.ChecklistItem
	Dependencies   []string
	Attachments    []string
}

// CreateTask persists a Pending task owned by the caller and notifies each assignee.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	if err := Authorize(caller, Resource{}, ActionCreateTask).Err(); err != nil {
		return domain.Task{}, err
	}

	task, err := domain.NewTask(domain.TaskInput{
		ID:             s.idGen(),
		ProjectID:      in.ProjectID,
		Title:          in.Title,
		Description:    in.Description,
		Priority:       in.Priority,
		AssignedTo:     in.AssignedTo,
		CreatedBy:      caller.ID,
		StartDate:      in.StartDate,
		DueDate:        in.DueDate,
		EstimatedHours: in.EstimatedHours,
		Checklist:      in.Checklist,
		Dependencies:   in.Dependencies,
		Attachments:    in.Attachments,
	}, s.clock())
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	s.logger.Info("task created", "task_id", task.ID, "project_id", task.ProjectID, "assignees", len(task.AssignedTo))

	for _, userID := range task.AssignedTo {
		s.notify(userID, fmt.Sprintf("You have been assigned a new task: %s", task.Title), task.ID)
	}
	return task, nil
}

// GetTask returns the enriched view of one task to an assignee or admin.
func (s *Service) GetTask(ctx context.Context, taskID string) (TaskView, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return TaskView{}, err
	}
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return TaskView{}, err
	}
	if err := Authorize(caller, taskResource(task), ActionViewTask).Err(); err != nil {
		return TaskView{}, err
	}
	views, err := s.enricher().enrich(ctx, []domain.Task{task}, true)
	if err != nil {
		return TaskView{}, err
	}
	return views[0], nil
}

// UpdateTask merges patch over the stored task. Progress and status are untouched.
func (s *Service) UpdateTask(ctx context.Context, taskID string, patch domain.TaskPatch) (domain.Task, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	if err := Authorize(caller, Resource{}, ActionEditTask).Err(); err != nil {
		return domain.Task{}, err
	}
	now := s.clock()
	return s.tasks.UpdateTask(ctx, taskID, func(task *domain.Task) error {
		return task.ApplyPatch(patch, now)
	})
}

// DeleteTask hard-deletes a task. Its time logs are left in place as history.
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	caller, err := requireCaller(ctx)
	if err != nil {
		return err
	}
	if err := Authorize(caller, Resource{}, ActionDeleteTask).Err(); err != nil {
		return err
	}
	if err := s.tasks.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	s.logger.Info("task deleted", "task_id", taskID, "by", caller.ID)
	return nil
}

// SetStatus applies a direct status transition for an assignee or admin.
func (s *Service) SetStatus(ctx context.Context, taskID string, status domain.Status) (domain.Task, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	now := s.clock()
	return s.tasks.UpdateTask(ctx, taskID, func(task *domain.Task) error {
		if err := Authorize(caller, taskResource(*task), ActionUpdateStatus).Err(); err != nil {
			return err
		}
		return task.SetStatus(status, now)
	})
}

// UpdateChecklist replaces the checklist and derives progress and status in the same write.
func (s *Service) UpdateChecklist(ctx context.Context, taskID string, items []domain.ChecklistItem) (domain.Task, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	now := s.clock()
	return s.tasks.UpdateTask(ctx, taskID, func(task *domain.Task) error {
		if err := Authorize(caller, taskResource(*task), ActionUpdateStatus).Err(); err != nil {
			return err
		}
		return task.ReplaceChecklist(items, now)
	})
}

// AddRemark appends an admin remark.
func (s *Service) AddRemark(ctx context.Context, taskID, text string) (domain.Task, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	if err := Authorize(caller, Resource{}, ActionAddRemark).Err(); err != nil {
		return domain.Task{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.Task{}, domain.ErrEmptyText
	}
	now := s.clock()
	return s.tasks.UpdateTask(ctx, taskID, func(task *domain.Task) error {
		_, err := task.AddRemark(caller.ID, text, now)
		return err
	})
}

// AddComment appends a comment and notifies every other assignee.
func (s *Service) AddComment(ctx context.Context, taskID, text string) (domain.Task, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	now := s.clock()
	task, err := s.tasks.UpdateTask(ctx, taskID, func(task *domain.Task) error {
		if err := Authorize(caller, taskResource(*task), ActionAddComment).Err(); err != nil {
			return err
		}
		_, err := task.AddComment(caller.ID, text, now)
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	for _, userID := range task.AssignedTo {
		if userID == caller.ID {
			continue
		}
		s.notify(userID, fmt.Sprintf("New comment on task: %s", task.Title), task.ID)
	}
	return task, nil
}

// notify hands a notification to the publisher without waiting on delivery.
func (s *Service) notify(userID, message, taskID string) {
	if s.publisher == nil {
		return
	}
	n := Notification{
		UserID:    userID,
		Message:   message,
		Link:      TaskLink(taskID),
		CreatedAt: s.clock().UTC(),
	}
	if !s.publisher.Publish(n) {
		s.logger.Warn("notification not queued", "user_id", userID, "task_id", taskID)
	}
}

// TaskLink is the client-relative link attached to task notifications.
func TaskLink(taskID string) string {
	return "/tasks/" + taskID
}

func taskResource(task domain.Task) Resource {
	return Resource{AssignedTo: task.AssignedTo}
}

func (s *Service) enricher() enricher {
	return enricher{
		logs:      s.logs,
		directory: s.directory,
		clock:     s.clock,
		loc:       s.loc,
		logger:    s.logger,
	}
}
