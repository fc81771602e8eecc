package domain

import (
	"slices"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priorities lists priority values in ascending order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// ParsePriority resolves a priority case-insensitively. Empty input yields Medium.
func ParsePriority(raw string) (Priority, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PriorityMedium, nil
	}
	for _, p := range Priorities {
		if strings.EqualFold(raw, string(p)) {
			return p, nil
		}
	}
	return "", ErrInvalidPriority
}

type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// Statuses lists status values in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted}

// ParseStatus resolves a status case-insensitively; "InProgress" is accepted as an alias.
func ParseStatus(raw string) (Status, error) {
	compact := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	for _, s := range Statuses {
		if strings.EqualFold(compact, s.Key()) {
			return s, nil
		}
	}
	return "", ErrInvalidStatus
}

// Key returns the space-free form used as a distribution map key.
func (s Status) Key() string {
	return strings.ReplaceAll(string(s), " ", "")
}

// StatusForProgress derives the checklist-driven status.
func StatusForProgress(progress int) Status {
	switch {
	case progress <= 0:
		return StatusPending
	case progress >= 100:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

type ChecklistItem struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

type Task struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"projectId"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Priority       Priority        `json:"priority"`
	Status         Status          `json:"status"`
	AssignedTo     []string        `json:"assignedTo"`
	CreatedBy      string          `json:"createdBy"`
	StartDate      *time.Time      `json:"startDate,omitempty"`
	DueDate        *time.Time      `json:"dueDate,omitempty"`
	EstimatedHours float64         `json:"estimatedHours"`
	Progress       int             `json:"progress"`
	Checklist      []ChecklistItem `json:"checklist"`
	Remarks        []Note          `json:"remarks,omitempty"`
	Comments       []Note          `json:"comments"`
	Dependencies   []string        `json:"dependencies"`
	Attachments    []string        `json:"attachments"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type TaskInput struct {
	ID             string
	ProjectID      string
	Title          string
	Description    string
	Priority       Priority
	AssignedTo     []string
	CreatedBy      string
	StartDate      *time.Time
	DueDate        *time.Time
	EstimatedHours float64
	Checklist      []ChecklistItem
	Dependencies   []string
	Attachments    []string
}

// NewTask builds a Pending task with zero progress. A supplied checklist is
// stored as-is; progress is only derived on checklist replacement.
func NewTask(in TaskInput, now time.Time) (Task, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.ID == "" {
		return Task{}, ErrInvalidID
	}
	if in.ProjectID == "" {
		return Task{}, ErrInvalidProjectID
	}
	if in.Title == "" {
		return Task{}, ErrInvalidTitle
	}
	priority, err := ParsePriority(string(in.Priority))
	if err != nil {
		return Task{}, err
	}
	if in.EstimatedHours < 0 {
		return Task{}, ErrInvalidEstimate
	}
	checklist, err := normalizeChecklist(in.Checklist)
	if err != nil {
		return Task{}, err
	}

	ts := normalizeTS(now)
	return Task{
		ID:             in.ID,
		ProjectID:      in.ProjectID,
		Title:          in.Title,
		Description:    in.Description,
		Priority:       priority,
		Status:         StatusPending,
		AssignedTo:     normalizeIDs(in.AssignedTo),
		CreatedBy:      strings.TrimSpace(in.CreatedBy),
		StartDate:      normalizeDate(in.StartDate),
		DueDate:        normalizeDate(in.DueDate),
		EstimatedHours: in.EstimatedHours,
		Checklist:      checklist,
		Remarks:        []Note{},
		Comments:       []Note{},
		Dependencies:   normalizeIDs(in.Dependencies),
		Attachments:    normalizeAttachments(in.Attachments),
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}, nil
}

// ReplaceChecklist swaps the checklist wholesale and derives progress and status from it.
func (t *Task) ReplaceChecklist(items []ChecklistItem, now time.Time) error {
	checklist, err := normalizeChecklist(items)
	if err != nil {
		return err
	}
	t.Checklist = checklist
	t.Progress = ChecklistProgress(checklist)
	t.Status = StatusForProgress(t.Progress)
	t.UpdatedAt = normalizeTS(now)
	return nil
}

// SetStatus applies a direct status transition. Completed forces every
// checklist item complete and progress to 100; other statuses leave both alone.
// An empty status keeps the current one.
func (t *Task) SetStatus(status Status, now time.Time) error {
	if status == "" {
		status = t.Status
	}
	if !slices.Contains(Statuses, status) {
		return ErrInvalidStatus
	}
	t.Status = status
	if status == StatusCompleted {
		for i := range t.Checklist {
			t.Checklist[i].Completed = true
		}
		t.Progress = 100
	}
	t.UpdatedAt = normalizeTS(now)
	return nil
}

// CompletedChecklistCount counts completed checklist items.
func (t Task) CompletedChecklistCount() int {
	count := 0
	for _, item := range t.Checklist {
		if item.Completed {
			count++
		}
	}
	return count
}

// IsOverdue reports whether an incomplete task's due date precedes the start of now's day in loc.
func (t Task) IsOverdue(now time.Time, loc *time.Location) bool {
	if t.Status == StatusCompleted || t.DueDate == nil {
		return false
	}
	return t.DueDate.Before(StartOfDay(now, loc))
}

// IsAssignee reports whether userID is in the assignee set.
func (t Task) IsAssignee(userID string) bool {
	return userID != "" && slices.Contains(t.AssignedTo, userID)
}

// ChecklistProgress returns round(100*completed/total), or 0 for an empty checklist.
func ChecklistProgress(items []ChecklistItem) int {
	total := len(items)
	if total == 0 {
		return 0
	}
	done := 0
	for _, item := range items {
		if item.Completed {
			done++
		}
	}
	return (200*done + total) / (2 * total)
}

// TaskPatch carries optional field overwrites. Nil pointers leave fields untouched;
// non-nil pointers apply even when they point at a zero value.
type TaskPatch struct {
	ProjectID      *string
	Title          *string
	Description    *string
	Priority       *Priority
	AssignedTo     *[]string
	StartDate      *time.Time
	DueDate        *time.Time
	EstimatedHours *float64
	Checklist      *[]ChecklistItem
	Dependencies   *[]string
	Attachments    *[]string
}

// ApplyPatch validates every provided field before overwriting any of them.
// Progress and status are never touched, even when the checklist is replaced.
func (t *Task) ApplyPatch(p TaskPatch, now time.Time) error {
	next := *t
	if p.ProjectID != nil {
		projectID := strings.TrimSpace(*p.ProjectID)
		if projectID == "" {
			return ErrInvalidProjectID
		}
		next.ProjectID = projectID
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return ErrInvalidTitle
		}
		next.Title = title
	}
	if p.Description != nil {
		next.Description = strings.TrimSpace(*p.Description)
	}
	if p.Priority != nil {
		priority, err := ParsePriority(string(*p.Priority))
		if err != nil {
			return err
		}
		next.Priority = priority
	}
	if p.AssignedTo != nil {
		if *p.AssignedTo == nil {
			return ErrInvalidAssignees
		}
		next.AssignedTo = normalizeIDs(*p.AssignedTo)
	}
	if p.StartDate != nil {
		next.StartDate = normalizeDate(p.StartDate)
	}
	if p.DueDate != nil {
		next.DueDate = normalizeDate(p.DueDate)
	}
	if p.EstimatedHours != nil {
		if *p.EstimatedHours < 0 {
			return ErrInvalidEstimate
		}
		next.EstimatedHours = *p.EstimatedHours
	}
	if p.Checklist != nil {
		checklist, err := normalizeChecklist(*p.Checklist)
		if err != nil {
			return err
		}
		next.Checklist = checklist
	}
	if p.Dependencies != nil {
		next.Dependencies = normalizeIDs(*p.Dependencies)
	}
	if p.Attachments != nil {
		next.Attachments = normalizeAttachments(*p.Attachments)
	}
	next.UpdatedAt = normalizeTS(now)
	*t = next
	return nil
}

func normalizeChecklist(items []ChecklistItem) ([]ChecklistItem, error) {
	out := make([]ChecklistItem, 0, len(items))
	for _, item := range items {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			return nil, ErrInvalidChecklistItem
		}
		out = append(out, ChecklistItem{Text: text, Completed: item.Completed})
	}
	return out, nil
}

// normalizeIDs trims, drops blanks, and dedupes while keeping first-seen order.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func normalizeAttachments(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ref := range in {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		out = append(out, ref)
	}
	return out
}

func normalizeDate(in *time.Time) *time.Time {
	if in == nil || in.IsZero() {
		return nil
	}
	ts := normalizeTS(*in)
	return &ts
}

// normalizeTS stores instants in UTC at millisecond precision.
func normalizeTS(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
