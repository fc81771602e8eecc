package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/timeboard/internal/app"
	"github.com/hylla/timeboard/internal/domain"
)

// scanner represents the row contract shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// checklistRow is the stored JSON shape of a checklist item.
type checklistRow struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// noteRow is the stored JSON shape of a remark or comment.
type noteRow struct {
	Text      string `json:"text"`
	AuthorID  string `json:"authorId"`
	CreatedAt string `json:"createdAt"`
}

// encodedTask holds a task's JSON columns.
type encodedTask struct {
	assigned     string
	checklist    string
	remarks      string
	comments     string
	dependencies string
	attachments  string
}

func encodeTask(t domain.Task) (encodedTask, error) {
	checklist := make([]checklistRow, 0, len(t.Checklist))
	for _, item := range t.Checklist {
		checklist = append(checklist, checklistRow{Text: item.Text, Completed: item.Completed})
	}

	var (
		out encodedTask
		err error
	)
	if out.assigned, err = encodeJSON(nonNil(t.AssignedTo)); err != nil {
		return encodedTask{}, err
	}
	if out.checklist, err = encodeJSON(checklist); err != nil {
		return encodedTask{}, err
	}
	if out.remarks, err = encodeJSON(encodeNotes(t.Remarks)); err != nil {
		return encodedTask{}, err
	}
	if out.comments, err = encodeJSON(encodeNotes(t.Comments)); err != nil {
		return encodedTask{}, err
	}
	if out.dependencies, err = encodeJSON(nonNil(t.Dependencies)); err != nil {
		return encodedTask{}, err
	}
	if out.attachments, err = encodeJSON(nonNil(t.Attachments)); err != nil {
		return encodedTask{}, err
	}
	return out, nil
}

func encodeNotes(notes []domain.Note) []noteRow {
	out := make([]noteRow, 0, len(notes))
	for _, n := range notes {
		out = append(out, noteRow{Text: n.Text, AuthorID: n.AuthorID, CreatedAt: ts(n.CreatedAt)})
	}
	return out
}

func decodeNotes(raw string) ([]domain.Note, error) {
	rows := []noteRow{}
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, err
	}
	out := make([]domain.Note, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Note{Text: row.Text, AuthorID: row.AuthorID, CreatedAt: parseTS(row.CreatedAt)})
	}
	return out, nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// scanTask decodes one task row in taskColumns order.
func scanTask(s scanner) (domain.Task, error) {
	var (
		t                                               domain.Task
		priority, status, createdAt, updatedAt          string
		startDate, dueDate                              sql.NullString
		assignedJSON, checklistJSON, remarksJSON        string
		commentsJSON, dependenciesJSON, attachmentsJSON string
	)
	if err := s.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Title,
		&t.Description,
		&priority,
		&status,
		&t.CreatedBy,
		&startDate,
		&dueDate,
		&t.EstimatedHours,
		&t.Progress,
		&assignedJSON,
		&checklistJSON,
		&remarksJSON,
		&commentsJSON,
		&dependenciesJSON,
		&attachmentsJSON,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, app.ErrNotFound
		}
		return domain.Task{}, err
	}
	t.Priority = domain.Priority(priority)
	t.Status = domain.Status(status)
	t.StartDate = parseNullTS(startDate)
	t.DueDate = parseNullTS(dueDate)
	t.CreatedAt = parseTS(createdAt)
	t.UpdatedAt = parseTS(updatedAt)

	if err := json.Unmarshal([]byte(assignedJSON), &t.AssignedTo); err != nil {
		return domain.Task{}, fmt.Errorf("decode task assignees: %w", err)
	}
	checklist := []checklistRow{}
	if err := json.Unmarshal([]byte(checklistJSON), &checklist); err != nil {
		return domain.Task{}, fmt.Errorf("decode task checklist: %w", err)
	}
	t.Checklist = make([]domain.ChecklistItem, 0, len(checklist))
	for _, item := range checklist {
		t.Checklist = append(t.Checklist, domain.ChecklistItem{Text: item.Text, Completed: item.Completed})
	}
	var err error
	if t.Remarks, err = decodeNotes(remarksJSON); err != nil {
		return domain.Task{}, fmt.Errorf("decode task remarks: %w", err)
	}
	if t.Comments, err = decodeNotes(commentsJSON); err != nil {
		return domain.Task{}, fmt.Errorf("decode task comments: %w", err)
	}
	if err := json.Unmarshal([]byte(dependenciesJSON), &t.Dependencies); err != nil {
		return domain.Task{}, fmt.Errorf("decode task dependencies: %w", err)
	}
	if err := json.Unmarshal([]byte(attachmentsJSON), &t.Attachments); err != nil {
		return domain.Task{}, fmt.Errorf("decode task attachments: %w", err)
	}
	return t, nil
}

// scanTimeLog decodes one time log row.
func scanTimeLog(s scanner) (domain.TimeLog, error) {
	var (
		l         domain.TimeLog
		startTime string
		endTime   sql.NullString
	)
	if err := s.Scan(&l.ID, &l.TaskID, &l.UserID, &startTime, &endTime, &l.DurationMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TimeLog{}, app.ErrNotFound
		}
		return domain.TimeLog{}, err
	}
	l.StartTime = parseTS(startTime)
	l.EndTime = parseNullTS(endTime)
	return l, nil
}

// translateNoRows maps a zero-row write to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func parseTS(v string) time.Time {
	parsed, err := time.Parse(tsLayout, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	parsed := parseTS(v.String)
	return &parsed
}

// isUniqueConstraintErr reports whether err is a UNIQUE or PRIMARY KEY violation.
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "constraint failed: unique")
}
