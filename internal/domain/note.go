package domain

import (
	"strings"
	"time"
)

// Note is one append-only remark or comment entry on a task.
type Note struct {
	Text      string    `json:"text"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewNote trims text and rejects blank bodies.
func NewNote(authorID, text string, now time.Time) (Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Note{}, ErrEmptyText
	}
	return Note{
		Text:      text,
		AuthorID:  strings.TrimSpace(authorID),
		CreatedAt: normalizeTS(now),
	}, nil
}

// AddRemark appends an admin remark.
func (t *Task) AddRemark(authorID, text string, now time.Time) (Note, error) {
	note, err := NewNote(authorID, text, now)
	if err != nil {
		return Note{}, err
	}
	t.Remarks = append(t.Remarks, note)
	t.UpdatedAt = note.CreatedAt
	return note, nil
}

// AddComment appends a discussion comment.
func (t *Task) AddComment(authorID, text string, now time.Time) (Note, error) {
	note, err := NewNote(authorID, text, now)
	if err != nil {
		return Note{}, err
	}
	t.Comments = append(t.Comments, note)
	t.UpdatedAt = note.CreatedAt
	return note, nil
}
