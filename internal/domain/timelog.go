package domain

import (
	"strings"
	"time"
)

// TimeLog records one continuous work interval. A nil EndTime means the timer is running.
type TimeLog struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"taskId"`
	UserID     string     `json:"userId"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime"`
	DurationMS int64      `json:"durationMs"`
}

// NewTimeLog opens a running log starting at now.
func NewTimeLog(id, taskID, userID string, now time.Time) (TimeLog, error) {
	id = strings.TrimSpace(id)
	taskID = strings.TrimSpace(taskID)
	userID = strings.TrimSpace(userID)
	if id == "" || taskID == "" || userID == "" {
		return TimeLog{}, ErrInvalidID
	}
	return TimeLog{
		ID:        id,
		TaskID:    taskID,
		UserID:    userID,
		StartTime: normalizeTS(now),
	}, nil
}

// Running reports whether the log is still open.
func (l TimeLog) Running() bool {
	return l.EndTime == nil
}

// Stop closes the log at now. A now earlier than StartTime closes it with zero duration.
func (l *TimeLog) Stop(now time.Time) error {
	if !l.Running() {
		return ErrTimeLogStopped
	}
	end := normalizeTS(now)
	if end.Before(l.StartTime) {
		end = l.StartTime
	}
	l.EndTime = &end
	l.DurationMS = end.Sub(l.StartTime).Milliseconds()
	return nil
}
