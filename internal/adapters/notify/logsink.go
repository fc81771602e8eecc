// Package notify provides delivery sinks for the service notification outbox.
package notify

import (
	"context"
	"errors"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/timeboard/internal/app"
)

// LogSink writes each notification as one structured log record.
type LogSink struct {
	logger *charmLog.Logger
}

// NewLogSink constructs a log-backed sink.
func NewLogSink(logger *charmLog.Logger) (*LogSink, error) {
	if logger == nil {
		return nil, errors.New("log sink logger is required")
	}
	return &LogSink{logger: logger.WithPrefix("notify")}, nil
}

// Notify logs n.
func (s *LogSink) Notify(ctx context.Context, n app.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info(
		"notification",
		"user_id", n.UserID,
		"message", n.Message,
		"link", n.Link,
		"created_at", n.CreatedAt.UTC().Format(time.RFC3339),
	)
	return nil
}
