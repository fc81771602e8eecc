package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/timeboard/internal/app"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix namespaces per-user notification subjects.
const DefaultSubjectPrefix = "timeboard.notifications"

// NATSConfig holds NATS sink settings.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	ConnectName   string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns local development settings.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: DefaultSubjectPrefix,
		ConnectName:   "timeboard",
		MaxReconnects: 10,
		ReconnectWait: time.Second,
	}
}

// NATSSink publishes notifications as JSON on <prefix>.<userID>.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSSink connects to NATS and returns a sink.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	defaults := DefaultNATSConfig()
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = defaults.URL
	}
	cfg.SubjectPrefix = strings.Trim(strings.TrimSpace(cfg.SubjectPrefix), ".")
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = defaults.SubjectPrefix
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = defaults.MaxReconnects
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = defaults.ReconnectWait
	}
	if cfg.ConnectName == "" {
		cfg.ConnectName = defaults.ConnectName
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ConnectName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return &NATSSink{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject a user's notifications are published on.
func (s *NATSSink) Subject(userID string) string {
	return s.prefix + "." + subjectToken(userID)
}

// Notify publishes n and flushes so delivery failures surface to the caller.
func (s *NATSSink) Notify(ctx context.Context, n app.Notification) error {
	if s == nil || s.nc == nil {
		return errors.New("nats sink is not connected")
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.nc.Publish(s.Subject(n.UserID), data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	if err := s.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush notification: %w", err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (s *NATSSink) Close() error {
	if s == nil || s.nc == nil {
		return nil
	}
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return err
	}
	return nil
}

// subjectToken replaces characters NATS treats as subject syntax.
func subjectToken(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, id)
}
