package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}

func (l *captureLogger) Error(msg string, _ ...any) {
	l.Warn(msg)
}

func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *captureLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

func TestOutboxDeliversInOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	sink := NotifierFunc(func(_ context.Context, n Notification) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, n.UserID)
		return nil
	})
	outbox := NewOutbox(sink, 8, nil)
	outbox.Start()
	for _, id := range []string{"u1", "u2", "u3"} {
		if !outbox.Publish(Notification{UserID: id, Message: "hi"}) {
			t.Fatalf("Publish(%s) rejected", id)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := outbox.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "u1" || got[2] != "u3" {
		t.Fatalf("unexpected deliveries %#v", got)
	}
}

func TestOutboxSinkFailuresAreLoggedOnly(t *testing.T) {
	logger := &captureLogger{}
	calls := 0
	sink := NotifierFunc(func(context.Context, Notification) error {
		calls++
		if calls == 1 {
			return errors.New("broker down")
		}
		panic("sink exploded")
	})
	outbox := NewOutbox(sink, 4, logger)
	outbox.Start()
	outbox.Publish(Notification{UserID: "u1"})
	outbox.Publish(Notification{UserID: "u2"})
	if err := outbox.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if logger.count() != 2 {
		t.Fatalf("expected 2 logged failures, got %d", logger.count())
	}
}

func TestOutboxPublishNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	sink := NotifierFunc(func(context.Context, Notification) error {
		<-release
		return nil
	})
	logger := &captureLogger{}
	outbox := NewOutbox(sink, 1, logger)
	outbox.Start()

	accepted := 0
	for range 5 {
		if outbox.Publish(Notification{UserID: "u"}) {
			accepted++
		}
	}
	if accepted >= 5 {
		t.Fatalf("expected drops on a full queue, accepted %d", accepted)
	}
	close(release)
	if err := outbox.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if outbox.Publish(Notification{UserID: "late"}) {
		t.Fatal("publish after stop must be rejected")
	}
}
