package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/timeboard/internal/app"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func TestLogSinkWritesRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := charmLog.NewWithOptions(&buf, charmLog.Options{Formatter: charmLog.LogfmtFormatter})
	sink, err := NewLogSink(logger)
	if err != nil {
		t.Fatalf("NewLogSink() error = %v", err)
	}
	err = sink.Notify(context.Background(), app.Notification{
		UserID:    "u1",
		Message:   "You have been assigned a new task: Ship",
		Link:      "/tasks/t1",
		CreatedAt: time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"user_id=u1", "link=/tasks/t1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestLogSinkRequiresLogger(t *testing.T) {
	if _, err := NewLogSink(nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
}

func TestLogSinkHonorsCanceledContext(t *testing.T) {
	var buf bytes.Buffer
	sink, _ := NewLogSink(charmLog.New(&buf))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Notify(ctx, app.Notification{UserID: "u1"}); err == nil {
		t.Fatal("expected canceled context error")
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func runNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSSinkPublishesPerUserSubject(t *testing.T) {
	srv := runNATSServer(t)

	sink, err := NewNATSSink(NATSConfig{URL: srv.ClientURL(), SubjectPrefix: "tb.notify."})
	if err != nil {
		t.Fatalf("NewNATSSink() error = %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	sub, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("nats.Connect() error = %v", err)
	}
	defer sub.Close()
	msgs := make(chan *nats.Msg, 1)
	if _, err := sub.ChanSubscribe("tb.notify.>", msgs); err != nil {
		t.Fatalf("ChanSubscribe() error = %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	want := app.Notification{UserID: "user.1", Message: "New comment on task: Ship", Link: "/tasks/t1"}
	if err := sink.Notify(ctx, want); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Subject != "tb.notify.user_1" {
			t.Fatalf("unexpected subject %q", msg.Subject)
		}
		var got app.Notification
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("json.Unmarshal() error = %v", err)
		}
		if got.UserID != want.UserID || got.Message != want.Message || got.Link != want.Link {
			t.Fatalf("unexpected payload %#v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestNATSSinkConnectFailure(t *testing.T) {
	if _, err := NewNATSSink(NATSConfig{URL: "nats://127.0.0.1:1", MaxReconnects: -1}); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestSubjectToken(t *testing.T) {
	cases := map[string]string{
		"u1":     "u1",
		" a.b* ": "a_b_",
		"":       "_",
		"x>y z":  "x_y_z",
	}
	for in, want := range cases {
		if got := subjectToken(in); got != want {
			t.Fatalf("subjectToken(%q) = %q, want %q", in, got, want)
		}
	}
}
