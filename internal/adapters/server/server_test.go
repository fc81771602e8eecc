package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hylla/timeboard/internal/adapters/server/common"
	"github.com/hylla/timeboard/internal/adapters/storage/sqlite"
	"github.com/hylla/timeboard/internal/app"
	"github.com/hylla/timeboard/internal/domain"
)

// newTestDependencies wires real services over in-memory SQLite.
func newTestDependencies(t *testing.T) Dependencies {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	seq := 0
	idGen := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	svc := app.NewService(repo, repo, idGen, clock, app.ServiceConfig{})
	agg := app.NewAggregator(repo, repo, clock, app.ServiceConfig{})
	return Dependencies{
		Services: common.Services{Tasks: svc, Timers: svc, Reports: agg},
		Ready:    repo.Ping,
	}
}

func TestNewHandlerHealthRoutes(t *testing.T) {
	deps := newTestDependencies(t)
	handler, _, err := NewHandler(Config{}, deps)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"ok"`) {
			t.Fatalf("%s body = %q", path, rec.Body.String())
		}
	}
}

func TestNewHandlerReadinessReportsStoreFailure(t *testing.T) {
	deps := newTestDependencies(t)
	deps.Ready = func(context.Context) error { return errors.New("database is locked") }
	handler, _, err := NewHandler(Config{}, deps)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestNewHandlerMountsAPI(t *testing.T) {
	deps := newTestDependencies(t)
	handler, cfg, err := NewHandler(Config{APIEndpoint: "api/v2/"}, deps)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.APIEndpoint != "/api/v2" {
		t.Fatalf("APIEndpoint = %q, want /api/v2", cfg.APIEndpoint)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v2/tasks", strings.NewReader(`{"projectId":"p1","title":"Ship","assignedTo":["u1"]}`))
	req.Header.Set(common.HeaderUserID, "boss")
	req.Header.Set(common.HeaderUserRole, "admin")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v2/tasks/dashboard", nil)
	req.Header.Set(common.HeaderUserID, "u1")
	req.Header.Set(common.HeaderUserRole, string(domain.RoleMember))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"totalTasks":1`) {
		t.Fatalf("dashboard body = %s", rec.Body.String())
	}
}

func TestNewHandlerRequiresServices(t *testing.T) {
	deps := newTestDependencies(t)
	deps.Services.Reports = nil
	if _, _, err := NewHandler(Config{}, deps); err == nil {
		t.Fatal("expected error for missing report service")
	}
}

func TestNormalizeConfig(t *testing.T) {
	cfg, err := normalizeConfig(Config{})
	if err != nil {
		t.Fatalf("normalizeConfig() error = %v", err)
	}
	if cfg.HTTPBind != defaultBindAddress || cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected defaults %#v", cfg)
	}
	if cfg.ServerName != "timeboard" || cfg.ServerVersion != "dev" || cfg.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("unexpected identity defaults %#v", cfg)
	}

	if _, err := normalizeConfig(Config{APIEndpoint: "/mcp", MCPEndpoint: "mcp/"}); err == nil {
		t.Fatal("expected endpoint collision error")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: "/fallback"},
		{in: "/", want: "/fallback"},
		{in: "api", want: "/api"},
		{in: " /api/v1/ ", want: "/api/v1"},
		{in: "//mcp//", want: "/mcp"},
	}
	for _, tc := range cases {
		if got := normalizeEndpoint(tc.in, "/fallback"); got != tc.want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	deps := newTestDependencies(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0", ShutdownTimeout: time.Second}, deps)
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
