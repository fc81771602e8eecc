// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/timeboard/internal/adapters/server/common"
	"github.com/hylla/timeboard/internal/app"
	"github.com/hylla/timeboard/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter. Tools are registered per
// configured service; caller identity comes from the gateway headers on each request.
func NewHandler(cfg Config, services common.Services) (*Handler, error) {
	if services.Tasks == nil && services.Timers == nil && services.Reports == nil {
		return nil, fmt.Errorf("at least one service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	if services.Reports != nil {
		registerReportTools(mcpSrv, services.Reports)
	}
	if services.Tasks != nil {
		registerTaskTools(mcpSrv, services.Tasks)
	}
	if services.Timers != nil {
		registerTimerTools(mcpSrv, services.Timers)
		registerTimeReportTools(mcpSrv, services.Timers)
	}

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
		mcpserver.WithHTTPContextFunc(common.ContextWithRequestCaller),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "timeboard"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerReportTools registers listing and dashboard tools.
func registerReportTools(srv *mcpserver.MCPServer, reports common.ReportService) {
	srv.AddTool(
		mcp.NewTool(
			"timeboard.list_tasks",
			mcp.WithDescription("List tasks visible to the caller with a status summary. Members only see their own assignments."),
			mcp.WithString("projectId", mcp.Description("Project identifier")),
			mcp.WithString("assignedUserId", mcp.Description("Assignee filter for admins; \"all\" disables it")),
			mcp.WithString("status", mcp.Description("Pending, In Progress, Completed, or all")),
			mcp.WithBoolean("isOverdue", mcp.Description("Only incomplete tasks due before today; takes precedence over status")),
			mcp.WithString("dueDate", mcp.Description("Due day as YYYY-MM-DD")),
			mcp.WithString("createdDate", mcp.Description("Creation day as YYYY-MM-DD")),
			mcp.WithString("sortBy", mcp.Description("Sort order"), mcp.Enum(string(app.SortRecency), string(app.SortLoggedHours))),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			filter, err := common.ParseListFilter(func(key string) string {
				if key == "isOverdue" {
					return strconv.FormatBool(req.GetBool("isOverdue", false))
				}
				return req.GetString(key, "")
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			list, err := reports.ListTasks(ctx, filter)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_tasks", list)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"timeboard.dashboard_stats",
			mcp.WithDescription("Return task counts, distributions, recent tasks, and logged hours for the caller's scope."),
			mcp.WithString("projectId", mcp.Description("Optional project identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			stats, err := reports.DashboardStats(ctx, req.GetString("projectId", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("dashboard_stats", stats)
		},
	)
}

// registerTaskTools registers task read and status tools.
func registerTaskTools(srv *mcpserver.MCPServer, tasks common.TaskService) {
	srv.AddTool(
		mcp.NewTool(
			"timeboard.get_task",
			mcp.WithDescription("Return one task with derived checklist, overdue, and logged-time fields."),
			mcp.WithString("taskId", mcp.Required(), mcp.Description("Task identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("taskId")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			view, err := tasks.GetTask(ctx, taskID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("get_task", view)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"timeboard.set_status",
			mcp.WithDescription("Set a task status. Completing a task completes its checklist."),
			mcp.WithString("taskId", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithString("status", mcp.Required(), mcp.Description("Target status"), mcp.Enum(statusNames()...)),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("taskId")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			raw, err := req.RequireString("status")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			status, err := domain.ParseStatus(raw)
			if err != nil {
				return toolResultFromError(err), nil
			}
			task, err := tasks.SetStatus(ctx, taskID, status)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("set_status", task)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"timeboard.add_comment",
			mcp.WithDescription("Add a comment to a task and notify the other assignees."),
			mcp.WithString("taskId", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Comment text")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("taskId")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			text, err := req.RequireString("text")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			task, err := tasks.AddComment(ctx, taskID, text)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("add_comment", task)
		},
	)
}

// registerTimerTools registers time-tracking tools.
func registerTimerTools(srv *mcpserver.MCPServer, timers common.TimerService) {
	srv.AddTool(
		mcp.NewTool(
			"timeboard.start_timer",
			mcp.WithDescription("Start the caller's timer on a task. Fails if one is already running."),
			mcp.WithString("taskId", mcp.Required(), mcp.Description("Task identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("taskId")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			log, err := timers.StartTimer(ctx, taskID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("start_timer", log)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"timeboard.stop_timer",
			mcp.WithDescription("Stop a running time log on a task."),
			mcp.WithString("taskId", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithString("timeLogId", mcp.Required(), mcp.Description("Time log identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("taskId")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			logID, err := req.RequireString("timeLogId")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			log, err := timers.StopTimer(ctx, taskID, logID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("stop_timer", log)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"timeboard.list_time_logs",
			mcp.WithDescription("List a task's time logs, newest first, with the closed-log total."),
			mcp.WithString("taskId", mcp.Required(), mcp.Description("Task identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("taskId")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			list, err := timers.ListTimeLogsForTask(ctx, taskID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_time_logs", list)
		},
	)
}

// registerTimeReportTools registers cross-task time log reports.
func registerTimeReportTools(srv *mcpserver.MCPServer, timers common.TimerService) {
	srv.AddTool(
		mcp.NewTool(
			"timeboard.list_day_time_logs",
			mcp.WithDescription("List closed time logs started on one day. With userId, one user's logs (self or admin); without it, every user's logs (admin only)."),
			mcp.WithString("date", mcp.Required(), mcp.Description("Day as YYYY-MM-DD")),
			mcp.WithString("userId", mcp.Description("Optional user identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			day, err := req.RequireString("date")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			var entries []app.TimeLogEntry
			if userID := strings.TrimSpace(req.GetString("userId", "")); userID != "" {
				entries, err = timers.ListTimeLogsByDay(ctx, userID, day)
			} else {
				entries, err = timers.ListAllTimeLogsByDay(ctx, day)
			}
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_day_time_logs", map[string]any{"timeLogs": entries})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"timeboard.list_active_time_logs",
			mcp.WithDescription("List every running timer with its task. Admin only."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			entries, err := timers.ListActiveTimeLogs(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_active_time_logs", map[string]any{"timeLogs": entries})
		},
	)
}

// jsonResult encodes payload as a structured tool result.
func jsonResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("unknown error")
	}
	kind := app.KindOf(err)
	if kind == app.KindInternal {
		return mcp.NewToolResultError(string(kind) + ": internal error")
	}
	return mcp.NewToolResultError(string(kind) + ": " + err.Error())
}

func statusNames() []string {
	out := make([]string, 0, len(domain.Statuses))
	for _, status := range domain.Statuses {
		out = append(out, string(status))
	}
	return out
}
