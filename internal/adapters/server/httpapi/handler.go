// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hylla/timeboard/internal/adapters/server/common"
	"github.com/hylla/timeboard/internal/app"
	"github.com/hylla/timeboard/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	services common.Services
	logger   app.Logger
	mux      *http.ServeMux
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs the HTTP API adapter. A nil logger discards internal error logs.
func NewHandler(services common.Services, logger app.Logger) *Handler {
	h := &Handler{
		services: services,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	h.routes()
	return h
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.handle("GET /tasks", h.handleListTasks)
	h.handle("POST /tasks", h.handleCreateTask)
	h.handle("GET /tasks/dashboard", h.handleDashboard)
	h.handle("GET /users/{userID}/tasks", h.handleListUserTasks)
	h.handle("GET /tasks/{id}", h.handleGetTask)
	h.handle("PUT /tasks/{id}", h.handleUpdateTask)
	h.handle("DELETE /tasks/{id}", h.handleDeleteTask)
	h.handle("PUT /tasks/{id}/status", h.handleSetStatus)
	h.handle("PUT /tasks/{id}/checklist", h.handleUpdateChecklist)
	h.handle("POST /tasks/{id}/remarks", h.handleAddRemark)
	h.handle("POST /tasks/{id}/comments", h.handleAddComment)
	h.handle("POST /tasks/{id}/timelogs/start", h.handleStartTimer)
	h.handle("PUT /tasks/{id}/timelogs/{logID}/stop", h.handleStopTimer)
	h.handle("GET /tasks/{id}/timelogs/active", h.handleActiveTimer)
	h.handle("GET /tasks/{id}/timelogs", h.handleListTimeLogs)
	h.handle("GET /timelogs/active", h.handleActiveTimeLogs)
	h.handle("GET /timelogs/all-by-day", h.handleAllTimeLogsByDay)
	h.handle("GET /timelogs/day/{userID}", h.handleTimeLogsByDay)
	h.handle("GET /timelogs/{logID}", h.handleGetTimeLog)
	h.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	})
}

// handle registers fn behind caller resolution. Requests without identity get 401.
func (h *Handler) handle(pattern string, fn http.HandlerFunc) {
	h.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		caller, err := common.CallerFromRequest(r)
		if err != nil {
			h.writeErrorFrom(w, r, err)
			return
		}
		fn(w, r.WithContext(app.WithCaller(r.Context(), caller)))
	})
}

// createTaskRequest is the POST `/tasks` body.
type createTaskRequest struct {
	ProjectID      string                 `json:"projectId"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Priority       string                 `json:"priority"`
	AssignedTo     json.RawMessage        `json:"assignedTo"`
	StartDate      string                 `json:"startDate"`
	DueDate        string                 `json:"dueDate"`
	EstimatedHours float64                `json:"estimatedHours"`
	Checklist      []domain.ChecklistItem `json:"checklist"`
	Dependencies   []string               `json:"dependencies"`
	Attachments    []string               `json:"attachments"`
}

// updateTaskRequest is the PUT `/tasks/{id}` body. Absent fields are left unchanged.
type updateTaskRequest struct {
	ProjectID      *string                 `json:"projectId"`
	Title          *string                 `json:"title"`
	Description    *string                 `json:"description"`
	Priority       *string                 `json:"priority"`
	AssignedTo     json.RawMessage         `json:"assignedTo"`
	StartDate      *string                 `json:"startDate"`
	DueDate        *string                 `json:"dueDate"`
	EstimatedHours *float64                `json:"estimatedHours"`
	Checklist      *[]domain.ChecklistItem `json:"checklist"`
	Dependencies   *[]string               `json:"dependencies"`
	Attachments    *[]string               `json:"attachments"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type checklistRequest struct {
	Checklist []domain.ChecklistItem `json:"checklist"`
}

type textRequest struct {
	Text string `json:"text"`
}

// handleListTasks serves GET `/tasks`.
func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if !h.requireReports(w) {
		return
	}
	filter, err := common.ParseListFilter(r.URL.Query().Get)
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	list, err := h.services.Reports.ListTasks(r.Context(), filter)
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleDashboard serves GET `/tasks/dashboard`.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !h.requireReports(w) {
		return
	}
	stats, err := h.services.Reports.DashboardStats(r.Context(), strings.TrimSpace(r.URL.Query().Get("projectId")))
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleListUserTasks serves GET `/users/{userID}/tasks`.
func (h *Handler) handleListUserTasks(w http.ResponseWriter, r *http.Request) {
	if !h.requireReports(w) {
		return
	}
	status, err := common.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	list, err := h.services.Reports.ListTasksForUser(r.Context(), r.PathValue("userID"), status)
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleCreateTask serves POST `/tasks`.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if !h.requireTasks(w) {
		return
	}
	var req createTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	task, err := h.services.Tasks.CreateTask(r.Context(), in)
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleGetTask serves GET `/tasks/{id}`.
func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if !h.requireTasks(w) {
		return
	}
	view, err := h.services.Tasks.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleUpdateTask serves PUT `/tasks/{id}`.
func (h *Handler) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	if !h.requireTasks(w) {
		return
	}
	var req updateTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	task, err := h.services.Tasks.UpdateTask(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleDeleteTask serves DELETE `/tasks/{id}`.
func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if !h.requireTasks(w) {
		return
	}
	id := r.PathValue("id")
	if err := h.services.Tasks.DeleteTask(r.Context(), id); err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"deleted": true,
	})
}

// handleSetStatus serves PUT `/tasks/{id}/status`.
func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireTasks(w) {
		return
	}
	var req statusRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	var status domain.Status
	if strings.TrimSpace(req.Status) != "" {
		parsed, err := domain.ParseStatus(req.Status)
		if err != nil {
			h.writeErrorFrom(w, r, err)
			return
		}
		status = parsed
	}
	task, err := h.services.Tasks.SetStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleUpdateChecklist serves PUT `/tasks/{id}/checklist`.
func (h *Handler) handleUpdateChecklist(w http.ResponseWriter, r *http.Request) {
	if !h.requireTasks(w) {
		return
	}
	var req checklistRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	task, err := h.services.Tasks.UpdateChecklist(r.Context(), r.PathValue("id"), req.Checklist)
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleAddRemark serves POST `/tasks/{id}/remarks`.
func (h *Handler) handleAddRemark(w http.ResponseWriter, r *http.Request) {
	h.handleNote(w, r, func(ctx context.Context, id, text string) (domain.Task, error) {
		return h.services.Tasks.AddRemark(ctx, id, text)
	})
}

// handleAddComment serves POST `/tasks/{id}/comments`.
func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	h.handleNote(w, r, func(ctx context.Context, id, text string) (domain.Task, error) {
		return h.services.Tasks.AddComment(ctx, id, text)
	})
}

// handleNote decodes a text body and appends it through add.
func (h *Handler) handleNote(w http.ResponseWriter, r *http.Request, add func(context.Context, string, string) (domain.Task, error)) {
	if !h.requireTasks(w) {
		return
	}
	var req textRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	task, err := add(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleStartTimer serves POST `/tasks/{id}/timelogs/start`.
func (h *Handler) handleStartTimer(w http.ResponseWriter, r *http.Request) {
	if !h.requireTimers(w) {
		return
	}
	log, err := h.services.Timers.StartTimer(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, log)
}

// handleStopTimer serves PUT `/tasks/{id}/timelogs/{logID}/stop`.
func (h *Handler) handleStopTimer(w http.ResponseWriter, r *http.Request) {
	if !h.requireTimers(w) {
		return
	}
	log, err := h.services.Timers.StopTimer(r.Context(), r.PathValue("id"), r.PathValue("logID"))
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// handleActiveTimer serves GET `/tasks/{id}/timelogs/active`.
func (h *Handler) handleActiveTimer(w http.ResponseWriter, r *http.Request) {
	if !h.requireTimers(w) {
		return
	}
	log, ok, err := h.services.Timers.GetActiveTimer(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, common.NewActiveTimer(log, ok))
}

// handleListTimeLogs serves GET `/tasks/{id}/timelogs`.
func (h *Handler) handleListTimeLogs(w http.ResponseWriter, r *http.Request) {
	if !h.requireTimers(w) {
		return
	}
	list, err := h.services.Timers.ListTimeLogsForTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetTimeLog serves GET `/timelogs/{logID}`.
func (h *Handler) handleGetTimeLog(w http.ResponseWriter, r *http.Request) {
	if !h.requireTimers(w) {
		return
	}
	log, err := h.services.Timers.GetTimeLog(r.Context(), r.PathValue("logID"))
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// handleActiveTimeLogs serves GET `/timelogs/active`.
func (h *Handler) handleActiveTimeLogs(w http.ResponseWriter, r *http.Request) {
	if !h.requireTimers(w) {
		return
	}
	entries, err := h.services.Timers.ListActiveTimeLogs(r.Context())
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleTimeLogsByDay serves GET `/timelogs/day/{userID}?date=YYYY-MM-DD`.
func (h *Handler) handleTimeLogsByDay(w http.ResponseWriter, r *http.Request) {
	if !h.requireTimers(w) {
		return
	}
	entries, err := h.services.Timers.ListTimeLogsByDay(r.Context(), r.PathValue("userID"), r.URL.Query().Get("date"))
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleAllTimeLogsByDay serves GET `/timelogs/all-by-day?date=YYYY-MM-DD`.
func (h *Handler) handleAllTimeLogsByDay(w http.ResponseWriter, r *http.Request) {
	if !h.requireTimers(w) {
		return
	}
	entries, err := h.services.Timers.ListAllTimeLogsByDay(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		h.writeErrorFrom(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) requireTasks(w http.ResponseWriter) bool {
	return requireService(w, h.services.Tasks != nil, "task")
}

func (h *Handler) requireTimers(w http.ResponseWriter) bool {
	return requireService(w, h.services.Timers != nil, "timer")
}

func (h *Handler) requireReports(w http.ResponseWriter) bool {
	return requireService(w, h.services.Reports != nil, "report")
}

// requireService writes 501 when a surface is not configured.
func requireService(w http.ResponseWriter, ok bool, name string) bool {
	if ok {
		return true
	}
	writeJSONError(w, http.StatusNotImplemented, APIError{
		Code:    "not_implemented",
		Message: name + " APIs are not available",
	})
	return false
}

// input converts the create body into service input.
func (req createTaskRequest) input() (app.CreateTaskInput, error) {
	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return app.CreateTaskInput{}, err
	}
	assignedTo, err := decodeIDList(req.AssignedTo)
	if err != nil {
		return app.CreateTaskInput{}, err
	}
	startDate, err := common.ParseTimestamp("startDate", req.StartDate)
	if err != nil {
		return app.CreateTaskInput{}, err
	}
	dueDate, err := common.ParseTimestamp("dueDate", req.DueDate)
	if err != nil {
		return app.CreateTaskInput{}, err
	}
	return app.CreateTaskInput{
		ProjectID:      req.ProjectID,
		Title:          req.Title,
		Description:    req.Description,
		Priority:       priority,
		AssignedTo:     assignedTo,
		StartDate:      startDate,
		DueDate:        dueDate,
		EstimatedHours: req.EstimatedHours,
		Checklist:      req.Checklist,
		Dependencies:   req.Dependencies,
		Attachments:    req.Attachments,
	}, nil
}

// patch converts the update body into a domain patch.
func (req updateTaskRequest) patch() (domain.TaskPatch, error) {
	patch := domain.TaskPatch{
		ProjectID:      req.ProjectID,
		Title:          req.Title,
		Description:    req.Description,
		EstimatedHours: req.EstimatedHours,
		Checklist:      req.Checklist,
		Dependencies:   req.Dependencies,
		Attachments:    req.Attachments,
	}
	if req.Priority != nil {
		priority, err := domain.ParsePriority(*req.Priority)
		if err != nil {
			return domain.TaskPatch{}, err
		}
		patch.Priority = &priority
	}
	if len(req.AssignedTo) > 0 {
		ids, err := decodeIDList(req.AssignedTo)
		if err != nil {
			return domain.TaskPatch{}, err
		}
		patch.AssignedTo = &ids
	}
	for _, field := range []struct {
		name string
		raw  *string
		dst  **time.Time
	}{
		{name: "startDate", raw: req.StartDate, dst: &patch.StartDate},
		{name: "dueDate", raw: req.DueDate, dst: &patch.DueDate},
	} {
		if field.raw == nil {
			continue
		}
		ts, err := common.ParseTimestamp(field.name, *field.raw)
		if err != nil {
			return domain.TaskPatch{}, err
		}
		if ts == nil {
			return domain.TaskPatch{}, fmt.Errorf("%w: %s cannot be blank", domain.ErrInvalidDate, field.name)
		}
		*field.dst = ts
	}
	return patch, nil
}

// decodeIDList requires a JSON array of strings. Absent input yields nil.
func decodeIDList(raw json.RawMessage) ([]string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, nil
	}
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("%w: assignedTo must be an array of user ids", domain.ErrInvalidAssignees)
	}
	ids := []string{}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAssignees, err)
	}
	return ids, nil
}

// writeErrorFrom maps service errors into structured HTTP responses.
func (h *Handler) writeErrorFrom(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, common.ErrUnauthenticated) {
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "unauthenticated",
			Message: err.Error(),
			Hint:    "Send " + common.HeaderUserID + " and " + common.HeaderUserRole + " headers.",
		})
		return
	}
	switch app.KindOf(err) {
	case app.KindValidation:
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case app.KindNotFound:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case app.KindForbidden:
		writeJSONError(w, http.StatusForbidden, APIError{
			Code:    "forbidden",
			Message: err.Error(),
		})
	case app.KindConflict:
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
		})
	case app.KindMismatch:
		writeJSONError(w, http.StatusUnprocessableEntity, APIError{
			Code:    "mismatch",
			Message: err.Error(),
		})
	default:
		if h.logger != nil {
			h.logger.Error("api request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		}
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "internal error",
		})
	}
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(domain.ErrValidation, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", domain.ErrValidation)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
