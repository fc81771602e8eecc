package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/timeboard/internal/app"
	"github.com/hylla/timeboard/internal/domain"
)

// allStatuses is the status filter value that disables status filtering.
const allStatuses = "all"

// ParseStatusFilter parses an optional status filter. Empty and "all" mean no filter.
func ParseStatusFilter(raw string) (domain.Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, allStatuses) {
		return "", nil
	}
	return domain.ParseStatus(raw)
}

// ParseBoolFlag parses an optional boolean query value. Empty means false.
func ParseBoolFlag(name, raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", domain.ErrValidation, name)
	}
	return v, nil
}

// overdueKeys are the accepted names for the overdue flag, canonical first.
var overdueKeys = []string{"isOverdue", "overdue"}

// ParseListFilter builds a list filter from named string values. get returns
// "" for absent keys, so it fits url.Values.Get and tool argument lookups.
func ParseListFilter(get func(string) string) (app.ListTasksFilter, error) {
	status, err := ParseStatusFilter(get("status"))
	if err != nil {
		return app.ListTasksFilter{}, err
	}
	overdue, err := parseOverdueFlag(get)
	if err != nil {
		return app.ListTasksFilter{}, err
	}
	return app.ListTasksFilter{
		ProjectID:      strings.TrimSpace(get("projectId")),
		AssignedUserID: strings.TrimSpace(get("assignedUserId")),
		Status:         status,
		Overdue:        overdue,
		DueDate:        strings.TrimSpace(get("dueDate")),
		CreatedDate:    strings.TrimSpace(get("createdDate")),
		SortBy:         app.TaskSort(strings.TrimSpace(get("sortBy"))),
	}, nil
}

// parseOverdueFlag reads the first overdue key that carries a value.
func parseOverdueFlag(get func(string) string) (bool, error) {
	for _, key := range overdueKeys {
		if raw := get(key); strings.TrimSpace(raw) != "" {
			return ParseBoolFlag(key, raw)
		}
	}
	return false, nil
}

// ParseTimestamp accepts RFC 3339 instants or YYYY-MM-DD days (UTC midnight).
// Empty input yields nil.
func ParseTimestamp(name, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &ts, nil
	}
	if day, err := time.ParseInLocation(domain.DayLayout, raw, time.UTC); err == nil {
		return &day, nil
	}
	return nil, fmt.Errorf("%w: %s must be RFC 3339 or %s", domain.ErrInvalidDate, name, domain.DayLayout)
}
