package app

import (
	"fmt"
	"slices"
)

// Action names a capability checked against a caller and resource.
type Action string

// Action values.
const (
	ActionCreateTask    Action = "create_task"
	ActionEditTask      Action = "edit_task"
	ActionDeleteTask    Action = "delete_task"
	ActionAddRemark     Action = "add_remark"
	ActionUpdateStatus  Action = "update_status"
	ActionAddComment    Action = "add_comment"
	ActionViewTask      Action = "view_task"
	ActionTrackTime     Action = "track_time"
	ActionStopTimer     Action = "stop_timer"
	ActionViewTimeLog   Action = "view_time_log"
	ActionListUserTasks Action = "list_user_tasks"
	// ActionViewAllTimeLogs covers cross-user time log reports.
	ActionViewAllTimeLogs Action = "view_all_time_logs"
)

// adminOnlyActions require the admin role regardless of resource relationships.
var adminOnlyActions = []Action{
	ActionCreateTask,
	ActionEditTask,
	ActionDeleteTask,
	ActionAddRemark,
	ActionListUserTasks,
	ActionViewAllTimeLogs,
}

// ownerActions are granted to the owning user of a time log.
var ownerActions = []Action{
	ActionStopTimer,
	ActionViewTimeLog,
}

// Resource carries the relationships an access decision depends on.
type Resource struct {
	AssignedTo []string
	OwnerID    string
}

// Verdict tags an access decision.
type Verdict string

// Verdict values.
const (
	VerdictAllow         Verdict = "allow"
	VerdictAdminRequired Verdict = "admin_required"
	VerdictNotAssigned   Verdict = "not_assigned"
	VerdictNotOwner      Verdict = "not_owner"
	VerdictUnknownAction Verdict = "unknown_action"
)

// Decision is the tagged result of Authorize.
type Decision struct {
	Verdict Verdict
	Action  Action
}

// Allowed reports whether the decision grants the action.
func (d Decision) Allowed() bool {
	return d.Verdict == VerdictAllow
}

// Err converts a denial into an ErrForbidden-wrapped error.
func (d Decision) Err() error {
	switch d.Verdict {
	case VerdictAllow:
		return nil
	case VerdictAdminRequired:
		return fmt.Errorf("%w: %s requires the admin role", ErrForbidden, d.Action)
	case VerdictNotAssigned:
		return fmt.Errorf("%w: %s requires assignment to the task", ErrForbidden, d.Action)
	case VerdictNotOwner:
		return fmt.Errorf("%w: %s requires ownership of the time log", ErrForbidden, d.Action)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrForbidden, d.Action)
	}
}

// Authorize is the single capability check consulted by every service operation.
// Admins may do everything; members act on tasks they are assigned to and logs they own.
func Authorize(caller Caller, res Resource, action Action) Decision {
	decision := Decision{Action: action, Verdict: VerdictAllow}
	if caller.IsAdmin() {
		return decision
	}
	switch {
	case slices.Contains(adminOnlyActions, action):
		decision.Verdict = VerdictAdminRequired
	case slices.Contains(ownerActions, action):
		if caller.ID == "" || res.OwnerID != caller.ID {
			decision.Verdict = VerdictNotOwner
		}
	case action == ActionUpdateStatus, action == ActionAddComment, action == ActionViewTask, action == ActionTrackTime:
		if caller.ID == "" || !slices.Contains(res.AssignedTo, caller.ID) {
			decision.Verdict = VerdictNotAssigned
		}
	default:
		decision.Verdict = VerdictUnknownAction
	}
	return decision
}
