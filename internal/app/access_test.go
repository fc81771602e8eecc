package app

import (
	"context"
	"errors"
	"testing"

	"github.com/hylla/timeboard/internal/domain"
)

func TestAuthorize(t *testing.T) {
	admin := Caller{ID: "a", Role: domain.RoleAdmin}
	member := Caller{ID: "m", Role: domain.RoleMember}
	assigned := Resource{AssignedTo: []string{"m"}}
	owned := Resource{OwnerID: "m"}

	cases := []struct {
		name   string
		caller Caller
		res    Resource
		action Action
		want   Verdict
	}{
		{name: "admin creates", caller: admin, action: ActionCreateTask, want: VerdictAllow},
		{name: "member creates", caller: member, action: ActionCreateTask, want: VerdictAdminRequired},
		{name: "member remarks", caller: member, res: assigned, action: ActionAddRemark, want: VerdictAdminRequired},
		{name: "member deletes", caller: member, res: assigned, action: ActionDeleteTask, want: VerdictAdminRequired},
		{name: "assignee comments", caller: member, res: assigned, action: ActionAddComment, want: VerdictAllow},
		{name: "stranger comments", caller: member, res: Resource{AssignedTo: []string{"x"}}, action: ActionAddComment, want: VerdictNotAssigned},
		{name: "assignee tracks", caller: member, res: assigned, action: ActionTrackTime, want: VerdictAllow},
		{name: "owner stops", caller: member, res: owned, action: ActionStopTimer, want: VerdictAllow},
		{name: "assignee stops foreign log", caller: member, res: Resource{AssignedTo: []string{"m"}, OwnerID: "x"}, action: ActionStopTimer, want: VerdictNotOwner},
		{name: "admin stops foreign log", caller: admin, res: Resource{OwnerID: "x"}, action: ActionStopTimer, want: VerdictAllow},
		{name: "member reads all time logs", caller: member, res: owned, action: ActionViewAllTimeLogs, want: VerdictAdminRequired},
		{name: "admin reads all time logs", caller: admin, action: ActionViewAllTimeLogs, want: VerdictAllow},
		{name: "unknown action", caller: member, res: assigned, action: "launch", want: VerdictUnknownAction},
		{name: "blank member id", caller: Caller{Role: domain.RoleMember}, res: Resource{OwnerID: ""}, action: ActionViewTimeLog, want: VerdictNotOwner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Authorize(tc.caller, tc.res, tc.action)
			if got.Verdict != tc.want {
				t.Fatalf("Authorize() verdict = %q, want %q", got.Verdict, tc.want)
			}
			if got.Allowed() != (tc.want == VerdictAllow) {
				t.Fatalf("Allowed() = %v for verdict %q", got.Allowed(), got.Verdict)
			}
			err := got.Err()
			if tc.want == VerdictAllow && err != nil {
				t.Fatalf("Err() = %v, want nil", err)
			}
			if tc.want != VerdictAllow && !errors.Is(err, ErrForbidden) {
				t.Fatalf("Err() = %v, want ErrForbidden", err)
			}
		})
	}
}

func TestCallerContextRoundTrip(t *testing.T) {
	ctx := WithCaller(context.Background(), Caller{ID: " u1 ", Role: "superuser"})
	caller, ok := CallerFromContext(ctx)
	if !ok {
		t.Fatal("expected caller in context")
	}
	if caller.ID != "u1" || caller.Role != domain.RoleMember {
		t.Fatalf("unexpected caller %#v", caller)
	}
	if _, ok := CallerFromContext(WithCaller(context.Background(), Caller{ID: "  "})); ok {
		t.Fatal("blank caller id must not resolve")
	}
	if _, ok := CallerFromContext(context.Background()); ok {
		t.Fatal("empty context must not resolve")
	}
}
