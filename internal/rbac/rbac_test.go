package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer vote", role: RoleViewer, action: ActionVote, allow: false},
		{name: "member vote", role: RoleMember, action: ActionVote, allow: true},
		{name: "member edit", role: RoleMember, action: ActionEdit, allow: false},
		{name: "facilitator edit", role: RoleFacilitator, action: ActionEdit, allow: true},
		{name: "facilitator close", role: RoleFacilitator, action: ActionClose, allow: false},
		{name: "admin close", role: RoleAdmin, action: ActionClose, allow: true},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalizeDefaultsToViewer(t *testing.T) {
	if got := Normalize("superuser"); got != RoleViewer {
		t.Fatalf("Normalize(superuser) = %q, want viewer", got)
	}
	if got := Normalize("facilitator"); got != RoleFacilitator {
		t.Fatalf("Normalize(facilitator) = %q, want facilitator", got)
	}
}
