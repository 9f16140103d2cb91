package rbac

import "testing"

func TestCan(t *testing.T) {
	tests := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleViewer, ActionRead, true},
		{RoleViewer, ActionEdit, false},
		{RoleViewer, ActionComment, false},
		{RoleAuthor, ActionEdit, true},
		{RoleAuthor, ActionComment, true},
		{RoleAuthor, ActionApprove, false},
		{RoleAuthor, ActionPublish, false},
		{RoleReviewer, ActionApprove, true},
		{RoleReviewer, ActionPublish, true},
		{RoleReviewer, ActionAdmin, false},
		{RoleAdmin, ActionAdmin, true},
		{Role("unknown"), ActionRead, false},
	}
	for _, tt := range tests {
		if got := Can(tt.role, tt.action); got != tt.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tt.role, tt.action, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("reviewer") != RoleReviewer {
		t.Fatal("expected reviewer to normalize to itself")
	}
	if Normalize("superuser") != RoleViewer {
		t.Fatal("expected unknown role to normalize to viewer")
	}
}
