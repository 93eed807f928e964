package rbac

import (
	"testing"

	"github.com/arturkryukov/artstore/workstation/internal/domain/model"
)

func TestHighestRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  string
	}{
		{name: "пустой набор", roles: nil, want: ""},
		{name: "одна роль", roles: []string{model.RoleTeam}, want: model.RoleTeam},
		{name: "client и admin", roles: []string{model.RoleClient, model.RoleAdmin}, want: model.RoleAdmin},
		{name: "team и client", roles: []string{model.RoleTeam, model.RoleClient}, want: model.RoleTeam},
		{name: "все роли", roles: []string{model.RoleClient, model.RoleAdmin, model.RoleTeam}, want: model.RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HighestRole(tt.roles); got != tt.want {
				t.Errorf("HighestRole(%v) = %q, хотели %q", tt.roles, got, tt.want)
			}
		})
	}
}

func TestMapGroupsToRole(t *testing.T) {
	mapping := GroupMapping{
		AdminGroups:  []string{"ws-admins", "superusers"},
		TeamGroups:   []string{"ws-team"},
		ClientGroups: []string{"customers"},
	}

	tests := []struct {
		name   string
		groups []string
		want   string
	}{
		{name: "admin-группа", groups: []string{"ws-admins"}, want: model.RoleAdmin},
		{name: "team-группа", groups: []string{"ws-team"}, want: model.RoleTeam},
		{name: "client-группа", groups: []string{"customers"}, want: model.RoleClient},
		{name: "team и admin — побеждает admin", groups: []string{"ws-team", "superusers"}, want: model.RoleAdmin},
		{name: "неизвестные группы — CLIENT", groups: []string{"random"}, want: model.RoleClient},
		{name: "без групп — CLIENT", groups: nil, want: model.RoleClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapGroupsToRole(tt.groups, mapping); got != tt.want {
				t.Errorf("MapGroupsToRole(%v) = %q, хотели %q", tt.groups, got, tt.want)
			}
		})
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range []string{model.RoleClient, model.RoleTeam, model.RoleAdmin} {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	for _, r := range []string{"", "admin", "OWNER"} {
		if IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = true", r)
		}
	}
}

func TestCanViewCanManage(t *testing.T) {
	tests := []struct {
		role       string
		wantView   bool
		wantManage bool
	}{
		{role: model.RoleClient, wantView: false, wantManage: false},
		{role: model.RoleTeam, wantView: true, wantManage: false},
		{role: model.RoleAdmin, wantView: true, wantManage: true},
		{role: "", wantView: false, wantManage: false},
	}

	for _, tt := range tests {
		if got := CanView(tt.role); got != tt.wantView {
			t.Errorf("CanView(%q) = %v, хотели %v", tt.role, got, tt.wantView)
		}
		if got := CanManage(tt.role); got != tt.wantManage {
			t.Errorf("CanManage(%q) = %v, хотели %v", tt.role, got, tt.wantManage)
		}
	}
}
