package auth

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"jobseeker": RoleJobseeker,
		"company":   RoleCompany,
		"admin":     RoleAdmin,
		"":          RoleUnknown,
		"root":      RoleUnknown,
	}
	for in, want := range cases {
		if got := ParseRole(in); got != want {
			t.Fatalf("ParseRole(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDashboardPath(t *testing.T) {
	cases := []struct {
		role Role
		want string
	}{
		{RoleCompany, "/company/dashboard"},
		{RoleAdmin, "/admin/dashboard"},
		{RoleJobseeker, "/jobseeker/dashboard"},
		{RoleUnknown, "/jobseeker/dashboard"},
		{"", "/jobseeker/dashboard"},
	}
	for _, tc := range cases {
		if got := DashboardPath(tc.role); got != tc.want {
			t.Fatalf("DashboardPath(%q) = %q, want %q", tc.role, got, tc.want)
		}
	}
}

func authed(role Role) State {
	u := &User{ID: "U123"}
	return State{User: u, Session: &Session{ID: "s", User: *u}, Role: role, IsAuthenticated: true}
}

func TestRequireAuth(t *testing.T) {
	if d := RequireAuth(InitialState(), ""); !d.Pending {
		t.Fatalf("expected pending while loading, got %+v", d)
	}
	if d := RequireAuth(SignedOutState(), RoleCompany); d.Redirect != SignInPath {
		t.Fatalf("expected sign-in redirect, got %+v", d)
	}
	if d := RequireAuth(authed(RoleJobseeker), RoleCompany); d.Redirect != "/jobseeker/dashboard" {
		t.Fatalf("expected jobseeker dashboard, got %+v", d)
	}
	if d := RequireAuth(authed(RoleCompany), RoleCompany); !d.Allowed() {
		t.Fatalf("expected allowed, got %+v", d)
	}
	if d := RequireAuth(authed(""), ""); !d.Allowed() {
		t.Fatalf("expected allowed without role requirement, got %+v", d)
	}
	resolving := authed("")
	resolving.Resolving = true
	if d := RequireAuth(resolving, RoleAdmin); !d.Pending {
		t.Fatalf("expected pending while resolving role, got %+v", d)
	}
}

func TestRedirectIfAuthenticated(t *testing.T) {
	if d := RedirectIfAuthenticated(InitialState()); !d.Pending {
		t.Fatalf("expected pending while loading, got %+v", d)
	}
	if d := RedirectIfAuthenticated(SignedOutState()); !d.Allowed() {
		t.Fatalf("expected allowed for visitors, got %+v", d)
	}
	if d := RedirectIfAuthenticated(authed("")); !d.Allowed() {
		t.Fatalf("expected allowed without resolved role, got %+v", d)
	}
	if d := RedirectIfAuthenticated(authed(RoleAdmin)); d.Redirect != "/admin/dashboard" {
		t.Fatalf("expected admin dashboard, got %+v", d)
	}
}

func TestState_CloneIsDeep(t *testing.T) {
	s := authed(RoleCompany)
	s.User.Metadata = map[string]string{"k": "v"}
	c := s.Clone()
	c.User.Metadata["k"] = "changed"
	c.User.ID = "other"
	if s.User.ID != "U123" || s.User.Metadata["k"] != "v" {
		t.Fatalf("clone shares memory with original: %+v", s.User)
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	if (Session{}).Expired(now) {
		t.Fatalf("zero expiry must not be expired")
	}
	if !(Session{ExpiresAt: now.Add(-time.Second)}).Expired(now) {
		t.Fatalf("expected expired")
	}
}
