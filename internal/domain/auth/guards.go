package auth

// Navigation targets used by the guards.
const (
	SignInPath             = "/auth"
	JobseekerDashboardPath = "/jobseeker/dashboard"
	CompanyDashboardPath   = "/company/dashboard"
	AdminDashboardPath     = "/admin/dashboard"
)

// DashboardPath maps a role to its landing dashboard.
// Anything other than company or admin, including no role, lands on the jobseeker dashboard.
func DashboardPath(r Role) string {
	switch r {
	case RoleCompany:
		return CompanyDashboardPath
	case RoleAdmin:
		return AdminDashboardPath
	default:
		return JobseekerDashboardPath
	}
}

// Decision is the outcome of evaluating a guard against a State.
type Decision struct {
	// Pending means the state is not settled enough to judge; nothing should happen yet.
	Pending bool
	// Redirect is the path to navigate to, or "" to allow the view to render.
	Redirect string
}

// Allowed reports whether the guarded view may render.
func (d Decision) Allowed() bool {
	return !d.Pending && d.Redirect == ""
}

// RequireAuth decides access for a view that needs an authenticated user and,
// optionally, a specific role. An empty requiredRole accepts any role.
func RequireAuth(s State, requiredRole Role) Decision {
	if s.Loading {
		return Decision{Pending: true}
	}
	if !s.IsAuthenticated {
		return Decision{Redirect: SignInPath}
	}
	if requiredRole == "" {
		return Decision{}
	}
	if s.Resolving {
		return Decision{Pending: true}
	}
	if s.Role != requiredRole {
		return Decision{Redirect: DashboardPath(s.Role)}
	}
	return Decision{}
}

// RedirectIfAuthenticated decides access for public pages: signed-in visitors with a
// resolved role are sent to their dashboard.
func RedirectIfAuthenticated(s State) Decision {
	if s.Loading {
		return Decision{Pending: true}
	}
	if s.IsAuthenticated && s.Role != "" {
		return Decision{Redirect: DashboardPath(s.Role)}
	}
	return Decision{}
}
