package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import "time"

// Role represents a JobLink authorization role.
// Keep string form for easy persistence and JSON.
// The zero value means no role has been resolved.
type Role string

const (
	RoleJobseeker Role = "jobseeker"
	RoleCompany   Role = "company"
	RoleAdmin     Role = "admin"
	RoleUnknown   Role = "unknown"
)

// ParseRole maps a stored role string to a Role. Unrecognised values map to RoleUnknown.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleJobseeker, RoleCompany, RoleAdmin:
		return Role(s)
	default:
		return RoleUnknown
	}
}

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	return r == RoleJobseeker || r == RoleCompany || r == RoleAdmin
}

// Event names the kind of session change delivered by an identity provider.
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
	// EventSubscriptionLost is emitted by adapters when the session stream ends unexpectedly.
	EventSubscriptionLost Event = "SUBSCRIPTION_LOST"
)

// Identity represents the authenticated principal returned by a login flow.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID    string
	FirstName string
	LastName  string
	Email     string
	ExpiresAt time.Time // absolute expiry from IdP token
}

// User is the identity record attached to a live session.
type User struct {
	ID        string            `json:"id"`
	Email     string            `json:"email,omitempty"`
	FirstName string            `json:"first_name,omitempty"`
	LastName  string            `json:"last_name,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Session is the provider-issued credential bundle for an authenticated user.
// It is owned by the provider; the controller only references it.
type Session struct {
	ID          string    `json:"id"`
	AccessToken string    `json:"access_token,omitempty"`
	User        User      `json:"user"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// NewSession builds a session for an identity.
func NewSession(id string, ident Identity) Session {
	return Session{
		ID: id,
		User: User{
			ID:        ident.UserID,
			Email:     ident.Email,
			FirstName: ident.FirstName,
			LastName:  ident.LastName,
		},
		ExpiresAt: ident.ExpiresAt,
	}
}

// State is the controller-owned snapshot of who is logged in.
type State struct {
	User            *User    `json:"user"`
	Session         *Session `json:"session"`
	Role            Role     `json:"role,omitempty"`
	Loading         bool     `json:"loading"`
	IsAuthenticated bool     `json:"is_authenticated"`

	// Resolving is true while a role lookup for the current user is in flight.
	Resolving bool `json:"resolving"`
	// Generation increments whenever the identity behind the state changes.
	Generation uint64 `json:"generation"`
}

// InitialState is the state of a freshly started controller.
func InitialState() State {
	return State{Loading: true}
}

// SignedOutState is the empty, fully loaded state.
func SignedOutState() State {
	return State{}
}

// UserID returns the current user id or "" when unauthenticated.
func (s State) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// Clone returns a deep copy so observers cannot mutate controller state.
func (s State) Clone() State {
	out := s
	if s.User != nil {
		u := cloneUser(*s.User)
		out.User = &u
	}
	if s.Session != nil {
		sess := *s.Session
		sess.User = cloneUser(s.Session.User)
		out.Session = &sess
	}
	return out
}

func cloneUser(u User) User {
	if u.Metadata != nil {
		md := make(map[string]string, len(u.Metadata))
		for k, v := range u.Metadata {
			md[k] = v
		}
		u.Metadata = md
	}
	return u
}
