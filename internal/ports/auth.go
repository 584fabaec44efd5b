package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
)

// ErrRoleNotFound is returned by a RoleStore when no assignment exists for a user.
var ErrRoleNotFound = errors.New("role assignment not found")

// SessionChangeFunc receives session changes from an identity provider.
// A nil session means no user is signed in.
// Implementations must not call back into the provider that delivered the event.
type SessionChangeFunc func(event domainauth.Event, session *domainauth.Session)

// Subscription is a handle to a live session-change stream.
type Subscription interface {
	Unsubscribe()
}

// IdentityProvider is the external backend that owns sessions.
type IdentityProvider interface {
	// Subscribe registers fn for session changes until the returned handle is released.
	Subscribe(fn SessionChangeFunc) (Subscription, error)

	// CurrentSession returns the already-established session, or nil when nobody is signed in.
	CurrentSession(ctx context.Context) (*domainauth.Session, error)

	// SignOut terminates the current session.
	SignOut(ctx context.Context) error
}

// SessionIssuer establishes a provider session for an identity obtained from a login flow.
type SessionIssuer interface {
	SignIn(ctx context.Context, ident domainauth.Identity) (domainauth.Session, error)
}

// RoleStore looks up role assignments by user id.
type RoleStore interface {
	// LookupRole returns the assigned role, or ErrRoleNotFound when the user has no record.
	LookupRole(ctx context.Context, userID string) (domainauth.Role, error)
}

// Navigator performs the side effect of a guard redirect.
type Navigator interface {
	Redirect(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Redirect calls f(path).
func (f NavigatorFunc) Redirect(path string) { f(path) }

// BeginInput carries inputs for initiating a login flow.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// LoginProvider initiates and completes an interactive login against an IdP.
type LoginProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}
