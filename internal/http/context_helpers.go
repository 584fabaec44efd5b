package httpx

import (
	"context"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
)

// authStateKey is an unexported context key type to avoid collisions across packages.
type authStateKey struct{}

// SetAuthStateInContext returns a child context carrying the auth state a guard admitted the request with.
func SetAuthStateInContext(ctx context.Context, st domainauth.State) context.Context {
	return context.WithValue(ctx, authStateKey{}, st)
}

// AuthStateFromContext returns the auth state stored by a guard and whether one was present.
func AuthStateFromContext(ctx context.Context) (domainauth.State, bool) {
	st, ok := ctx.Value(authStateKey{}).(domainauth.State)
	return st, ok
}

// CurrentUser returns the signed-in user for the request, or nil.
func CurrentUser(ctx context.Context) *domainauth.User {
	st, ok := AuthStateFromContext(ctx)
	if !ok || !st.IsAuthenticated {
		return nil
	}
	return st.User
}
