package authroles

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	"github.com/joblink/joblink-web/internal/ports"
	"golang.org/x/sync/singleflight"
)

var _ ports.RoleStore = (*SharedRoleStore)(nil)

// SharedRoleStore collapses concurrent lookups for the same user into one call to the wrapped store.
type SharedRoleStore struct {
	next    ports.RoleStore
	timeout time.Duration
	group   singleflight.Group
}

// NewSharedRoleStore wraps next. Each shared lookup is bounded by timeout (default 10s).
func NewSharedRoleStore(next ports.RoleStore, timeout time.Duration) *SharedRoleStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SharedRoleStore{next: next, timeout: timeout}
}

func (s *SharedRoleStore) LookupRole(ctx context.Context, userID string) (domainauth.Role, error) {
	ch := s.group.DoChan(userID, func() (any, error) {
		// Detached from the first caller; other callers may be sharing this flight.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.next.LookupRole(flightCtx, userID)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		role, ok := res.Val.(domainauth.Role)
		if !ok {
			return "", errors.New("shared role store: unexpected result type")
		}
		return role, nil
	}
}

// Chain tries each store in order and returns the first assignment found.
// Errors other than ports.ErrRoleNotFound stop the chain.
type Chain []ports.RoleStore

func (c Chain) LookupRole(ctx context.Context, userID string) (domainauth.Role, error) {
	for _, store := range c {
		role, err := store.LookupRole(ctx, userID)
		if errors.Is(err, ports.ErrRoleNotFound) {
			continue
		}
		return role, err
	}
	return "", ports.ErrRoleNotFound
}
