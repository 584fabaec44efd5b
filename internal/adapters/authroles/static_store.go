package authroles

import (
	"context"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	"github.com/joblink/joblink-web/internal/ports"
)

var _ ports.RoleStore = StaticRoleStore{}

// StaticRoleStore maps user ids to roles by simple list membership.
// Admin wins over company, company over jobseeker, when a user appears in several lists.
type StaticRoleStore struct {
	AdminUsers     []string
	CompanyUsers   []string
	JobseekerUsers []string
}

func (s StaticRoleStore) LookupRole(_ context.Context, userID string) (domainauth.Role, error) {
	switch {
	case userID == "":
		return "", ports.ErrRoleNotFound
	case contains(s.AdminUsers, userID):
		return domainauth.RoleAdmin, nil
	case contains(s.CompanyUsers, userID):
		return domainauth.RoleCompany, nil
	case contains(s.JobseekerUsers, userID):
		return domainauth.RoleJobseeker, nil
	}
	return "", ports.ErrRoleNotFound
}

// Empty reports whether no assignments are configured.
func (s StaticRoleStore) Empty() bool {
	return len(s.AdminUsers) == 0 && len(s.CompanyUsers) == 0 && len(s.JobseekerUsers) == 0
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
