package data

import (
	"context"
	"testing"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	apperrors "github.com/joblink/joblink-web/internal/errors"
	"github.com/joblink/joblink-web/internal/ports"
	"github.com/joblink/joblink-web/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleRepo_Postgres(t *testing.T) {
	db := testutil.SetupAutoDB(t)
	repo := NewRoleRepo(db)
	ctx := context.Background()

	_, err := repo.LookupRole(ctx, "U1")
	require.ErrorIs(t, err, ports.ErrRoleNotFound)

	require.NoError(t, repo.Assign(ctx, "U1", domainauth.RoleCompany))
	require.NoError(t, repo.Assign(ctx, "U1", domainauth.RoleAdmin))
	role, err := repo.LookupRole(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, role)

	require.NoError(t, repo.AssignMany(ctx, []RoleAssignment{
		{UserID: "C1", Role: domainauth.RoleCompany},
		{UserID: "J1", Role: domainauth.RoleJobseeker},
	}))
	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "C1", all[0].UserID)
	assert.False(t, all[0].UpdatedAt.IsZero())

	require.NoError(t, repo.Revoke(ctx, "U1"))
	assert.True(t, apperrors.IsNotFound(repo.Revoke(ctx, "U1")))
}
