package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/agentdesk/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewInMemoryEnforcer("super_admin")
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestScopeForSuperAdminBypassesFilters(t *testing.T) {
	svc := newTestService(t)

	ctx := orgcontext.WithActorRole(context.Background(), "Super_Admin")
	scope, err := svc.ScopeFor(ctx)
	require.NoError(t, err)
	assert.True(t, scope.BypassFilters)
}

func TestScopeForRegularRoleKeepsFilters(t *testing.T) {
	svc := newTestService(t)

	for _, role := range []string{"", "agent", "admin"} {
		ctx := orgcontext.WithActorRole(context.Background(), role)
		scope, err := svc.ScopeFor(ctx)
		require.NoError(t, err)
		assert.False(t, scope.BypassFilters, "role %q", role)
	}
}

func TestCanValidatesInput(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Can(context.Background(), "", ObjectTenantFilters, ActionBypass)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.Can(context.Background(), "super_admin", "", ActionBypass)
	assert.ErrorIs(t, err, ErrInvalidObject)

	allowed, err := svc.Can(context.Background(), "super_admin", ObjectTenantFilters, "delete")
	require.NoError(t, err)
	assert.False(t, allowed)
}
