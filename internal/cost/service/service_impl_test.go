package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/cost/domain"
	"github.com/smallbiznis/agentdesk/internal/cost/repository"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	orgrepo "github.com/smallbiznis/agentdesk/internal/organization/repository"
	"github.com/smallbiznis/agentdesk/internal/schema/schematest"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	db := schematest.OpenSQLite(t)
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	org := orgdomain.Organization{
		ID:          node.Generate(),
		Name:        "acme",
		Slug:        "acme",
		CreditsPlan: orgdomain.PlanConversation,
		CreatedAt:   clk.Now(),
		UpdatedAt:   clk.Now(),
	}
	require.NoError(t, db.Create(&org).Error)

	return New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    repository.Provide(),
		OrgRepo: orgrepo.Provide(),
	}), clk
}

func TestCreateValidatesTypeAndAmount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "acme", domain.CreateCostRequest{Type: "sms", Amount: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	_, err = svc.Create(ctx, "acme", domain.CreateCostRequest{Type: "call", Amount: -0.5})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Create(ctx, "ghost", domain.CreateCostRequest{Type: "call", Amount: 1})
	assert.ErrorIs(t, err, orgdomain.ErrNotFound)

	callID := " call-1 "
	cost, err := svc.Create(ctx, "acme", domain.CreateCostRequest{Type: "CALL", Amount: 0, CallID: &callID})
	require.NoError(t, err)
	assert.Equal(t, domain.CostCall, cost.Type)
	require.NotNil(t, cost.CallID)
	assert.Equal(t, "call-1", *cost.CallID)
}

func TestListFiltersAndDeleteHides(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "acme", domain.CreateCostRequest{Type: "message", Amount: 0.2})
	require.NoError(t, err)
	clk.Advance(time.Second)
	_, err = svc.Create(ctx, "acme", domain.CreateCostRequest{Type: "phone_number", Amount: 3})
	require.NoError(t, err)
	clk.Advance(time.Second)
	_, err = svc.Create(ctx, "acme", domain.CreateCostRequest{Type: "message", Amount: 0.4})
	require.NoError(t, err)

	all, err := svc.List(ctx, "acme", domain.ListCostRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Equal(t, 0.4, all.Costs[0].Amount)

	messages, err := svc.List(ctx, "acme", domain.ListCostRequest{Type: "message", Pagination: pagination.Pagination{Limit: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), messages.Total)
	assert.Len(t, messages.Costs, 1)

	require.NoError(t, svc.Delete(ctx, "acme", first.ID.String()))
	assert.ErrorIs(t, svc.Delete(ctx, "acme", first.ID.String()), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "acme", "abc"), domain.ErrInvalidID)

	messages, err = svc.List(ctx, "acme", domain.ListCostRequest{Type: "message"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), messages.Total)

	_, err = svc.List(ctx, "acme", domain.ListCostRequest{Type: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidType)
}
