package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/config"
	"github.com/smallbiznis/agentdesk/internal/lead/domain"
	leadrepo "github.com/smallbiznis/agentdesk/internal/lead/repository"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	orgrepo "github.com/smallbiznis/agentdesk/internal/organization/repository"
	"github.com/smallbiznis/agentdesk/internal/realtime"
	"github.com/smallbiznis/agentdesk/internal/schema/schematest"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	clock *clock.FakeClock
	node  *snowflake.Node
	hub   *realtime.Hub
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := schematest.OpenSQLite(t)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	clk := clock.NewFakeClock(baseTime)
	hub := realtime.NewHub()

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      leadrepo.Provide(),
		OrgRepo:   orgrepo.Provide(),
		Ledger:    config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig()),
		Publisher: realtime.NewLocalPublisher(hub),
	})
	return fixture{db: db, svc: svc, clock: clk, node: node, hub: hub}
}

func (f fixture) seedOrg(t *testing.T, slug string) orgdomain.Organization {
	t.Helper()
	org := orgdomain.Organization{
		ID:          f.node.Generate(),
		Name:        slug,
		Slug:        slug,
		CreditsPlan: orgdomain.PlanConversation,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
	require.NoError(t, f.db.Create(&org).Error)
	return org
}

func (f fixture) seedLead(t *testing.T, orgID snowflake.ID, name string, followUp *time.Time, createdAt time.Time, mutate func(*domain.Lead)) domain.Lead {
	t.Helper()
	lead := domain.Lead{
		ID:           f.node.Generate(),
		OrgID:        orgID,
		Name:         name,
		Status:       domain.DefaultStatus,
		NextFollowUp: followUp,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	if mutate != nil {
		mutate(&lead)
	}
	require.NoError(t, f.db.Create(&lead).Error)
	return lead
}

func at(d time.Duration) *time.Time {
	t := baseTime.Add(d)
	return &t
}

func names(items []domain.PriorityLead) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Name)
	}
	return out
}

func TestListPriorityOrderingAndUrgency(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme")

	f.seedLead(t, org.ID, "L1", at(-60*time.Minute), baseTime.Add(-48*time.Hour), nil)
	f.seedLead(t, org.ID, "L2", at(-120*time.Minute), baseTime.Add(-48*time.Hour), nil)
	f.seedLead(t, org.ID, "L3", at(10*time.Minute), baseTime.Add(-48*time.Hour), nil)
	f.seedLead(t, org.ID, "L4", nil, baseTime.Add(-48*time.Hour), nil)

	resp, err := f.svc.ListPriority(context.Background(), domain.PriorityQuery{OrgRef: "acme"})
	require.NoError(t, err)
	assert.Equal(t, []string{"L2", "L1"}, names(resp.Leads))
	assert.Equal(t, int64(2), resp.Total)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 10, resp.Limit)

	assert.Equal(t, int64(120), resp.Leads[0].UrgencyMinutes)
	assert.True(t, resp.Leads[0].IsOverdue)
	assert.Equal(t, int64(60), resp.Leads[1].UrgencyMinutes)
}

func TestListPriorityTieBreaksByNewestCreated(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme")

	f.seedLead(t, org.ID, "older", at(-30*time.Minute), baseTime.Add(-2*time.Hour), nil)
	f.seedLead(t, org.ID, "newer", at(-30*time.Minute), baseTime.Add(-1*time.Hour), nil)

	resp, err := f.svc.ListPriority(context.Background(), domain.PriorityQuery{OrgRef: "acme"})
	require.NoError(t, err)
	assert.Equal(t, []string{"newer", "older"}, names(resp.Leads))
}

func TestListPriorityUrgencyUsesNowNotEndBound(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme")
	f.seedLead(t, org.ID, "future", at(90*time.Second), baseTime.Add(-time.Hour), nil)

	end := baseTime.Add(time.Hour)
	resp, err := f.svc.ListPriority(context.Background(), domain.PriorityQuery{OrgRef: "acme", End: &end})
	require.NoError(t, err)
	require.Len(t, resp.Leads, 1)
	assert.Equal(t, int64(-2), resp.Leads[0].UrgencyMinutes)
	assert.False(t, resp.Leads[0].IsOverdue)
}

func TestListPriorityFilters(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme")
	other := f.seedOrg(t, "other")
	created := baseTime.Add(-24 * time.Hour)

	f.seedLead(t, org.ID, "indian", at(-5*time.Minute), created, func(l *domain.Lead) { l.IsIndian = 1 })
	f.seedLead(t, org.ID, "busy", at(-6*time.Minute), created, func(l *domain.Lead) { l.InProcess = 1 })
	f.seedLead(t, org.ID, "old", at(-300*time.Minute), created, nil)
	f.seedLead(t, org.ID, "deleted", at(-7*time.Minute), created, func(l *domain.Lead) { l.IsDeleted = true })
	f.seedLead(t, other.ID, "foreign", at(-8*time.Minute), created, nil)

	ctx := context.Background()

	resp, err := f.svc.ListPriority(ctx, domain.PriorityQuery{OrgRef: "acme"})
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "indian"}, names(resp.Leads))

	one := 1
	resp, err = f.svc.ListPriority(ctx, domain.PriorityQuery{OrgRef: "acme", InProcess: &one})
	require.NoError(t, err)
	assert.Equal(t, []string{"busy"}, names(resp.Leads))

	resp, err = f.svc.ListPriority(ctx, domain.PriorityQuery{OrgRef: "acme", IsIndian: &one})
	require.NoError(t, err)
	assert.Equal(t, []string{"indian"}, names(resp.Leads))

	start := baseTime.Add(-time.Hour)
	resp, err = f.svc.ListPriority(ctx, domain.PriorityQuery{OrgRef: "acme", Start: &start})
	require.NoError(t, err)
	assert.Equal(t, []string{"indian"}, names(resp.Leads))

	two := 2
	_, err = f.svc.ListPriority(ctx, domain.PriorityQuery{OrgRef: "acme", IsIndian: &two})
	assert.ErrorIs(t, err, domain.ErrInvalidFlag)

	end := baseTime.Add(-2 * time.Hour)
	_, err = f.svc.ListPriority(ctx, domain.PriorityQuery{OrgRef: "acme", Start: &start, End: &end})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestListPriorityPagination(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme")
	for i := 1; i <= 5; i++ {
		f.seedLead(t, org.ID, string(rune('a'+i-1)), at(-time.Duration(i)*time.Minute), baseTime.Add(-time.Hour), nil)
	}

	resp, err := f.svc.ListPriority(context.Background(), domain.PriorityQuery{
		OrgRef:     "acme",
		Pagination: pagination.Pagination{Page: 2, Limit: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.Total)
	assert.Equal(t, []string{"c", "b"}, names(resp.Leads))

	resp, err = f.svc.ListPriority(context.Background(), domain.PriorityQuery{
		OrgRef:     "acme",
		Pagination: pagination.Pagination{Page: 0, Limit: 1000},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 100, resp.Limit)
	assert.Len(t, resp.Leads, 5)
}

func TestGlobalPriorityRequiresBypass(t *testing.T) {
	f := newFixture(t)
	a := f.seedOrg(t, "a")
	b := f.seedOrg(t, "b")
	f.seedLead(t, a.ID, "from-a", at(-2*time.Minute), baseTime.Add(-time.Hour), nil)
	f.seedLead(t, b.ID, "from-b", at(-1*time.Minute), baseTime.Add(-time.Hour), nil)

	_, err := f.svc.ListPriority(context.Background(), domain.PriorityQuery{})
	assert.ErrorIs(t, err, domain.ErrGlobalScope)

	ctx := tenancy.WithScope(context.Background(), tenancy.Scope{BypassFilters: true})
	resp, err := f.svc.ListPriority(ctx, domain.PriorityQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"from-a", "from-b"}, names(resp.Leads))
}

func TestCreateAndUpdateLead(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t, "acme")
	ctx := context.Background()

	phone := " +91 99999 "
	lead, err := f.svc.Create(ctx, "acme", domain.CreateLeadRequest{
		Name:           "Asha",
		Email:          "Asha@Example.com",
		Phone:          &phone,
		IsIndian:       1,
		AdditionalInfo: datatypes.JSON(`{"budget":"high"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultStatus, lead.Status)
	assert.Equal(t, "asha@example.com", lead.Email)
	require.NotNil(t, lead.Phone)
	assert.Equal(t, "+91 99999", *lead.Phone)

	_, err = f.svc.Create(ctx, "acme", domain.CreateLeadRequest{Name: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	_, err = f.svc.Create(ctx, "acme", domain.CreateLeadRequest{Name: "x", Email: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
	_, err = f.svc.Create(ctx, "acme", domain.CreateLeadRequest{Name: "x", IsIndian: 3})
	assert.ErrorIs(t, err, domain.ErrInvalidFlag)
	_, err = f.svc.Create(ctx, "acme", domain.CreateLeadRequest{Name: "x", AdditionalInfo: datatypes.JSON(`{`)})
	assert.ErrorIs(t, err, domain.ErrInvalidJSON)
	_, err = f.svc.Create(ctx, "missing", domain.CreateLeadRequest{Name: "x"})
	assert.ErrorIs(t, err, orgdomain.ErrNotFound)

	status := "qualified"
	updated, err := f.svc.Update(ctx, "acme", lead.ID.String(), domain.UpdateLeadRequest{
		Status:       &status,
		NextFollowUp: at(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "qualified", updated.Status)
	require.NotNil(t, updated.NextFollowUp)
	assert.True(t, updated.NextFollowUp.Equal(baseTime.Add(time.Hour)))

	cleared, err := f.svc.Update(ctx, "acme", lead.ID.String(), domain.UpdateLeadRequest{ClearNextFollowUp: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.NextFollowUp)

	_, err = f.svc.Get(ctx, "acme", "not-a-number")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestScheduleFollowUpRequeuesLead(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme")
	lead := f.seedLead(t, org.ID, "worked", nil, baseTime.Add(-time.Hour), func(l *domain.Lead) { l.InProcess = 1 })

	sub, _, err := f.hub.Subscribe(org.ID.String())
	require.NoError(t, err)
	defer sub.Close()

	updated, err := f.svc.ScheduleFollowUp(context.Background(), "acme", lead.ID.String(), baseTime.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, updated.FollowUps)
	assert.Equal(t, 0, updated.InProcess)

	select {
	case event := <-sub.Events():
		assert.Equal(t, realtime.EventLeadUpdated, event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no lead event")
	}

	resp, err := f.svc.ListPriority(context.Background(), domain.PriorityQuery{OrgRef: "acme"})
	require.NoError(t, err)
	assert.Equal(t, []string{"worked"}, names(resp.Leads))

	_, err = f.svc.SetInProcess(context.Background(), "acme", lead.ID.String(), true)
	require.NoError(t, err)
	resp, err = f.svc.ListPriority(context.Background(), domain.PriorityQuery{OrgRef: "acme"})
	require.NoError(t, err)
	assert.Empty(t, resp.Leads)
}

func TestDeleteHidesLeadFromQueue(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme")
	soft := f.seedLead(t, org.ID, "soft", at(-time.Minute), baseTime.Add(-time.Hour), nil)
	hard := f.seedLead(t, org.ID, "hard", at(-time.Minute), baseTime.Add(-time.Hour), nil)
	ctx := context.Background()

	require.NoError(t, f.svc.Delete(ctx, "acme", soft.ID.String(), false))
	require.NoError(t, f.svc.Delete(ctx, "acme", hard.ID.String(), true))

	resp, err := f.svc.ListPriority(ctx, domain.PriorityQuery{OrgRef: "acme"})
	require.NoError(t, err)
	assert.Empty(t, resp.Leads)

	_, err = f.svc.Get(ctx, "acme", soft.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var count int64
	require.NoError(t, f.db.Model(&domain.Lead{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
