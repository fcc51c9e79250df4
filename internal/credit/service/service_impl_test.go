package service

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/config"
	"github.com/smallbiznis/agentdesk/internal/credit/domain"
	creditrepo "github.com/smallbiznis/agentdesk/internal/credit/repository"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	orgrepo "github.com/smallbiznis/agentdesk/internal/organization/repository"
	"github.com/smallbiznis/agentdesk/internal/realtime"
	"github.com/smallbiznis/agentdesk/internal/schema/schematest"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	clock *clock.FakeClock
	hub   *realtime.Hub
	node  *snowflake.Node
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	db := schematest.OpenSQLite(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	hub := realtime.NewHub()

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      creditrepo.Provide(),
		OrgRepo:   orgrepo.Provide(),
		Ledger:    config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig()),
		Publisher: realtime.NewLocalPublisher(hub),
	})
	return fixture{db: db, svc: svc, clock: clk, hub: hub, node: node}
}

func (f fixture) seedOrg(t *testing.T, slug string, mutate func(*orgdomain.Organization)) orgdomain.Organization {
	t.Helper()
	now := f.clock.Now()
	org := orgdomain.Organization{
		ID:          f.node.Generate(),
		Name:        slug,
		Slug:        slug,
		CreditsPlan: orgdomain.PlanConversation,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if mutate != nil {
		mutate(&org)
	}
	require.NoError(t, f.db.Create(&org).Error)
	return org
}

func (f fixture) history(t *testing.T, orgID snowflake.ID) []domain.CreditHistory {
	t.Helper()
	var rows []domain.CreditHistory
	require.NoError(t, f.db.Where("org_id = ?", orgID).Order("created_at asc, id asc").Find(&rows).Error)
	return rows
}

func TestGetTotalCreditsFollowsPlan(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t, "acme", func(o *orgdomain.Organization) {
		o.ConversationCredits = 10
		o.CallCredits = 5
		o.MessageCredits = 100
	})
	f.seedOrg(t, "texty", func(o *orgdomain.Organization) {
		o.CreditsPlan = orgdomain.PlanMessage
		o.ConversationCredits = 10
		o.CallCredits = 5
		o.MessageCredits = 100
	})

	snap, err := f.svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 15.0, snap.TotalCredits)
	assert.Equal(t, orgdomain.PlanConversation, snap.CreditsPlan)

	snap, err = f.svc.Get(context.Background(), "texty")
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.TotalCredits)
}

func TestGetResolvesByID(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme", func(o *orgdomain.Organization) { o.CallCredits = 2 })

	snap, err := f.svc.Get(context.Background(), org.ID.String())
	require.NoError(t, err)
	assert.Equal(t, org.ID, snap.OrgID)
	assert.Equal(t, 2.0, snap.CallCredits)
}

func TestDecrementClampsAtZero(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme", func(o *orgdomain.Organization) {
		o.ConversationCredits = 3
	})

	snap, err := f.svc.Decrement(context.Background(), "acme", domain.CreditCall, 5, "call")
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.CallCredits)
	assert.Equal(t, 3.0, snap.TotalCredits)

	snap, err = f.svc.Decrement(context.Background(), "acme", domain.CreditConversation, 2.5, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, snap.ConversationCredits, 1e-9)

	rows := f.history(t, org.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, 0.0, rows[0].ChangeAmount)
	assert.Equal(t, "call_credits", rows[0].ChangeField)
	assert.Equal(t, domain.OpDecrement, rows[0].ChangeType)
	assert.InDelta(t, -2.5, rows[1].ChangeAmount, 1e-9)
}

func TestIncrementRejectsNonPositiveAmounts(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme", func(o *orgdomain.Organization) { o.MessageCredits = 4 })

	for _, amount := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := f.svc.Increment(context.Background(), "acme", domain.CreditMessage, amount, "")
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, "amount %v", amount)
		_, err = f.svc.Decrement(context.Background(), "acme", domain.CreditMessage, amount, "")
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, "amount %v", amount)
	}

	snap, err := f.svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 4.0, snap.MessageCredits)
	assert.Empty(t, f.history(t, org.ID))
}

func TestSetValidatesValue(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t, "acme", func(o *orgdomain.Organization) { o.CallCredits = 9 })

	_, err := f.svc.Set(context.Background(), "acme", domain.CreditCall, -0.01, "")
	assert.ErrorIs(t, err, domain.ErrInvalidValue)

	snap, err := f.svc.Set(context.Background(), "acme", domain.CreditCall, 0, "reset")
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.CallCredits)

	snap, err = f.svc.Set(context.Background(), "acme", domain.CreditCall, 42.25, "")
	require.NoError(t, err)
	assert.Equal(t, 42.25, snap.CallCredits)
}

func TestSetSameValueTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme", func(o *orgdomain.Organization) { o.CallCredits = 3 })

	first, err := f.svc.Set(context.Background(), "acme", domain.CreditCall, 7, "")
	require.NoError(t, err)
	second, err := f.svc.Set(context.Background(), "acme", domain.CreditCall, 7, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 7.0, second.CallCredits)

	rows := f.history(t, org.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, 4.0, rows[0].ChangeAmount)
	assert.Equal(t, 0.0, rows[1].ChangeAmount)
	assert.Equal(t, 7.0, rows[1].PrevValue)
	assert.Equal(t, 7.0, rows[1].NewValue)
}

func TestApplyDispatchErrors(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t, "acme", nil)
	amount := 1.0

	_, err := f.svc.Apply(context.Background(), "acme", domain.ApplyRequest{CreditType: domain.CreditCall, Operation: "multiply", Amount: &amount})
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	_, err = f.svc.Apply(context.Background(), "acme", domain.ApplyRequest{CreditType: "sms", Operation: domain.OpIncrement, Amount: &amount})
	assert.ErrorIs(t, err, domain.ErrInvalidCreditType)

	_, err = f.svc.Apply(context.Background(), "acme", domain.ApplyRequest{CreditType: domain.CreditCall, Operation: domain.OpIncrement})
	assert.ErrorIs(t, err, domain.ErrMissingAmount)

	_, err = f.svc.Apply(context.Background(), "acme", domain.ApplyRequest{CreditType: domain.CreditCall, Operation: domain.OpSet, Amount: &amount})
	assert.ErrorIs(t, err, domain.ErrMissingValue)

	snap, err := f.svc.Apply(context.Background(), "acme", domain.ApplyRequest{CreditType: "call_credits", Operation: "INCREMENT", Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.CallCredits)
}

func TestIncrementIsAdditive(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t, "split", func(o *orgdomain.Organization) { o.ConversationCredits = 1 })
	f.seedOrg(t, "single", func(o *orgdomain.Organization) { o.ConversationCredits = 1 })

	_, err := f.svc.Increment(context.Background(), "split", domain.CreditConversation, 1.5, "")
	require.NoError(t, err)
	split, err := f.svc.Increment(context.Background(), "split", domain.CreditConversation, 2.25, "")
	require.NoError(t, err)

	single, err := f.svc.Increment(context.Background(), "single", domain.CreditConversation, 3.75, "")
	require.NoError(t, err)

	assert.InDelta(t, single.ConversationCredits, split.ConversationCredits, 1e-9)
	assert.InDelta(t, 4.75, split.ConversationCredits, 1e-9)
}

func TestHistoryMatchesCounterChanges(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme", nil)
	ctx := context.Background()

	_, err := f.svc.Increment(ctx, "acme", domain.CreditMessage, 10, "topup")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.svc.Decrement(ctx, "acme", domain.CreditMessage, 4, "usage")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.svc.Decrement(ctx, "acme", domain.CreditMessage, 50, "usage")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.svc.Set(ctx, "acme", domain.CreditMessage, 7, "manual")
	require.NoError(t, err)

	rows := f.history(t, org.ID)
	require.Len(t, rows, 4)
	for _, row := range rows {
		assert.InDelta(t, row.PrevValue+row.ChangeAmount, row.NewValue, 1e-9)
		assert.Equal(t, "message_credits", row.ChangeField)
	}
	assert.Equal(t, 10.0, rows[0].NewValue)
	assert.Equal(t, -6.0, rows[2].ChangeAmount)
	assert.Equal(t, 7.0, rows[3].NewValue)
	assert.Equal(t, "manual", rows[3].Reason)

	page, err := f.svc.ListHistory(ctx, "acme", domain.ListHistoryRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	require.Len(t, page.History, 4)
	assert.Equal(t, domain.OpSet, page.History[0].ChangeType)
}

func TestMutationsRespectTenantFilters(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t, "gone", func(o *orgdomain.Organization) { o.IsDeleted = true })
	f.seedOrg(t, "paused", func(o *orgdomain.Organization) { o.IsDisabled = true })

	_, err := f.svc.Increment(context.Background(), "missing", domain.CreditCall, 1, "")
	assert.ErrorIs(t, err, orgdomain.ErrNotFound)
	_, err = f.svc.Increment(context.Background(), "gone", domain.CreditCall, 1, "")
	assert.ErrorIs(t, err, orgdomain.ErrNotFound)
	_, err = f.svc.Get(context.Background(), "paused")
	assert.ErrorIs(t, err, orgdomain.ErrNotFound)

	bypass := tenancy.WithScope(context.Background(), tenancy.Scope{BypassFilters: true})
	snap, err := f.svc.Increment(bypass, "paused", domain.CreditCall, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.CallCredits)
}

func TestConcurrentDecrementsNeverGoNegative(t *testing.T) {
	f := newFixture(t)
	f.seedOrg(t, "acme", func(o *orgdomain.Organization) { o.CallCredits = 10 })

	var wg sync.WaitGroup
	errs := make(chan error, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Decrement(context.Background(), "acme", domain.CreditCall, 1, ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("decrement failed: %v", err)
	}

	snap, err := f.svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.CallCredits)
}

func TestMutationPublishesCreditsEvent(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "acme", func(o *orgdomain.Organization) { o.ConversationCredits = 1 })

	sub, _, err := f.hub.Subscribe(org.ID.String())
	require.NoError(t, err)
	defer sub.Close()

	_, err = f.svc.Increment(context.Background(), "acme", domain.CreditConversation, 2, "")
	require.NoError(t, err)

	select {
	case event := <-sub.Events():
		assert.Equal(t, realtime.EventCreditsUpdated, event.Type)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(event.Data, &payload))
		assert.Equal(t, 3.0, payload["total_credits"])
		assert.Equal(t, true, payload["low_credits"])
		assert.Equal(t, "increment", payload["operation"])
	case <-time.After(2 * time.Second):
		t.Fatal("no credits event")
	}
}
