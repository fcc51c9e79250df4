package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/channel/domain"
	channelrepo "github.com/smallbiznis/agentdesk/internal/channel/repository"
	"github.com/smallbiznis/agentdesk/internal/clock"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	orgrepo "github.com/smallbiznis/agentdesk/internal/organization/repository"
	"github.com/smallbiznis/agentdesk/internal/realtime"
	"github.com/smallbiznis/agentdesk/internal/schema/schematest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T, indian, international int) (domain.Service, *gorm.DB, orgdomain.Organization, *realtime.Hub) {
	t.Helper()

	db := schematest.OpenSQLite(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC))
	hub := realtime.NewHub()

	org := orgdomain.Organization{
		ID:                             node.Generate(),
		Name:                           "Callers",
		Slug:                           "callers",
		CreditsPlan:                    orgdomain.PlanConversation,
		AvailableIndianChannels:        indian,
		AvailableInternationalChannels: international,
		CreatedAt:                      clk.Now(),
		UpdatedAt:                      clk.Now(),
	}
	require.NoError(t, db.Create(&org).Error)

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clk,
		Repo:      channelrepo.Provide(),
		OrgRepo:   orgrepo.Provide(),
		Publisher: realtime.NewLocalPublisher(hub),
	})
	return svc, db, org, hub
}

func TestRegionsHaveIndependentPools(t *testing.T) {
	svc, _, _, _ := setup(t, 2, 0)
	ctx := context.Background()

	avail, err := svc.GetAvailableChannels(ctx, "callers")
	require.NoError(t, err)
	assert.Equal(t, domain.Availability{IndianChannels: 2, InternationalChannels: 0, TotalChannels: 2}, avail)

	state, err := svc.IncrementActiveCalls(ctx, "callers", domain.RegionIndian)
	require.NoError(t, err)
	assert.Equal(t, 1, state.ActiveIndianCalls)
	assert.Equal(t, 1, state.AvailableChannels.IndianChannels)

	state, err = svc.IncrementActiveCalls(ctx, "callers", domain.RegionIndian)
	require.NoError(t, err)
	assert.Equal(t, 2, state.ActiveIndianCalls)
	assert.Equal(t, 0, state.AvailableChannels.TotalChannels)

	_, err = svc.IncrementActiveCalls(ctx, "callers", domain.RegionIndian)
	assert.ErrorIs(t, err, domain.ErrNoChannelAvailable)

	_, err = svc.IncrementActiveCalls(ctx, "callers", domain.RegionInternational)
	assert.ErrorIs(t, err, domain.ErrNoChannelAvailable)

	state, err = svc.DecrementActiveCalls(ctx, "callers", domain.RegionIndian)
	require.NoError(t, err)
	assert.Equal(t, 1, state.ActiveIndianCalls)
	assert.Equal(t, 0, state.ActiveInternationalCalls)
}

func TestDecrementRequiresActiveCall(t *testing.T) {
	svc, _, _, _ := setup(t, 1, 1)

	_, err := svc.DecrementActiveCalls(context.Background(), "callers", domain.RegionInternational)
	assert.ErrorIs(t, err, domain.ErrNoActiveCall)
}

func TestInvalidRegionAndUnknownOrg(t *testing.T) {
	svc, _, _, _ := setup(t, 1, 1)
	ctx := context.Background()

	_, err := svc.IncrementActiveCalls(ctx, "callers", "domestic")
	assert.ErrorIs(t, err, domain.ErrInvalidRegion)
	_, err = svc.DecrementActiveCalls(ctx, "callers", "")
	assert.ErrorIs(t, err, domain.ErrInvalidRegion)

	_, err = svc.IncrementActiveCalls(ctx, "nobody", domain.RegionIndian)
	assert.ErrorIs(t, err, orgdomain.ErrNotFound)

	state, err := svc.IncrementActiveCalls(ctx, "callers", "International")
	require.NoError(t, err)
	assert.Equal(t, 1, state.ActiveInternationalCalls)
}

func TestAvailabilityNeverNegative(t *testing.T) {
	svc, db, org, _ := setup(t, 1, 1)
	require.NoError(t, db.Model(&orgdomain.Organization{}).Where("id = ?", org.ID).Update("active_indian_calls", 4).Error)

	avail, err := svc.GetAvailableChannels(context.Background(), org.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, avail.IndianChannels)
	assert.Equal(t, 1, avail.TotalChannels)
}

func TestConcurrentAdmissionsNeverOverbook(t *testing.T) {
	svc, db, org, _ := setup(t, 5, 0)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		rejected atomic.Int32
		failures = make(chan error, 20)
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IncrementActiveCalls(context.Background(), "callers", domain.RegionIndian)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, domain.ErrNoChannelAvailable):
				rejected.Add(1)
			default:
				failures <- err
			}
		}()
	}
	wg.Wait()
	close(failures)
	for err := range failures {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, int32(5), admitted.Load())
	assert.Equal(t, int32(15), rejected.Load())

	var stored orgdomain.Organization
	require.NoError(t, db.First(&stored, "id = ?", org.ID).Error)
	assert.Equal(t, 5, stored.ActiveIndianCalls)
}

func TestAdmissionPublishesCallsEvent(t *testing.T) {
	svc, _, org, hub := setup(t, 1, 0)

	sub, _, err := hub.Subscribe(org.ID.String())
	require.NoError(t, err)
	defer sub.Close()

	_, err = svc.IncrementActiveCalls(context.Background(), "callers", domain.RegionIndian)
	require.NoError(t, err)

	select {
	case event := <-sub.Events():
		assert.Equal(t, realtime.EventCallsUpdated, event.Type)
		assert.Contains(t, string(event.Data), `"action":"start"`)
		assert.Contains(t, string(event.Data), `"active_indian_calls":1`)
	case <-time.After(2 * time.Second):
		t.Fatal("no calls event")
	}
}
