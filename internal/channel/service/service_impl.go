package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/agentdesk/internal/channel/domain"
	"github.com/smallbiznis/agentdesk/internal/clock"
	obsmetrics "github.com/smallbiznis/agentdesk/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	"github.com/smallbiznis/agentdesk/internal/realtime"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	resultAdmitted = "admitted"
	resultReleased = "released"
	resultRejected = "rejected"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       domain.Repository
	OrgRepo    orgdomain.Repository
	Publisher  realtime.Publisher  `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	orgRepo    orgdomain.Repository
	publisher  realtime.Publisher
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("channel.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		orgRepo:    p.OrgRepo,
		publisher:  p.Publisher,
		obsMetrics: p.ObsMetrics,
	}
}

type callsEvent struct {
	domain.CallState
	Region domain.Region `json:"region"`
	Action string        `json:"action"`
}

func (s *Service) GetAvailableChannels(ctx context.Context, orgRef string) (domain.Availability, error) {
	org, err := s.resolve(ctx, s.db, orgRef)
	if err != nil {
		return domain.Availability{}, err
	}
	return domain.AvailabilityOf(*org), nil
}

func (s *Service) IncrementActiveCalls(ctx context.Context, orgRef string, region domain.Region) (domain.CallState, error) {
	region, ok := domain.ParseRegion(string(region))
	if !ok {
		return domain.CallState{}, domain.ErrInvalidRegion
	}
	state, err := s.adjust(ctx, orgRef, region, 1)
	if err != nil {
		if errors.Is(err, domain.ErrNoChannelAvailable) {
			s.obsMetrics.RecordCallAdmission(ctx, string(region), resultRejected)
			s.log.Debug("call rejected, no free channel",
				zap.String("org_ref", orgRef),
				zap.String("region", string(region)),
			)
		}
		return domain.CallState{}, err
	}

	s.obsMetrics.RecordCallAdmission(ctx, string(region), resultAdmitted)
	s.publish(ctx, state, region, "start")
	return state, nil
}

func (s *Service) DecrementActiveCalls(ctx context.Context, orgRef string, region domain.Region) (domain.CallState, error) {
	region, ok := domain.ParseRegion(string(region))
	if !ok {
		return domain.CallState{}, domain.ErrInvalidRegion
	}
	state, err := s.adjust(ctx, orgRef, region, -1)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveCall) {
			s.obsMetrics.RecordCallRelease(ctx, string(region), resultRejected)
			s.log.Warn("call release without active call",
				zap.String("org_ref", orgRef),
				zap.String("region", string(region)),
			)
		}
		return domain.CallState{}, err
	}

	s.obsMetrics.RecordCallRelease(ctx, string(region), resultReleased)
	s.publish(ctx, state, region, "end")
	return state, nil
}

// adjust applies a conditional single-statement update so concurrent
// admissions can never push active above available or below zero.
func (s *Service) adjust(ctx context.Context, orgRef string, region domain.Region, delta int) (domain.CallState, error) {
	var state domain.CallState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.resolve(ctx, tx, orgRef)
		if err != nil {
			return err
		}

		changed, err := s.repo.AdjustActiveCalls(ctx, tx, org.ID, region, delta, s.clock.Now())
		if err != nil {
			return err
		}
		if !changed {
			if delta > 0 {
				return domain.ErrNoChannelAvailable
			}
			return domain.ErrNoActiveCall
		}

		updated, err := s.orgRepo.FindByID(ctx, tx, org.ID)
		if err != nil {
			return err
		}
		if updated == nil {
			return orgdomain.ErrNotFound
		}
		state = domain.CallStateOf(*updated)
		return nil
	})
	if err != nil {
		return domain.CallState{}, err
	}
	return state, nil
}

func (s *Service) resolve(ctx context.Context, db *gorm.DB, orgRef string) (*orgdomain.Organization, error) {
	orgRef = strings.TrimSpace(orgRef)
	if orgRef == "" {
		return nil, orgdomain.ErrInvalidRef
	}
	org, err := s.orgRepo.FindByRef(ctx, db, orgRef, tenancy.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, orgdomain.ErrNotFound
	}
	return org, nil
}

func (s *Service) publish(ctx context.Context, state domain.CallState, region domain.Region, action string) {
	if s.publisher == nil {
		return
	}
	event, err := realtime.NewEvent(realtime.EventCallsUpdated, state.OrgID, callsEvent{
		CallState: state,
		Region:    region,
		Action:    action,
	}, s.clock.Now())
	if err != nil {
		s.log.Warn("encode calls event failed", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("publish calls event failed",
			zap.String("org_id", state.OrgID.String()),
			zap.Error(err),
		)
	}
}
