package service

import (
	"context"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/config"
	"github.com/smallbiznis/agentdesk/internal/cost/domain"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	OrgRepo orgdomain.Repository
	Ledger  *config.LedgerConfigHolder `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	orgRepo orgdomain.Repository
	ledger  *config.LedgerConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("cost.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		orgRepo: p.OrgRepo,
		ledger:  p.Ledger,
	}
}

func (s *Service) Create(ctx context.Context, orgRef string, req domain.CreateCostRequest) (domain.Cost, error) {
	costType, ok := domain.ParseCostType(req.Type)
	if !ok {
		return domain.Cost{}, domain.ErrInvalidType
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount < 0 {
		return domain.Cost{}, domain.ErrInvalidAmount
	}

	org, err := s.resolveOrg(ctx, orgRef)
	if err != nil {
		return domain.Cost{}, err
	}

	cost := domain.Cost{
		ID:             s.genID.Generate(),
		OrgID:          org.ID,
		ConversationID: trimOptional(req.ConversationID),
		CallID:         trimOptional(req.CallID),
		MessageID:      trimOptional(req.MessageID),
		Type:           costType,
		Amount:         req.Amount,
		Description:    strings.TrimSpace(req.Description),
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &cost); err != nil {
		return domain.Cost{}, err
	}

	s.log.Info("cost recorded",
		zap.String("org_id", org.ID.String()),
		zap.String("cost_id", cost.ID.String()),
		zap.String("type", string(cost.Type)),
		zap.Float64("amount", cost.Amount),
	)
	return cost, nil
}

func (s *Service) List(ctx context.Context, orgRef string, req domain.ListCostRequest) (domain.ListCostResponse, error) {
	var costType *domain.CostType
	if strings.TrimSpace(req.Type) != "" {
		parsed, ok := domain.ParseCostType(req.Type)
		if !ok {
			return domain.ListCostResponse{}, domain.ErrInvalidType
		}
		costType = &parsed
	}

	org, err := s.resolveOrg(ctx, orgRef)
	if err != nil {
		return domain.ListCostResponse{}, err
	}

	cfg := s.ledger.Get()
	page := req.Pagination.Normalize(cfg.Priority.DefaultLimit, cfg.Priority.MaxLimit)
	costs, total, err := s.repo.List(ctx, s.db, org.ID, costType, tenancy.FromContext(ctx), page)
	if err != nil {
		return domain.ListCostResponse{}, err
	}
	if costs == nil {
		costs = []domain.Cost{}
	}
	return domain.ListCostResponse{
		PageInfo: page.Info(total),
		Costs:    costs,
	}, nil
}

func (s *Service) Delete(ctx context.Context, orgRef, costID string) error {
	id, err := snowflake.ParseString(strings.TrimSpace(costID))
	if err != nil || id <= 0 {
		return domain.ErrInvalidID
	}
	org, err := s.resolveOrg(ctx, orgRef)
	if err != nil {
		return err
	}

	cost, err := s.repo.FindByID(ctx, s.db, org.ID, id, tenancy.FromContext(ctx))
	if err != nil {
		return err
	}
	if cost == nil {
		return domain.ErrNotFound
	}
	if err := s.repo.SoftDelete(ctx, s.db, org.ID, id); err != nil {
		return err
	}

	s.log.Info("cost deleted",
		zap.String("org_id", org.ID.String()),
		zap.String("cost_id", id.String()),
	)
	return nil
}

func (s *Service) resolveOrg(ctx context.Context, orgRef string) (*orgdomain.Organization, error) {
	orgRef = strings.TrimSpace(orgRef)
	if orgRef == "" {
		return nil, orgdomain.ErrInvalidRef
	}
	org, err := s.orgRepo.FindByRef(ctx, s.db, orgRef, tenancy.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, orgdomain.ErrNotFound
	}
	return org, nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
