package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/config"
	"github.com/smallbiznis/agentdesk/internal/credit/domain"
	obsmetrics "github.com/smallbiznis/agentdesk/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	"github.com/smallbiznis/agentdesk/internal/realtime"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	OrgRepo    orgdomain.Repository
	Ledger     *config.LedgerConfigHolder `optional:"true"`
	Publisher  realtime.Publisher         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	orgRepo    orgdomain.Repository
	ledger     *config.LedgerConfigHolder
	publisher  realtime.Publisher
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("credit.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		orgRepo:    p.OrgRepo,
		ledger:     p.Ledger,
		publisher:  p.Publisher,
		obsMetrics: p.ObsMetrics,
	}
}

type creditsEvent struct {
	domain.Snapshot
	CreditType domain.CreditType `json:"credit_type"`
	Operation  domain.Operation  `json:"operation"`
	LowCredits bool              `json:"low_credits"`
}

func (s *Service) Get(ctx context.Context, orgRef string) (domain.Snapshot, error) {
	org, err := s.resolve(ctx, orgRef)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.SnapshotOf(*org), nil
}

func (s *Service) Increment(ctx context.Context, orgRef string, creditType domain.CreditType, amount float64, reason string) (domain.Snapshot, error) {
	return s.Apply(ctx, orgRef, domain.ApplyRequest{
		CreditType: creditType,
		Operation:  domain.OpIncrement,
		Amount:     &amount,
		Reason:     reason,
	})
}

func (s *Service) Decrement(ctx context.Context, orgRef string, creditType domain.CreditType, amount float64, reason string) (domain.Snapshot, error) {
	return s.Apply(ctx, orgRef, domain.ApplyRequest{
		CreditType: creditType,
		Operation:  domain.OpDecrement,
		Amount:     &amount,
		Reason:     reason,
	})
}

func (s *Service) Set(ctx context.Context, orgRef string, creditType domain.CreditType, value float64, reason string) (domain.Snapshot, error) {
	return s.Apply(ctx, orgRef, domain.ApplyRequest{
		CreditType: creditType,
		Operation:  domain.OpSet,
		Value:      &value,
		Reason:     reason,
	})
}

func (s *Service) Apply(ctx context.Context, orgRef string, req domain.ApplyRequest) (domain.Snapshot, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return domain.Snapshot{}, err
	}
	orgRef = strings.TrimSpace(orgRef)
	if orgRef == "" {
		return domain.Snapshot{}, orgdomain.ErrInvalidRef
	}

	var (
		snapshot domain.Snapshot
		history  *domain.CreditHistory
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.orgRepo.LockByRef(ctx, tx, orgRef, tenancy.FromContext(ctx))
		if err != nil {
			return err
		}
		if org == nil {
			return orgdomain.ErrNotFound
		}

		snapshot, history, err = s.applyLocked(ctx, tx, org, req)
		return err
	})
	if err != nil {
		if !errors.Is(err, orgdomain.ErrNotFound) {
			s.log.Error("credit mutation failed",
				zap.String("org_ref", orgRef),
				zap.String("credit_type", string(req.CreditType)),
				zap.String("operation", string(req.Operation)),
				zap.Error(err),
			)
		}
		return domain.Snapshot{}, err
	}

	s.log.Info("credits updated",
		zap.String("org_id", snapshot.OrgID.String()),
		zap.String("credit_type", string(req.CreditType)),
		zap.String("operation", string(req.Operation)),
		zap.Float64("prev_value", history.PrevValue),
		zap.Float64("new_value", history.NewValue),
	)
	s.Notify(ctx, snapshot, req.CreditType, req.Operation)
	return snapshot, nil
}

func (s *Service) ApplyInTx(ctx context.Context, tx *gorm.DB, org *orgdomain.Organization, req domain.ApplyRequest) (domain.Snapshot, *domain.CreditHistory, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return domain.Snapshot{}, nil, err
	}
	if org == nil {
		return domain.Snapshot{}, nil, orgdomain.ErrNotFound
	}
	return s.applyLocked(ctx, tx, org, req)
}

// applyLocked runs the counter update, re-reads the row and appends the
// history entry. The organization row must already be locked by tx.
func (s *Service) applyLocked(ctx context.Context, tx *gorm.DB, org *orgdomain.Organization, req domain.ApplyRequest) (domain.Snapshot, *domain.CreditHistory, error) {
	column := req.CreditType.Column()
	prev := req.CreditType.ValueOf(*org)

	var expr any
	switch req.Operation {
	case domain.OpIncrement:
		expr = gorm.Expr(column+" + ?", *req.Amount)
	case domain.OpDecrement:
		expr = gorm.Expr("CASE WHEN "+column+" - ? < 0 THEN 0 ELSE "+column+" - ? END", *req.Amount, *req.Amount)
	case domain.OpSet:
		expr = *req.Value
	}

	now := s.clock.Now()
	if err := s.repo.UpdateCounter(ctx, tx, org.ID, column, expr, now); err != nil {
		return domain.Snapshot{}, nil, err
	}

	updated, err := s.orgRepo.FindByID(ctx, tx, org.ID)
	if err != nil {
		return domain.Snapshot{}, nil, err
	}
	if updated == nil {
		return domain.Snapshot{}, nil, orgdomain.ErrNotFound
	}
	next := req.CreditType.ValueOf(*updated)

	history := &domain.CreditHistory{
		ID:           s.genID.Generate(),
		OrgID:        org.ID,
		ChangeAmount: next - prev,
		ChangeType:   req.Operation,
		ChangeField:  column,
		PrevValue:    prev,
		NewValue:     next,
		Reason:       req.Reason,
		CreatedAt:    now,
	}
	if err := s.repo.InsertHistory(ctx, tx, history); err != nil {
		return domain.Snapshot{}, nil, err
	}

	*org = *updated
	return domain.SnapshotOf(*updated), history, nil
}

// Notify records the mutation metric and broadcasts the committed snapshot.
func (s *Service) Notify(ctx context.Context, snapshot domain.Snapshot, creditType domain.CreditType, op domain.Operation) {
	s.obsMetrics.RecordCreditMutation(ctx, string(creditType), string(op))
	if s.publisher == nil {
		return
	}

	payload := creditsEvent{
		Snapshot:   snapshot,
		CreditType: creditType,
		Operation:  op,
		LowCredits: snapshot.TotalCredits <= s.ledger.Get().LowCreditThreshold,
	}
	event, err := realtime.NewEvent(realtime.EventCreditsUpdated, snapshot.OrgID, payload, s.clock.Now())
	if err != nil {
		s.log.Warn("encode credits event failed", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("publish credits event failed",
			zap.String("org_id", snapshot.OrgID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) ListHistory(ctx context.Context, orgRef string, req domain.ListHistoryRequest) (domain.ListHistoryResponse, error) {
	org, err := s.resolve(ctx, orgRef)
	if err != nil {
		return domain.ListHistoryResponse{}, err
	}

	cfg := s.ledger.Get()
	page := req.Pagination.Normalize(cfg.Priority.DefaultLimit, cfg.Priority.MaxLimit)
	items, total, err := s.repo.ListHistory(ctx, s.db, org.ID, page)
	if err != nil {
		return domain.ListHistoryResponse{}, err
	}
	if items == nil {
		items = []domain.CreditHistory{}
	}
	return domain.ListHistoryResponse{
		PageInfo: page.Info(total),
		History:  items,
	}, nil
}

func (s *Service) resolve(ctx context.Context, orgRef string) (*orgdomain.Organization, error) {
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

func normalizeRequest(req domain.ApplyRequest) (domain.ApplyRequest, error) {
	op, ok := domain.ParseOperation(string(req.Operation))
	if !ok {
		return req, domain.ErrInvalidOperation
	}
	req.Operation = op

	creditType, ok := domain.ParseCreditType(string(req.CreditType))
	if !ok {
		return req, domain.ErrInvalidCreditType
	}
	req.CreditType = creditType

	switch op {
	case domain.OpIncrement, domain.OpDecrement:
		if req.Amount == nil {
			return req, domain.ErrMissingAmount
		}
		if !isFinite(*req.Amount) || *req.Amount <= 0 {
			return req, domain.ErrInvalidAmount
		}
	case domain.OpSet:
		if req.Value == nil {
			return req, domain.ErrMissingValue
		}
		if !isFinite(*req.Value) || *req.Value < 0 {
			return req, domain.ErrInvalidValue
		}
	}

	req.Reason = strings.TrimSpace(req.Reason)
	return req, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
