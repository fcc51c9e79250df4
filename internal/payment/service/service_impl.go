package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/config"
	creditdomain "github.com/smallbiznis/agentdesk/internal/credit/domain"
	obsmetrics "github.com/smallbiznis/agentdesk/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	"github.com/smallbiznis/agentdesk/internal/payment/domain"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"github.com/smallbiznis/agentdesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	resultSucceeded = "succeeded"
	resultDuplicate = "duplicate"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	OrgRepo    orgdomain.Repository
	CreditSvc  creditdomain.Service
	Ledger     *config.LedgerConfigHolder `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	orgRepo    orgdomain.Repository
	creditSvc  creditdomain.Service
	ledger     *config.LedgerConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		orgRepo:    p.OrgRepo,
		creditSvc:  p.CreditSvc,
		ledger:     p.Ledger,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Record(ctx context.Context, orgRef string, req domain.RecordPaymentRequest) (domain.RecordPaymentResponse, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return domain.RecordPaymentResponse{}, domain.ErrInvalidReference
	}
	if req.Amount <= 0 {
		return domain.RecordPaymentResponse{}, domain.ErrInvalidAmount
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return domain.RecordPaymentResponse{}, err
	}
	creditType, ok := creditdomain.ParseCreditType(req.CreditType)
	if !ok {
		return domain.RecordPaymentResponse{}, creditdomain.ErrInvalidCreditType
	}
	if math.IsNaN(req.Credits) || math.IsInf(req.Credits, 0) || req.Credits <= 0 {
		return domain.RecordPaymentResponse{}, domain.ErrInvalidCredits
	}
	orgRef = strings.TrimSpace(orgRef)
	if orgRef == "" {
		return domain.RecordPaymentResponse{}, orgdomain.ErrInvalidRef
	}

	var resp domain.RecordPaymentResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.orgRepo.LockByRef(ctx, tx, orgRef, tenancy.FromContext(ctx))
		if err != nil {
			return err
		}
		if org == nil {
			return orgdomain.ErrNotFound
		}

		existing, err := s.repo.FindByReference(ctx, tx, org.ID, reference)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicatePayment
		}

		payment := domain.Payment{
			ID:         s.genID.Generate(),
			OrgID:      org.ID,
			Reference:  reference,
			Amount:     req.Amount,
			Currency:   currency,
			CreditType: creditType,
			Credits:    req.Credits,
			Status:     domain.StatusSucceeded,
			CreatedAt:  s.clock.Now(),
		}
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicatePayment
			}
			return err
		}

		credits := req.Credits
		snapshot, _, err := s.creditSvc.ApplyInTx(ctx, tx, org, creditdomain.ApplyRequest{
			CreditType: creditType,
			Operation:  creditdomain.OpIncrement,
			Amount:     &credits,
			Reason:     "payment:" + reference,
		})
		if err != nil {
			return err
		}

		resp = domain.RecordPaymentResponse{Payment: payment, Credits: snapshot}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicatePayment) {
			s.obsMetrics.RecordPayment(ctx, string(creditType), resultDuplicate)
			s.log.Info("duplicate payment ignored",
				zap.String("org_ref", orgRef),
				zap.String("reference", reference),
			)
		}
		return domain.RecordPaymentResponse{}, err
	}

	s.obsMetrics.RecordPayment(ctx, string(creditType), resultSucceeded)
	s.creditSvc.Notify(ctx, resp.Credits, creditType, creditdomain.OpIncrement)
	s.log.Info("payment recorded",
		zap.String("org_id", resp.Payment.OrgID.String()),
		zap.String("payment_id", resp.Payment.ID.String()),
		zap.String("credit_type", string(creditType)),
		zap.Float64("credits", resp.Payment.Credits),
	)
	return resp, nil
}

func (s *Service) List(ctx context.Context, orgRef string, req domain.ListPaymentRequest) (domain.ListPaymentResponse, error) {
	orgRef = strings.TrimSpace(orgRef)
	if orgRef == "" {
		return domain.ListPaymentResponse{}, orgdomain.ErrInvalidRef
	}
	org, err := s.orgRepo.FindByRef(ctx, s.db, orgRef, tenancy.FromContext(ctx))
	if err != nil {
		return domain.ListPaymentResponse{}, err
	}
	if org == nil {
		return domain.ListPaymentResponse{}, orgdomain.ErrNotFound
	}

	cfg := s.ledger.Get()
	page := req.Pagination.Normalize(cfg.Priority.DefaultLimit, cfg.Priority.MaxLimit)
	payments, total, err := s.repo.List(ctx, s.db, org.ID, page)
	if err != nil {
		return domain.ListPaymentResponse{}, err
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	return domain.ListPaymentResponse{
		PageInfo: page.Info(total),
		Payments: payments,
	}, nil
}

var validate = validator.New()

// normalizeCurrency accepts any three-letter code. Gateways send test and
// internal codes that are not in ISO 4217.
func normalizeCurrency(value string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(value))
	if err := validate.Var(currency, "required,len=3,alpha,uppercase"); err != nil {
		return "", domain.ErrInvalidCurrency
	}
	return currency, nil
}
