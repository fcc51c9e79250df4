package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/config"
	"github.com/smallbiznis/agentdesk/internal/organization/domain"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"github.com/smallbiznis/agentdesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Ledger *config.LedgerConfigHolder `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	ledger *config.LedgerConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("organization.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		ledger: p.Ledger,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (domain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Organization{}, domain.ErrInvalidName
	}

	plan := req.CreditsPlan
	if plan == "" {
		plan = domain.PlanConversation
	}
	if !plan.Valid() {
		return domain.Organization{}, domain.ErrInvalidPlan
	}
	if req.AvailableIndianChannels < 0 || req.AvailableInternationalChannels < 0 {
		return domain.Organization{}, domain.ErrInvalidChannels
	}

	id := s.genID.Generate()
	orgSlug, err := s.uniqueSlug(ctx, name, id)
	if err != nil {
		return domain.Organization{}, err
	}

	now := s.clock.Now()
	org := domain.Organization{
		ID:                             id,
		Name:                           name,
		Slug:                           orgSlug,
		CreditsPlan:                    plan,
		AvailableIndianChannels:        req.AvailableIndianChannels,
		AvailableInternationalChannels: req.AvailableInternationalChannels,
		CreatedAt:                      now,
		UpdatedAt:                      now,
	}

	if err := s.repo.Insert(ctx, s.db, &org); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Organization{}, domain.ErrInvalidName
		}
		return domain.Organization{}, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
		zap.String("credits_plan", string(org.CreditsPlan)),
	)
	return org, nil
}

// uniqueSlug derives a slug from the name and suffixes the id when taken.
func (s *Service) uniqueSlug(ctx context.Context, name string, id snowflake.ID) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "org"
	}
	// A purely numeric slug would be ambiguous with an id reference.
	if _, err := strconv.ParseInt(base, 10, 64); err == nil {
		base = "org-" + base
	}
	exists, err := s.repo.SlugExists(ctx, s.db, base)
	if err != nil {
		return "", err
	}
	if !exists {
		return base, nil
	}
	return base + "-" + id.Base36(), nil
}

func (s *Service) Get(ctx context.Context, ref string) (domain.Organization, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Organization{}, domain.ErrInvalidRef
	}

	org, err := s.repo.FindByRef(ctx, s.db, ref, tenancy.FromContext(ctx))
	if err != nil {
		return domain.Organization{}, err
	}
	if org == nil {
		return domain.Organization{}, domain.ErrNotFound
	}
	return *org, nil
}

func (s *Service) List(ctx context.Context, req domain.ListOrganizationRequest) (domain.ListOrganizationResponse, error) {
	cfg := s.ledger.Get()
	page := req.Pagination.Normalize(cfg.Priority.DefaultLimit, cfg.Priority.MaxLimit)

	orgs, total, err := s.repo.List(ctx, s.db, tenancy.FromContext(ctx), page)
	if err != nil {
		return domain.ListOrganizationResponse{}, err
	}
	if orgs == nil {
		orgs = []domain.Organization{}
	}

	return domain.ListOrganizationResponse{
		PageInfo:      page.Info(total),
		Organizations: orgs,
	}, nil
}

func (s *Service) Update(ctx context.Context, ref string, req domain.UpdateOrganizationRequest) (domain.Organization, error) {
	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Organization{}, domain.ErrInvalidName
		}
		fields["name"] = name
	}
	if req.CreditsPlan != nil {
		if !req.CreditsPlan.Valid() {
			return domain.Organization{}, domain.ErrInvalidPlan
		}
		fields["credits_plan"] = *req.CreditsPlan
	}
	if req.AvailableIndianChannels != nil && *req.AvailableIndianChannels < 0 {
		return domain.Organization{}, domain.ErrInvalidChannels
	}
	if req.AvailableInternationalChannels != nil && *req.AvailableInternationalChannels < 0 {
		return domain.Organization{}, domain.ErrInvalidChannels
	}

	var updated *domain.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.repo.LockByRef(ctx, tx, ref, tenancy.FromContext(ctx))
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrNotFound
		}

		// Shrinking capacity below the calls already admitted would break
		// active <= available.
		if v := req.AvailableIndianChannels; v != nil {
			if *v < org.ActiveIndianCalls {
				return domain.ErrInvalidChannels
			}
			fields["available_indian_channels"] = *v
		}
		if v := req.AvailableInternationalChannels; v != nil {
			if *v < org.ActiveInternationalCalls {
				return domain.ErrInvalidChannels
			}
			fields["available_international_channels"] = *v
		}

		if len(fields) > 0 {
			fields["updated_at"] = s.clock.Now()
			if err := s.repo.UpdateFields(ctx, tx, org.ID, fields); err != nil {
				return err
			}
		}

		updated, err = s.repo.FindByID(ctx, tx, org.ID)
		return err
	})
	if err != nil {
		return domain.Organization{}, err
	}
	if updated == nil {
		return domain.Organization{}, domain.ErrNotFound
	}

	s.log.Info("organization updated", zap.String("org_id", updated.ID.String()))
	return *updated, nil
}

func (s *Service) SetDisabled(ctx context.Context, ref string, disabled bool) (domain.Organization, error) {
	// Re-enabling has to see disabled rows, so the lookup ignores the disabled flag.
	org, err := s.repo.FindByRef(ctx, s.db, ref, tenancy.Scope{BypassFilters: true})
	if err != nil {
		return domain.Organization{}, err
	}
	if org == nil || (org.IsDeleted && !tenancy.FromContext(ctx).BypassFilters) {
		return domain.Organization{}, domain.ErrNotFound
	}

	now := s.clock.Now()
	if err := s.repo.UpdateFields(ctx, s.db, org.ID, map[string]any{
		"is_disabled": disabled,
		"updated_at":  now,
	}); err != nil {
		return domain.Organization{}, err
	}

	org.IsDisabled = disabled
	org.UpdatedAt = now
	s.log.Info("organization disabled flag changed",
		zap.String("org_id", org.ID.String()),
		zap.Bool("is_disabled", disabled),
	)
	return *org, nil
}

func (s *Service) Delete(ctx context.Context, ref string) error {
	org, err := s.repo.FindByRef(ctx, s.db, ref, tenancy.FromContext(ctx))
	if err != nil {
		return err
	}
	if org == nil {
		return domain.ErrNotFound
	}

	if err := s.repo.UpdateFields(ctx, s.db, org.ID, map[string]any{
		"is_deleted": true,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return err
	}

	s.log.Info("organization deleted", zap.String("org_id", org.ID.String()))
	return nil
}
