package service

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/config"
	"github.com/smallbiznis/agentdesk/internal/lead/domain"
	obsmetrics "github.com/smallbiznis/agentdesk/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	"github.com/smallbiznis/agentdesk/internal/realtime"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
		log:        p.Log.Named("lead.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		orgRepo:    p.OrgRepo,
		ledger:     p.Ledger,
		publisher:  p.Publisher,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, orgRef string, req domain.CreateLeadRequest) (domain.Lead, error) {
	org, err := s.resolveOrg(ctx, orgRef)
	if err != nil {
		return domain.Lead{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Lead{}, domain.ErrInvalidName
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.Lead{}, err
	}
	if !validFlag(req.IsIndian) {
		return domain.Lead{}, domain.ErrInvalidFlag
	}
	if err := validateJSON(req.AdditionalInfo); err != nil {
		return domain.Lead{}, err
	}

	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = domain.DefaultStatus
	}

	now := s.clock.Now()
	lead := domain.Lead{
		ID:             s.genID.Generate(),
		OrgID:          org.ID,
		Name:           name,
		Email:          email,
		Phone:          trimOptional(req.Phone),
		Status:         status,
		Source:         strings.TrimSpace(req.Source),
		IsIndian:       req.IsIndian,
		NextFollowUp:   utcOptional(req.NextFollowUp),
		AdditionalInfo: req.AdditionalInfo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, &lead); err != nil {
		return domain.Lead{}, err
	}

	s.log.Info("lead created",
		zap.String("org_id", org.ID.String()),
		zap.String("lead_id", lead.ID.String()),
	)
	return lead, nil
}

func (s *Service) Get(ctx context.Context, orgRef, leadID string) (domain.Lead, error) {
	org, err := s.resolveOrg(ctx, orgRef)
	if err != nil {
		return domain.Lead{}, err
	}
	lead, err := s.find(ctx, org.ID, leadID)
	if err != nil {
		return domain.Lead{}, err
	}
	return *lead, nil
}

func (s *Service) Update(ctx context.Context, orgRef, leadID string, req domain.UpdateLeadRequest) (domain.Lead, error) {
	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Lead{}, domain.ErrInvalidName
		}
		fields["name"] = name
	}
	if req.Email != nil {
		email, err := normalizeEmail(*req.Email)
		if err != nil {
			return domain.Lead{}, err
		}
		fields["email"] = email
	}
	if req.Phone != nil {
		fields["phone"] = trimOptional(req.Phone)
	}
	if req.Status != nil {
		status := strings.TrimSpace(*req.Status)
		if status == "" {
			status = domain.DefaultStatus
		}
		fields["status"] = status
	}
	if req.Source != nil {
		fields["source"] = strings.TrimSpace(*req.Source)
	}
	if req.IsIndian != nil {
		if !validFlag(*req.IsIndian) {
			return domain.Lead{}, domain.ErrInvalidFlag
		}
		fields["is_indian"] = *req.IsIndian
	}
	switch {
	case req.ClearNextFollowUp:
		fields["next_follow_up"] = nil
	case req.NextFollowUp != nil:
		fields["next_follow_up"] = req.NextFollowUp.UTC()
	}
	if req.AdditionalInfo != nil {
		if err := validateJSON(req.AdditionalInfo); err != nil {
			return domain.Lead{}, err
		}
		fields["additional_info"] = req.AdditionalInfo
	}
	if req.Logs != nil {
		if err := validateJSON(req.Logs); err != nil {
			return domain.Lead{}, err
		}
		fields["logs"] = req.Logs
	}

	lead, err := s.mutate(ctx, orgRef, leadID, fields)
	if err != nil {
		return domain.Lead{}, err
	}
	s.log.Info("lead updated",
		zap.String("org_id", lead.OrgID.String()),
		zap.String("lead_id", lead.ID.String()),
	)
	return lead, nil
}

func (s *Service) Delete(ctx context.Context, orgRef, leadID string, hard bool) error {
	org, err := s.resolveOrg(ctx, orgRef)
	if err != nil {
		return err
	}
	lead, err := s.find(ctx, org.ID, leadID)
	if err != nil {
		return err
	}

	if hard {
		err = s.repo.HardDelete(ctx, s.db, org.ID, lead.ID)
	} else {
		err = s.repo.UpdateFields(ctx, s.db, org.ID, lead.ID, map[string]any{
			"is_deleted": true,
			"updated_at": s.clock.Now(),
		})
	}
	if err != nil {
		return err
	}

	s.log.Info("lead deleted",
		zap.String("org_id", org.ID.String()),
		zap.String("lead_id", lead.ID.String()),
		zap.Bool("hard", hard),
	)
	return nil
}

func (s *Service) ScheduleFollowUp(ctx context.Context, orgRef, leadID string, at time.Time) (domain.Lead, error) {
	if at.IsZero() {
		return domain.Lead{}, domain.ErrInvalidRange
	}
	lead, err := s.mutate(ctx, orgRef, leadID, map[string]any{
		"next_follow_up": at.UTC(),
		"follow_ups":     gorm.Expr("follow_ups + ?", 1),
		"in_process":     0,
	})
	if err != nil {
		return domain.Lead{}, err
	}
	s.publish(ctx, lead, "follow_up_scheduled")
	return lead, nil
}

func (s *Service) SetInProcess(ctx context.Context, orgRef, leadID string, inProcess bool) (domain.Lead, error) {
	flag := 0
	if inProcess {
		flag = 1
	}
	lead, err := s.mutate(ctx, orgRef, leadID, map[string]any{"in_process": flag})
	if err != nil {
		return domain.Lead{}, err
	}
	s.publish(ctx, lead, "in_process_changed")
	return lead, nil
}

func (s *Service) ListPriority(ctx context.Context, query domain.PriorityQuery) (domain.PriorityResponse, error) {
	now := s.clock.Now()
	scope := tenancy.FromContext(ctx)

	filter := domain.PriorityFilter{
		Start: utcOptional(query.Start),
		End:   now,
	}
	if query.End != nil {
		filter.End = query.End.UTC()
	}
	if filter.Start != nil && filter.Start.After(filter.End) {
		return domain.PriorityResponse{}, domain.ErrInvalidRange
	}
	if query.IsIndian != nil {
		if !validFlag(*query.IsIndian) {
			return domain.PriorityResponse{}, domain.ErrInvalidFlag
		}
		filter.IsIndian = query.IsIndian
	}
	if query.InProcess != nil {
		if !validFlag(*query.InProcess) {
			return domain.PriorityResponse{}, domain.ErrInvalidFlag
		}
		filter.InProcess = *query.InProcess
	}

	metricScope := "organization"
	if strings.TrimSpace(query.OrgRef) == "" {
		if !scope.BypassFilters {
			return domain.PriorityResponse{}, domain.ErrGlobalScope
		}
		metricScope = "global"
	} else {
		org, err := s.resolveOrg(ctx, query.OrgRef)
		if err != nil {
			return domain.PriorityResponse{}, err
		}
		filter.OrgID = &org.ID
	}

	cfg := s.ledger.Get()
	page := query.Pagination.Normalize(cfg.Priority.DefaultLimit, cfg.Priority.MaxLimit)

	leads, total, err := s.repo.ListPriority(ctx, s.db, filter, scope, page)
	if err != nil {
		return domain.PriorityResponse{}, err
	}
	s.obsMetrics.RecordPriorityQuery(ctx, metricScope)

	items := make([]domain.PriorityLead, 0, len(leads))
	for _, lead := range leads {
		items = append(items, prioritize(lead, now))
	}
	return domain.PriorityResponse{
		Leads:    items,
		PageInfo: page.Info(total),
	}, nil
}

// prioritize derives urgency against now, not against the query's end bound.
func prioritize(lead domain.Lead, now time.Time) domain.PriorityLead {
	item := domain.PriorityLead{Lead: lead}
	if lead.NextFollowUp == nil {
		return item
	}
	elapsed := now.Sub(*lead.NextFollowUp)
	item.UrgencyMinutes = int64(math.Floor(float64(elapsed) / float64(time.Minute)))
	item.IsOverdue = lead.NextFollowUp.Before(now)
	return item
}

func (s *Service) mutate(ctx context.Context, orgRef, leadID string, fields map[string]any) (domain.Lead, error) {
	org, err := s.resolveOrg(ctx, orgRef)
	if err != nil {
		return domain.Lead{}, err
	}

	var updated *domain.Lead
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lead, err := s.findIn(ctx, tx, org.ID, leadID)
		if err != nil {
			return err
		}
		if len(fields) > 0 {
			fields["updated_at"] = s.clock.Now()
			if err := s.repo.UpdateFields(ctx, tx, org.ID, lead.ID, fields); err != nil {
				return err
			}
		}
		updated, err = s.repo.FindByID(ctx, tx, org.ID, lead.ID, tenancy.Scope{BypassFilters: true})
		return err
	})
	if err != nil {
		return domain.Lead{}, err
	}
	if updated == nil {
		return domain.Lead{}, domain.ErrNotFound
	}
	return *updated, nil
}

func (s *Service) publish(ctx context.Context, lead domain.Lead, action string) {
	if s.publisher == nil {
		return
	}
	event, err := realtime.NewEvent(realtime.EventLeadUpdated, lead.OrgID, map[string]any{
		"action": action,
		"lead":   lead,
	}, s.clock.Now())
	if err != nil {
		s.log.Warn("encode lead event failed", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("publish lead event failed",
			zap.String("lead_id", lead.ID.String()),
			zap.Error(err),
		)
	}
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

func (s *Service) find(ctx context.Context, orgID snowflake.ID, leadID string) (*domain.Lead, error) {
	return s.findIn(ctx, s.db, orgID, leadID)
}

func (s *Service) findIn(ctx context.Context, db *gorm.DB, orgID snowflake.ID, leadID string) (*domain.Lead, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(leadID))
	if err != nil || id <= 0 {
		return nil, domain.ErrInvalidID
	}
	lead, err := s.repo.FindByID(ctx, db, orgID, id, tenancy.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, domain.ErrNotFound
	}
	return lead, nil
}

var validate = validator.New()

func normalizeEmail(value string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(value))
	if email == "" {
		return "", nil
	}
	if err := validate.Var(email, "email"); err != nil {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}

func validFlag(v int) bool {
	return v == 0 || v == 1
}

func validateJSON(value datatypes.JSON) error {
	if len(value) == 0 {
		return nil
	}
	if !json.Valid(value) {
		return domain.ErrInvalidJSON
	}
	return nil
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

func utcOptional(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	t := value.UTC()
	return &t
}
