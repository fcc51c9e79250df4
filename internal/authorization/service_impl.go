package authorization

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/agentdesk/internal/config"
	"github.com/smallbiznis/agentdesk/internal/orgcontext"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectTenantFilters = "tenant_filters"
	ActionBypass        = "bypass"
)

var (
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service resolves capabilities for the calling role.
type Service interface {
	Can(ctx context.Context, role string, object string, action string) (bool, error)
	// ScopeFor derives the tenant filter policy for the role carried in ctx.
	ScopeFor(ctx context.Context) (tenancy.Scope, error)
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads policies through the gorm adapter and seeds the
// super-admin bypass rule.
func NewEnforcer(db *gorm.DB, cfg config.Config) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer, cfg.SuperAdminRole); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewInMemoryEnforcer builds an enforcer without persistence.
func NewInMemoryEnforcer(superAdminRole string) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer, superAdminRole); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer, superAdminRole string) error {
	role := strings.ToLower(strings.TrimSpace(superAdminRole))
	if role == "" {
		return nil
	}
	_, err := enforcer.AddPolicy(subject(role), ObjectTenantFilters, ActionBypass)
	return err
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Can(ctx context.Context, role string, object string, action string) (bool, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false, ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return false, ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return false, ErrInvalidAction
	}

	return s.enforcer.Enforce(subject(role), object, action)
}

func (s *ServiceImpl) ScopeFor(ctx context.Context) (tenancy.Scope, error) {
	role := orgcontext.ActorRoleFromContext(ctx)
	if role == "" {
		return tenancy.Scope{}, nil
	}

	allowed, err := s.Can(ctx, role, ObjectTenantFilters, ActionBypass)
	if err != nil {
		return tenancy.Scope{}, err
	}
	if allowed {
		s.log.Debug("tenant filters bypassed", zap.String("role", role))
	}
	return tenancy.Scope{BypassFilters: allowed}, nil
}

func subject(role string) string {
	return "role:" + role
}
