package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

// PriorityFilter selects leads due for follow-up. A nil OrgID spans every
// organization.
type PriorityFilter struct {
	OrgID     *snowflake.ID
	Start     *time.Time
	End       time.Time
	IsIndian  *int
	InProcess int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, lead *Lead) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, scope tenancy.Scope) (*Lead, error)
	UpdateFields(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, fields map[string]any) error
	HardDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	ListPriority(ctx context.Context, db *gorm.DB, filter PriorityFilter, scope tenancy.Scope, page pagination.Pagination) ([]Lead, int64, error)
}
