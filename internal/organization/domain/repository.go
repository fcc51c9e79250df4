package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/tenancy"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, org *Organization) error
	// FindByRef resolves an organization by numeric id or slug. It returns
	// nil when nothing visible under scope matches.
	FindByRef(ctx context.Context, db *gorm.DB, ref string, scope tenancy.Scope) (*Organization, error)
	// LockByRef is FindByRef with a row lock; db must be a transaction.
	LockByRef(ctx context.Context, db *gorm.DB, ref string, scope tenancy.Scope) (*Organization, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	List(ctx context.Context, db *gorm.DB, scope tenancy.Scope, page pagination.Pagination) ([]Organization, int64, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
}
