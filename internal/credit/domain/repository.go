package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// UpdateCounter writes expr into column as a single UPDATE statement.
	UpdateCounter(ctx context.Context, db *gorm.DB, orgID snowflake.ID, column string, expr any, now time.Time) error
	InsertHistory(ctx context.Context, db *gorm.DB, history *CreditHistory) error
	ListHistory(ctx context.Context, db *gorm.DB, orgID snowflake.ID, page pagination.Pagination) ([]CreditHistory, int64, error)
}
