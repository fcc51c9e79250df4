package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/channel/domain"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) AdjustActiveCalls(ctx context.Context, db *gorm.DB, orgID snowflake.ID, region domain.Region, delta int, now time.Time) (bool, error) {
	active := region.ActiveColumn()

	stmt := db.WithContext(ctx).
		Model(&orgdomain.Organization{}).
		Where("id = ?", orgID)
	if delta > 0 {
		stmt = stmt.Where(active + " < " + region.AvailableColumn())
	} else {
		stmt = stmt.Where(active + " > 0")
	}

	res := stmt.Updates(map[string]any{
		active:       gorm.Expr(active+" + ?", delta),
		"updated_at": now,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
