package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/credit/domain"
	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpdateCounter(ctx context.Context, db *gorm.DB, orgID snowflake.ID, column string, expr any, now time.Time) error {
	return db.WithContext(ctx).
		Model(&orgdomain.Organization{}).
		Where("id = ?", orgID).
		Updates(map[string]any{
			column:       expr,
			"updated_at": now,
		}).Error
}

func (r *repo) InsertHistory(ctx context.Context, db *gorm.DB, history *domain.CreditHistory) error {
	return db.WithContext(ctx).Create(history).Error
}

func (r *repo) ListHistory(ctx context.Context, db *gorm.DB, orgID snowflake.ID, page pagination.Pagination) ([]domain.CreditHistory, int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.CreditHistory{}).
		Where("org_id = ?", orgID)

	var total int64
	if err := stmt.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []domain.CreditHistory
	err := stmt.
		Scopes(page.Scope()).
		Order("created_at desc, id desc").
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
